package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/pkg/certificate"
	"github.com/aoabd/course-api/pkg/clock"
	"github.com/aoabd/course-api/pkg/config"
)

type mockAttendanceRepo struct {
	attended   []models.EnrollmentDetail
	setCourse  string
	setPresent []string
}

func (m *mockAttendanceRepo) SetAttendance(ctx context.Context, courseID string, presentIDs []string) error {
	m.setCourse = courseID
	m.setPresent = presentIDs
	return nil
}

func (m *mockAttendanceRepo) ListAttended(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return m.attended, nil
}

type mockCertCourseReader struct {
	courses    map[string]*models.Course
	recipients []models.CourseRecipient
}

func (m *mockCertCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertCourseReader) ListRecipients(ctx context.Context, courseID string) ([]models.CourseRecipient, error) {
	return m.recipients, nil
}

type mockCategoryReader struct {
	categories map[string]*models.CourseCategory
}

func (m *mockCategoryReader) FindByID(ctx context.Context, id string) (*models.CourseCategory, error) {
	if c, ok := m.categories[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockLedger struct {
	students map[string]*models.Student
	records  map[string]*models.CourseRecord
	saveErr  error
	saved    int
}

func ledgerKey(studentID, categoryID string) string { return studentID + "/" + categoryID }

func (m *mockLedger) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLedger) GetCourseRecord(ctx context.Context, studentID, categoryID string) (*models.CourseRecord, error) {
	if r, ok := m.records[ledgerKey(studentID, categoryID)]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLedger) SaveCourseRecord(ctx context.Context, record *models.CourseRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.records == nil {
		m.records = make(map[string]*models.CourseRecord)
	}
	copied := *record
	m.records[ledgerKey(record.StudentID, record.CategoryID)] = &copied
	m.saved++
	return nil
}

type stubRenderer struct {
	rendered []certificate.Fields
}

func (r *stubRenderer) Render(fields certificate.Fields) ([]byte, error) {
	r.rendered = append(r.rendered, fields)
	return []byte("%PDF"), nil
}

func newTestCertificateService(enrollments *mockAttendanceRepo, courses *mockCertCourseReader, categories *mockCategoryReader, ledger *mockLedger, renderer *stubRenderer, files *mockFileStore, now time.Time) *CertificateService {
	if files == nil {
		files = &mockFileStore{}
	}
	cfg := config.CertificateConfig{HistoryCap: 3, Location: "Dhaka"}
	return NewCertificateService(enrollments, courses, categories, ledger, renderer, files, cfg, clock.Fixed{T: now}, validator.New(), zap.NewNop())
}

func confirmedAttendee(id, studentID, name string) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment:  models.Enrollment{ID: id, StudentID: studentID, Status: models.EnrollmentStatusConfirmed, IsAttend: true},
		StudentName: name,
	}
}

func certCourse() *models.Course {
	return &models.Course{ID: "c1", CategoryID: "cat1", Title: "ACLS Provider Course", Location: "Chattogram"}
}

func TestMarkAttendanceReplacesSet(t *testing.T) {
	enrollments := &mockAttendanceRepo{}
	courses := &mockCertCourseReader{courses: map[string]*models.Course{"c1": certCourse()}}
	svc := newTestCertificateService(enrollments, courses, &mockCategoryReader{}, &mockLedger{}, &stubRenderer{}, nil, time.Now())

	err := svc.MarkAttendance(context.Background(), MarkAttendanceRequest{CourseID: "c1", PresentIDs: []string{"e1", "e2"}})
	require.NoError(t, err)
	assert.Equal(t, "c1", enrollments.setCourse)
	assert.Equal(t, []string{"e1", "e2"}, enrollments.setPresent)
}

func TestIssueCertificatesForAttendees(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	enrollments := &mockAttendanceRepo{attended: []models.EnrollmentDetail{
		confirmedAttendee("e1", "s1", "Dr. Rahman"),
	}}
	courses := &mockCertCourseReader{courses: map[string]*models.Course{"c1": certCourse()}}
	categories := &mockCategoryReader{categories: map[string]*models.CourseCategory{
		"cat1": {ID: "cat1", Name: "ACLS", Participation: models.ParticipationSingle},
	}}
	ledger := &mockLedger{}
	renderer := &stubRenderer{}
	svc := newTestCertificateService(enrollments, courses, categories, ledger, renderer, nil, now)

	report, err := svc.IssueCertificates(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AttendeeCertificates)
	assert.Empty(t, report.Skipped)

	record := ledger.records[ledgerKey("s1", "cat1")]
	require.NotNil(t, record)
	assert.Equal(t, models.CourseRecordYes, record.Status)
	assert.Equal(t, 2026, record.CompletionYear)
	assert.Len(t, record.Documents, 1)

	require.Len(t, renderer.rendered, 1)
	assert.Equal(t, "Dr. Rahman", renderer.rendered[0].StudentName)
	assert.Equal(t, "Participant", renderer.rendered[0].Role)
	assert.Equal(t, "Chattogram", renderer.rendered[0].Location)
}

func TestIssueCertificatesPreservesCompletionYear(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	enrollments := &mockAttendanceRepo{attended: []models.EnrollmentDetail{
		confirmedAttendee("e1", "s1", "Dr. Rahman"),
	}}
	courses := &mockCertCourseReader{courses: map[string]*models.Course{"c1": certCourse()}}
	categories := &mockCategoryReader{categories: map[string]*models.CourseCategory{
		"cat1": {ID: "cat1", Name: "ACLS", Participation: models.ParticipationSingle},
	}}
	ledger := &mockLedger{records: map[string]*models.CourseRecord{
		ledgerKey("s1", "cat1"): {StudentID: "s1", CategoryID: "cat1", Status: models.CourseRecordYes, CompletionYear: 2019, Documents: []string{"old-doc"}},
	}}
	svc := newTestCertificateService(enrollments, courses, categories, ledger, &stubRenderer{}, nil, now)

	_, err := svc.IssueCertificates(context.Background(), "c1")
	require.NoError(t, err)

	record := ledger.records[ledgerKey("s1", "cat1")]
	assert.Equal(t, 2019, record.CompletionYear)
	// Single participation keeps exactly one document, the new one.
	require.Len(t, record.Documents, 1)
	assert.NotEqual(t, "old-doc", record.Documents[0])
}

func TestIssueCertificatesMultipleParticipationAppends(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	enrollments := &mockAttendanceRepo{attended: []models.EnrollmentDetail{
		confirmedAttendee("e1", "s1", "Dr. Rahman"),
	}}
	course := certCourse()
	course.CategoryID = "workshop"
	courses := &mockCertCourseReader{courses: map[string]*models.Course{"c1": course}}
	categories := &mockCategoryReader{categories: map[string]*models.CourseCategory{
		"workshop": {ID: "workshop", Name: "Workshop", Participation: models.ParticipationMultiple},
	}}
	ledger := &mockLedger{records: map[string]*models.CourseRecord{
		ledgerKey("s1", "workshop"): {StudentID: "s1", CategoryID: "workshop", Status: models.CourseRecordYes, CompletionYear: 2024, Documents: []string{"d1", "d2", "d3"}},
	}}
	svc := newTestCertificateService(enrollments, courses, categories, ledger, &stubRenderer{}, nil, now)

	_, err := svc.IssueCertificates(context.Background(), "c1")
	require.NoError(t, err)

	record := ledger.records[ledgerKey("s1", "workshop")]
	// Cap is 3: the oldest entry is dropped to make room.
	require.Len(t, record.Documents, 3)
	assert.NotContains(t, record.Documents, "d1")
	assert.Contains(t, record.Documents, "d2")
	assert.Contains(t, record.Documents, "d3")
}

func TestIssueCertificatesForRoleRecipients(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	enrollments := &mockAttendanceRepo{}
	courses := &mockCertCourseReader{
		courses:    map[string]*models.Course{"c1": certCourse()},
		recipients: []models.CourseRecipient{{CourseID: "c1", RoleCategoryID: "faculty", StudentID: "s2"}},
	}
	categories := &mockCategoryReader{categories: map[string]*models.CourseCategory{
		"cat1":    {ID: "cat1", Name: "ACLS", Participation: models.ParticipationSingle},
		"faculty": {ID: "faculty", Name: "Course Faculty", Participation: models.ParticipationMultiple},
	}}
	ledger := &mockLedger{students: map[string]*models.Student{"s2": {ID: "s2", Name: "Prof. Akhtar"}}}
	renderer := &stubRenderer{}
	svc := newTestCertificateService(enrollments, courses, categories, ledger, renderer, nil, now)

	report, err := svc.IssueCertificates(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.AttendeeCertificates)
	assert.Equal(t, 1, report.RecipientCertificates)

	record := ledger.records[ledgerKey("s2", "faculty")]
	require.NotNil(t, record)
	assert.Equal(t, models.CourseRecordYes, record.Status)

	require.Len(t, renderer.rendered, 1)
	assert.Equal(t, "Course Faculty", renderer.rendered[0].Role)
}

func TestIssueCertificatesSkipsUnknownRecipient(t *testing.T) {
	enrollments := &mockAttendanceRepo{}
	courses := &mockCertCourseReader{
		courses:    map[string]*models.Course{"c1": certCourse()},
		recipients: []models.CourseRecipient{{CourseID: "c1", RoleCategoryID: "faculty", StudentID: "ghost"}},
	}
	categories := &mockCategoryReader{categories: map[string]*models.CourseCategory{
		"cat1":    {ID: "cat1", Name: "ACLS"},
		"faculty": {ID: "faculty", Name: "Course Faculty"},
	}}
	svc := newTestCertificateService(enrollments, courses, categories, &mockLedger{}, &stubRenderer{}, nil, time.Now())

	report, err := svc.IssueCertificates(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.RecipientCertificates)
	assert.Contains(t, report.Skipped, "ghost")
}

func TestIssueCertificatesIgnoresUnconfirmedAttendees(t *testing.T) {
	enrollments := &mockAttendanceRepo{attended: []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{ID: "e1", StudentID: "s1", Status: models.EnrollmentStatusEnrolled, IsAttend: true}, StudentName: "Dr. Rahman"},
		{Enrollment: models.Enrollment{ID: "e2", StudentID: "s2", Status: models.EnrollmentStatusExpired, IsAttend: true}, StudentName: "Dr. Karim"},
		confirmedAttendee("e3", "s3", "Dr. Sultana"),
	}}
	courses := &mockCertCourseReader{courses: map[string]*models.Course{"c1": certCourse()}}
	categories := &mockCategoryReader{categories: map[string]*models.CourseCategory{
		"cat1": {ID: "cat1", Name: "ACLS", Participation: models.ParticipationSingle},
	}}
	ledger := &mockLedger{}
	svc := newTestCertificateService(enrollments, courses, categories, ledger, &stubRenderer{}, nil, time.Now())

	report, err := svc.IssueCertificates(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AttendeeCertificates)
	assert.Empty(t, report.Skipped)

	// Attendance on an unpaid or expired record must not touch the ledger.
	assert.Nil(t, ledger.records[ledgerKey("s1", "cat1")])
	assert.Nil(t, ledger.records[ledgerKey("s2", "cat1")])
	assert.NotNil(t, ledger.records[ledgerKey("s3", "cat1")])
}

func TestIssueCertificatesDiscardsFileWhenLedgerFails(t *testing.T) {
	enrollments := &mockAttendanceRepo{attended: []models.EnrollmentDetail{
		confirmedAttendee("e1", "s1", "Dr. Rahman"),
	}}
	courses := &mockCertCourseReader{courses: map[string]*models.Course{"c1": certCourse()}}
	categories := &mockCategoryReader{categories: map[string]*models.CourseCategory{
		"cat1": {ID: "cat1", Name: "ACLS", Participation: models.ParticipationSingle},
	}}
	ledger := &mockLedger{saveErr: errors.New("ledger unavailable")}
	files := &mockFileStore{}
	svc := newTestCertificateService(enrollments, courses, categories, ledger, &stubRenderer{}, files, time.Now())

	report, err := svc.IssueCertificates(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, report.AttendeeCertificates)
	assert.Contains(t, report.Skipped, "s1")

	require.Len(t, files.stored, 1)
	assert.Equal(t, files.stored, files.deleted)
}
