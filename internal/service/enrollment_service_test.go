package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/pkg/clock"
	appErrors "github.com/aoabd/course-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	counts      models.CapacityCounts
	created     *models.Enrollment
	createErr   error
	transitions []string
	denyMove    bool
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	for _, e := range m.enrollments {
		if e.CourseID == courseID && e.StudentID == studentID {
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) Counts(ctx context.Context, courseID string) (models.CapacityCounts, error) {
	return m.counts, nil
}

func (m *mockEnrollmentRepo) CreateClassified(ctx context.Context, enrollment *models.Enrollment, classify func(models.CapacityCounts) models.AdmissionClass) (models.AdmissionClass, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	class := classify(m.counts)
	if class == models.AdmissionRejected {
		return class, nil
	}
	if class == models.AdmissionEnrolled {
		enrollment.Status = models.EnrollmentStatusEnrolled
	} else {
		enrollment.Status = models.EnrollmentStatusWaitlist
	}
	enrollment.ID = "new-enroll"
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return class, nil
}

func (m *mockEnrollmentRepo) TransitionStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (bool, error) {
	m.transitions = append(m.transitions, id)
	e, ok := m.enrollments[id]
	if !ok || m.denyMove || e.Status != from {
		return false, nil
	}
	e.Status = to
	m.enrollments[id] = e
	return true, nil
}

type mockContactReader struct {
	contacts []models.CourseContact
}

func (m *mockContactReader) ListContacts(ctx context.Context, courseID string) ([]models.CourseContact, error) {
	return m.contacts, nil
}

type mockNotifier struct {
	created  int
	reviewed int
}

func (m *mockNotifier) EnrollmentCreated(course *models.Course, student *models.Student, status models.EnrollmentStatus, contacts []models.CourseContact) {
	m.created++
}

func (m *mockNotifier) PaymentReviewed(enrollment *models.Enrollment, email string, accepted bool, remark string) {
	m.reviewed++
}

func openCourse() *models.Course {
	return &models.Course{ID: "c1", CategoryID: "cat1", Title: "ACLS Provider Course", StudentCap: 2, WaitlistCap: 1}
}

func newTestEnrollmentService(repo *mockEnrollmentRepo, course *models.Course, notifier *mockNotifier, now time.Time) *EnrollmentService {
	students := &mockStudentDetailReader{students: map[string]*models.StudentDetail{"s1": verifiedStudent()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{course.ID: course}}
	eligibility := NewEligibilityService(students, courses, &mockNameResolver{}, validator.New(), zap.NewNop())
	return NewEnrollmentService(repo, courses, &mockContactReader{contacts: []models.CourseContact{{Email: "organizer@example.org"}}},
		students, eligibility, notifier, clock.Fixed{T: now}, validator.New(), zap.NewNop())
}

func TestEnrollAdmitsToPrimarySeat(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	notifier := &mockNotifier{}
	svc := newTestEnrollmentService(repo, openCourse(), notifier, time.Now())

	result, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionEnrolled, result.Class)
	assert.Equal(t, models.EnrollmentStatusEnrolled, result.Enrollment.Status)
	assert.Equal(t, models.PaymentStatusNone, result.Enrollment.PaymentReceived)
	assert.Equal(t, 1, notifier.created)
}

func TestEnrollOverflowsToWaitlist(t *testing.T) {
	repo := &mockEnrollmentRepo{counts: models.CapacityCounts{Enrolled: 2}}
	svc := newTestEnrollmentService(repo, openCourse(), &mockNotifier{}, time.Now())

	result, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionWaitlist, result.Class)
	assert.Equal(t, models.EnrollmentStatusWaitlist, result.Enrollment.Status)
}

func TestEnrollRejectsWhenBothCapacitiesFull(t *testing.T) {
	repo := &mockEnrollmentRepo{counts: models.CapacityCounts{Enrolled: 2, Waitlisted: 1}}
	notifier := &mockNotifier{}
	svc := newTestEnrollmentService(repo, openCourse(), notifier, time.Now())

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCapacityFull.Code, appErr.Code)
	assert.Zero(t, notifier.created)
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusEnrolled},
	}}
	svc := newTestEnrollmentService(repo, openCourse(), &mockNotifier{}, time.Now())

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollMapsUniqueViolationToConflict(t *testing.T) {
	repo := &mockEnrollmentRepo{createErr: &pq.Error{Code: "23505"}}
	svc := newTestEnrollmentService(repo, openCourse(), &mockNotifier{}, time.Now())

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollOutsideRegistrationWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opensAt := now.Add(24 * time.Hour)
	closedAt := now.Add(-24 * time.Hour)

	notYet := openCourse()
	notYet.RegistrationStartDate = &opensAt
	svc := newTestEnrollmentService(&mockEnrollmentRepo{}, notYet, &mockNotifier{}, now)
	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWindowClosed.Code, appErrors.FromError(err).Code)

	closed := openCourse()
	closed.RegistrationEndDate = &closedAt
	svc = newTestEnrollmentService(&mockEnrollmentRepo{}, closed, &mockNotifier{}, now)
	_, err = svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWindowClosed.Code, appErrors.FromError(err).Code)
}

func TestEnrollNilWindowBoundsAreOpenEnded(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newTestEnrollmentService(repo, openCourse(), &mockNotifier{}, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
}

func TestEnrollReturnsEligibilityReasons(t *testing.T) {
	course := openCourse()
	course.RestrictReenrollment = true
	repo := &mockEnrollmentRepo{}
	svc := newTestEnrollmentService(repo, course, &mockNotifier{}, time.Now())

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIneligible.Code, appErr.Code)
	assert.NotEmpty(t, appErr.Reasons)
	assert.Nil(t, repo.created)
}

func TestMoveToEnrolledPromotesWaitlist(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusWaitlist},
	}}
	svc := newTestEnrollmentService(repo, openCourse(), &mockNotifier{}, time.Now())

	enrollment, err := svc.MoveToEnrolled(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
}

func TestMoveToEnrolledReportsCurrentStatus(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusConfirmed},
	}}
	svc := newTestEnrollmentService(repo, openCourse(), &mockNotifier{}, time.Now())

	_, err := svc.MoveToEnrolled(context.Background(), "e1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "confirmed")
}

func TestMoveToEnrolledUnknownID(t *testing.T) {
	svc := newTestEnrollmentService(&mockEnrollmentRepo{}, openCourse(), &mockNotifier{}, time.Now())

	_, err := svc.MoveToEnrolled(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
