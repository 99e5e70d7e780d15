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
	"github.com/aoabd/course-api/pkg/clock"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/storage"
)

type mockPaymentRepo struct {
	enrollments map[string]models.Enrollment
	denyAttach  bool
	denyAccept  bool
	denyReject  bool
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) AttachPaymentProof(ctx context.Context, id, proofURL, proofHandle string, receivedAt time.Time) (bool, error) {
	if m.denyAttach {
		return false, nil
	}
	e, ok := m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusEnrolled {
		return false, nil
	}
	e.PaymentReceived = models.PaymentStatusPending
	e.PaymentProofURL = proofURL
	e.PaymentProofHandle = proofHandle
	e.PaymentReceivedAt = &receivedAt
	m.enrollments[id] = e
	return true, nil
}

func (m *mockPaymentRepo) RejectPayment(ctx context.Context, id, remark string) (bool, error) {
	if m.denyReject {
		return false, nil
	}
	e, ok := m.enrollments[id]
	if !ok || e.PaymentReceived != models.PaymentStatusPending {
		return false, nil
	}
	e.PaymentReceived = models.PaymentStatusRejected
	e.PaymentProofURL = ""
	e.PaymentProofHandle = ""
	e.Remark = remark
	m.enrollments[id] = e
	return true, nil
}

func (m *mockPaymentRepo) AcceptPayment(ctx context.Context, id string, receivedAt time.Time) (bool, error) {
	if m.denyAccept {
		return false, nil
	}
	e, ok := m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusEnrolled || e.PaymentReceived != models.PaymentStatusPending {
		return false, nil
	}
	e.PaymentReceived = models.PaymentStatusApproved
	e.Status = models.EnrollmentStatusConfirmed
	e.Remark = ""
	m.enrollments[id] = e
	return true, nil
}

type mockStudentReader struct{}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return &models.Student{ID: id, Email: id + "@example.org"}, nil
}

type mockFileStore struct {
	stored  []string
	deleted []string
	fail    bool
	failDel bool
}

func (m *mockFileStore) Store(data []byte, folderHint, nameHint string) (storage.StoredFile, error) {
	if m.fail {
		return storage.StoredFile{}, errors.New("disk full")
	}
	handle := folderHint + "/stored-file"
	m.stored = append(m.stored, handle)
	return storage.StoredFile{URL: "http://files/" + handle, Handle: handle}, nil
}

func (m *mockFileStore) Delete(handle string) error {
	if m.failDel {
		return errors.New("unlink failed")
	}
	m.deleted = append(m.deleted, handle)
	return nil
}

func newTestPaymentService(repo *mockPaymentRepo, course *models.Course, files *mockFileStore, notifier *mockNotifier, now time.Time) *PaymentService {
	courses := &mockCourseReader{courses: map[string]*models.Course{course.ID: course}}
	return NewPaymentService(repo, courses, &mockStudentReader{}, files, notifier, clock.Fixed{T: now}, validator.New(), zap.NewNop())
}

func enrolledRecord() models.Enrollment {
	return models.Enrollment{ID: "e1", CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusEnrolled, PaymentReceived: models.PaymentStatusNone}
}

func TestUploadProofMarksPaymentPending(t *testing.T) {
	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": enrolledRecord()}}
	files := &mockFileStore{}
	svc := newTestPaymentService(repo, openCourse(), files, &mockNotifier{}, time.Now())

	enrollment, err := svc.UploadProof(context.Background(), UploadProofRequest{EnrollmentID: "e1", FileName: "proof.pdf", Data: []byte("pdf")})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, enrollment.PaymentReceived)
	assert.NotEmpty(t, enrollment.PaymentProofURL)
	assert.Len(t, files.stored, 1)
}

func TestUploadProofRejectsNonEnrolledStatus(t *testing.T) {
	record := enrolledRecord()
	record.Status = models.EnrollmentStatusExpired
	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": record}}
	svc := newTestPaymentService(repo, openCourse(), &mockFileStore{}, &mockNotifier{}, time.Now())

	_, err := svc.UploadProof(context.Background(), UploadProofRequest{EnrollmentID: "e1", FileName: "proof.pdf", Data: []byte("pdf")})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "expired")
}

func TestUploadProofOutsidePaymentWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Hour)
	course := openCourse()
	course.PaymentReceiveEndDate = &deadline

	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": enrolledRecord()}}
	files := &mockFileStore{}
	svc := newTestPaymentService(repo, course, files, &mockNotifier{}, now)

	_, err := svc.UploadProof(context.Background(), UploadProofRequest{EnrollmentID: "e1", FileName: "proof.pdf", Data: []byte("pdf")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWindowClosed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, files.stored)
}

func TestUploadProofCleansUpOnLostRace(t *testing.T) {
	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": enrolledRecord()}, denyAttach: true}
	files := &mockFileStore{}
	svc := newTestPaymentService(repo, openCourse(), files, &mockNotifier{}, time.Now())

	_, err := svc.UploadProof(context.Background(), UploadProofRequest{EnrollmentID: "e1", FileName: "proof.pdf", Data: []byte("pdf")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, files.deleted, 1)
}

func TestAcceptConfirmsEnrollment(t *testing.T) {
	record := enrolledRecord()
	record.PaymentReceived = models.PaymentStatusPending
	record.Remark = "resubmit with a clearer scan"
	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": record}}
	notifier := &mockNotifier{}
	svc := newTestPaymentService(repo, openCourse(), &mockFileStore{}, notifier, time.Now())

	enrollment, err := svc.Accept(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusConfirmed, enrollment.Status)
	assert.Equal(t, models.PaymentStatusApproved, enrollment.PaymentReceived)
	assert.Empty(t, enrollment.Remark)
	assert.Equal(t, 1, notifier.reviewed)
}

func TestAcceptRequiresPendingPayment(t *testing.T) {
	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": enrolledRecord()}}
	svc := newTestPaymentService(repo, openCourse(), &mockFileStore{}, &mockNotifier{}, time.Now())

	_, err := svc.Accept(context.Background(), "e1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Contains(t, appErr.Message, string(models.PaymentStatusNone))
}

func TestRejectClearsProofAndRecordsRemark(t *testing.T) {
	record := enrolledRecord()
	record.PaymentReceived = models.PaymentStatusPending
	record.PaymentProofHandle = "payment-proofs/c1/old"
	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": record}}
	files := &mockFileStore{}
	svc := newTestPaymentService(repo, openCourse(), files, &mockNotifier{}, time.Now())

	enrollment, err := svc.Reject(context.Background(), RejectPaymentRequest{EnrollmentID: "e1", Remark: "amount does not match"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRejected, enrollment.PaymentReceived)
	assert.Equal(t, "amount does not match", enrollment.Remark)
	assert.Empty(t, enrollment.PaymentProofURL)
	assert.Contains(t, files.deleted, "payment-proofs/c1/old")
}

func TestRejectRequiresRemark(t *testing.T) {
	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": enrolledRecord()}}
	svc := newTestPaymentService(repo, openCourse(), &mockFileStore{}, &mockNotifier{}, time.Now())

	_, err := svc.Reject(context.Background(), RejectPaymentRequest{EnrollmentID: "e1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRejectProofDeleteFailureDoesNotBlock(t *testing.T) {
	record := enrolledRecord()
	record.PaymentReceived = models.PaymentStatusPending
	record.PaymentProofHandle = "payment-proofs/c1/old"
	repo := &mockPaymentRepo{enrollments: map[string]models.Enrollment{"e1": record}}
	svc := newTestPaymentService(repo, openCourse(), &mockFileStore{failDel: true}, &mockNotifier{}, time.Now())

	enrollment, err := svc.Reject(context.Background(), RejectPaymentRequest{EnrollmentID: "e1", Remark: "unreadable"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRejected, enrollment.PaymentReceived)
}
