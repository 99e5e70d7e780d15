package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/pkg/clock"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/storage"
)

type paymentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	AttachPaymentProof(ctx context.Context, id, proofURL, proofHandle string, receivedAt time.Time) (bool, error)
	RejectPayment(ctx context.Context, id, remark string) (bool, error)
	AcceptPayment(ctx context.Context, id string, receivedAt time.Time) (bool, error)
}

type paymentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type paymentNotifier interface {
	PaymentReviewed(enrollment *models.Enrollment, email string, accepted bool, remark string)
}

type paymentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// UploadProofRequest carries a student's proof-of-payment submission.
type UploadProofRequest struct {
	EnrollmentID string `validate:"required"`
	FileName     string `validate:"required"`
	Data         []byte `validate:"required"`
}

// RejectPaymentRequest rejects a pending proof with a mandatory remark.
type RejectPaymentRequest struct {
	EnrollmentID string `validate:"required"`
	Remark       string `validate:"required"`
}

// PaymentService handles the payment-proof leg of the enrollment lifecycle:
// proof upload inside the payment window, then admin accept or reject.
type PaymentService struct {
	repo      paymentRepository
	courses   paymentCourseReader
	students  paymentStudentReader
	files     storage.FileStore
	notifier  paymentNotifier
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(repo paymentRepository, courses paymentCourseReader, students paymentStudentReader, files storage.FileStore, notifier paymentNotifier, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if clk == nil {
		clk = clock.System{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:      repo,
		courses:   courses,
		students:  students,
		files:     files,
		notifier:  notifier,
		clock:     clk,
		validator: validate,
		logger:    logger,
	}
}

// UploadProof stores a payment proof document and marks the payment pending.
// Only enrolled records may submit, and only inside the course's payment
// window. The conditional update guards against the enrollment changing state
// between the checks and the write; a lost race cleans up the stored file.
func (s *PaymentService) UploadProof(ctx context.Context, req UploadProofRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment proof payload")
	}

	enrollment, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("only enrolled students may upload payment proof; current status is %q", enrollment.Status))
	}

	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	now := s.clock.Now()
	if course.PaymentReceiveStartDate != nil && now.Before(*course.PaymentReceiveStartDate) {
		return nil, appErrors.Clone(appErrors.ErrWindowClosed, "payment window has not opened yet")
	}
	if course.PaymentReceiveEndDate != nil && now.After(*course.PaymentReceiveEndDate) {
		return nil, appErrors.Clone(appErrors.ErrWindowClosed, "payment window is closed")
	}

	stored, err := s.files.Store(req.Data, "payment-proofs/"+enrollment.CourseID, req.FileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store payment proof")
	}

	attached, err := s.repo.AttachPaymentProof(ctx, enrollment.ID, stored.URL, stored.Handle, now)
	if err != nil {
		s.discard(stored.Handle)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach payment proof")
	}
	if !attached {
		s.discard(stored.Handle)
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed state during upload")
	}

	return s.loadEnrollment(ctx, enrollment.ID)
}

// Accept approves a pending payment and confirms the enrollment. The record
// must still be enrolled with a pending proof; anything else reports the
// actual current state.
func (s *PaymentService) Accept(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	accepted, err := s.repo.AcceptPayment(ctx, enrollmentID, s.clock.Now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept payment")
	}
	if !accepted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("payment must be pending on an enrolled record; current status is %q with payment %q",
				enrollment.Status, enrollment.PaymentReceived))
	}

	updated, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	s.notifyReviewed(ctx, updated, true, "")
	return updated, nil
}

// Reject turns down a pending proof, recording the remark and clearing the
// stored document so the student can resubmit. A failed file deletion is
// logged and reported but never blocks the status change.
func (s *PaymentService) Reject(ctx context.Context, req RejectPaymentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a rejection remark is required")
	}

	enrollment, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	rejected, err := s.repo.RejectPayment(ctx, req.EnrollmentID, req.Remark)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject payment")
	}
	if !rejected {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("only pending payments can be rejected; current payment status is %q", enrollment.PaymentReceived))
	}

	if enrollment.PaymentProofHandle != "" {
		if err := s.files.Delete(enrollment.PaymentProofHandle); err != nil {
			s.logger.Warn("failed to delete rejected payment proof",
				zap.String("enrollment_id", enrollment.ID),
				zap.String("handle", enrollment.PaymentProofHandle),
				zap.Error(err))
		}
	}

	updated, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	s.notifyReviewed(ctx, updated, false, req.Remark)
	return updated, nil
}

func (s *PaymentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *PaymentService) discard(handle string) {
	if err := s.files.Delete(handle); err != nil {
		s.logger.Warn("failed to discard orphaned payment proof", zap.String("handle", handle), zap.Error(err))
	}
}

func (s *PaymentService) notifyReviewed(ctx context.Context, enrollment *models.Enrollment, accepted bool, remark string) {
	if s.notifier == nil {
		return
	}
	student, err := s.students.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		s.logger.Warn("load student for payment notification failed", zap.String("student_id", enrollment.StudentID), zap.Error(err))
		return
	}
	s.notifier.PaymentReviewed(enrollment, student.Email, accepted, remark)
}
