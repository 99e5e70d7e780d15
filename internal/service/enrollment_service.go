package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/internal/repository"
	"github.com/aoabd/course-api/pkg/clock"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/export"
)

// rosterPageSize is the batch size for roster export pagination.
const rosterPageSize = 100

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Counts(ctx context.Context, courseID string) (models.CapacityCounts, error)
	CreateClassified(ctx context.Context, enrollment *models.Enrollment, classify func(models.CapacityCounts) models.AdmissionClass) (models.AdmissionClass, error)
	TransitionStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (bool, error)
}

type courseContactReader interface {
	ListContacts(ctx context.Context, courseID string) ([]models.CourseContact, error)
}

type enrollmentNotifier interface {
	EnrollmentCreated(course *models.Course, student *models.Student, status models.EnrollmentStatus, contacts []models.CourseContact)
}

// EnrollRequest describes an enrollment creation request.
type EnrollRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// EnrollResult reports the admission outcome of a successful request.
type EnrollResult struct {
	Enrollment *models.Enrollment        `json:"enrollment"`
	Class      models.AdmissionClass     `json:"class"`
	Verdict    models.EligibilityVerdict `json:"verdict"`
}

// EnrollmentService owns the enrollment record lifecycle: creation through
// eligibility and capacity accounting, and the admin waitlist promotion.
type EnrollmentService struct {
	repo        enrollmentRepository
	courses     courseReader
	contacts    courseContactReader
	students    studentDetailReader
	eligibility *EligibilityService
	notifier    enrollmentNotifier
	clock       clock.Clock
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, contacts courseContactReader, students studentDetailReader, eligibility *EligibilityService, notifier enrollmentNotifier, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if clk == nil {
		clk = clock.System{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		courses:     courses,
		contacts:    contacts,
		students:    students,
		eligibility: eligibility,
		notifier:    notifier,
		clock:       clk,
		validator:   validate,
		logger:      logger,
	}
}

// Enroll admits a student to a course, classifying them as enrolled or
// waitlisted. Eligibility is re-evaluated here regardless of any earlier
// pre-check, and the capacity count plus insert run atomically in the
// repository so concurrent requests cannot overbook.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	now := s.clock.Now()
	if course.RegistrationStartDate != nil && now.Before(*course.RegistrationStartDate) {
		return nil, appErrors.Clone(appErrors.ErrWindowClosed, "registration has not opened yet")
	}
	if course.RegistrationEndDate != nil && now.After(*course.RegistrationEndDate) {
		return nil, appErrors.Clone(appErrors.ErrWindowClosed, "registration is closed")
	}

	if _, err := s.repo.FindByCourseAndStudent(ctx, req.CourseID, req.StudentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}

	verdict, err := s.eligibility.Check(ctx, EligibilityCheckRequest{StudentID: req.StudentID, CourseID: req.CourseID})
	if err != nil {
		return nil, err
	}
	if !verdict.Eligible {
		return nil, appErrors.WithReasons(appErrors.ErrIneligible, verdict.Reasons)
	}

	enrollment := &models.Enrollment{
		CourseID:        req.CourseID,
		StudentID:       req.StudentID,
		PaymentReceived: models.PaymentStatusNone,
	}
	class, err := s.repo.CreateClassified(ctx, enrollment, func(counts models.CapacityCounts) models.AdmissionClass {
		return ClassifyAdmission(course.StudentCap, course.WaitlistCap, counts.Enrolled, counts.Waitlisted)
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if class == models.AdmissionRejected {
		return nil, appErrors.Clone(appErrors.ErrCapacityFull, "both enrollment and waitlist capacities are full")
	}

	s.notifyCreated(ctx, course, req.StudentID, enrollment.Status)

	return &EnrollResult{Enrollment: enrollment, Class: class, Verdict: *verdict}, nil
}

// MoveToEnrolled promotes a waitlisted enrollment. Any other source state is
// rejected with the actual current status in the error.
func (s *EnrollmentService) MoveToEnrolled(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	moved, err := s.repo.TransitionStatus(ctx, id, models.EnrollmentStatusWaitlist, models.EnrollmentStatusEnrolled)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move enrollment")
	}
	if !moved {
		// The guard lost; report whatever the record is now.
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			current = enrollment
		}
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("only waitlisted enrollments can be moved to enrolled; current status is %q", current.Status))
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload enrollment")
	}
	return updated, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ExportRoster renders a course's full enrollment roster as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, courseID, format string) ([]byte, string, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	var details []models.EnrollmentDetail
	for page := 1; ; page++ {
		batch, total, err := s.repo.List(ctx, models.EnrollmentFilter{CourseID: courseID, Page: page, PageSize: rosterPageSize})
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
		}
		details = append(details, batch...)
		if len(batch) == 0 || len(details) >= total {
			break
		}
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "BMDC No", "Email", "Status", "Payment", "Attended"},
	}
	for _, detail := range details {
		attended := "no"
		if detail.IsAttend {
			attended = "yes"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":     detail.StudentName,
			"BMDC No":  detail.StudentBMDC,
			"Email":    detail.StudentEmail,
			"Status":   string(detail.Status),
			"Payment":  string(detail.PaymentReceived),
			"Attended": attended,
		})
	}

	switch format {
	case "csv", "":
		data, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return data, "text/csv", nil
	case "pdf":
		data, err := export.NewPDFExporter().Render(dataset, course.Title+" roster")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return data, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+format)
	}
}

// Counts exposes committed capacity counts for a course.
func (s *EnrollmentService) Counts(ctx context.Context, courseID string) (*models.CapacityCounts, error) {
	counts, err := s.repo.Counts(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return &counts, nil
}

// notifyCreated alerts course contacts about a new admission. Best effort.
func (s *EnrollmentService) notifyCreated(ctx context.Context, course *models.Course, studentID string, status models.EnrollmentStatus) {
	if s.notifier == nil {
		return
	}
	student, err := s.students.FindDetailByID(ctx, studentID)
	if err != nil {
		s.logger.Warn("load student for notification failed", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	contacts, err := s.contacts.ListContacts(ctx, course.ID)
	if err != nil {
		s.logger.Warn("load course contacts failed", zap.String("course_id", course.ID), zap.Error(err))
		return
	}
	s.notifier.EnrollmentCreated(course, &student.Student, status, contacts)
}
