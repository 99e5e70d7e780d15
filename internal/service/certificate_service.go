package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/pkg/certificate"
	"github.com/aoabd/course-api/pkg/clock"
	"github.com/aoabd/course-api/pkg/config"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/storage"
)

type attendanceRepository interface {
	SetAttendance(ctx context.Context, courseID string, presentIDs []string) error
	ListAttended(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

type certificateCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListRecipients(ctx context.Context, courseID string) ([]models.CourseRecipient, error)
}

type certificateCategoryReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseCategory, error)
}

type certificateLedger interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	GetCourseRecord(ctx context.Context, studentID, categoryID string) (*models.CourseRecord, error)
	SaveCourseRecord(ctx context.Context, record *models.CourseRecord) error
}

// MarkAttendanceRequest replaces the attendance set of a course.
type MarkAttendanceRequest struct {
	CourseID   string   `json:"course_id" validate:"required"`
	PresentIDs []string `json:"present_ids"`
}

// IssueReport summarizes one certificate issuance run.
type IssueReport struct {
	AttendeeCertificates  int      `json:"attendee_certificates"`
	RecipientCertificates int      `json:"recipient_certificates"`
	Skipped               []string `json:"skipped,omitempty"`
}

// CertificateService marks course attendance and issues certificates into
// student completion ledgers.
type CertificateService struct {
	enrollments attendanceRepository
	courses     certificateCourseReader
	categories  certificateCategoryReader
	ledger      certificateLedger
	renderer    certificate.Renderer
	files       storage.FileStore
	cfg         config.CertificateConfig
	clock       clock.Clock
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(enrollments attendanceRepository, courses certificateCourseReader, categories certificateCategoryReader, ledger certificateLedger, renderer certificate.Renderer, files storage.FileStore, cfg config.CertificateConfig, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if clk == nil {
		clk = clock.System{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 10
	}
	return &CertificateService{
		enrollments: enrollments,
		courses:     courses,
		categories:  categories,
		ledger:      ledger,
		renderer:    renderer,
		files:       files,
		cfg:         cfg,
		clock:       clk,
		validator:   validate,
		logger:      logger,
	}
}

// MarkAttendance replaces the full attendance set for a course: everyone in
// PresentIDs is marked present, everyone else absent. Submitting twice with
// the same list is a no-op.
func (s *CertificateService) MarkAttendance(ctx context.Context, req MarkAttendanceRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.enrollments.SetAttendance(ctx, req.CourseID, req.PresentIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}
	return nil
}

// IssueCertificates runs both issuance paths for a course: attended
// confirmed enrollments get a certificate in the course's category, and
// designated recipients get one in their assigned role category. A failure
// for one person is recorded and skipped; it never aborts the whole run.
func (s *CertificateService) IssueCertificates(ctx context.Context, courseID string) (*IssueReport, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	category, err := s.categories.FindByID(ctx, course.CategoryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course category")
	}

	report := &IssueReport{}

	attended, err := s.enrollments.ListAttended(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attended enrollments")
	}
	for _, detail := range attended {
		// Only confirmed records certify; attendance alone is not enough.
		if detail.Status != models.EnrollmentStatusConfirmed {
			continue
		}
		if err := s.issueOne(ctx, course, category, detail.StudentID, detail.StudentName, "Participant"); err != nil {
			s.logger.Warn("certificate issuance failed",
				zap.String("course_id", courseID),
				zap.String("student_id", detail.StudentID),
				zap.Error(err))
			report.Skipped = append(report.Skipped, detail.StudentID)
			continue
		}
		report.AttendeeCertificates++
	}

	recipients, err := s.courses.ListRecipients(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course recipients")
	}
	for _, recipient := range recipients {
		roleCategory, err := s.categories.FindByID(ctx, recipient.RoleCategoryID)
		if err != nil {
			s.logger.Warn("role category lookup failed",
				zap.String("category_id", recipient.RoleCategoryID),
				zap.Error(err))
			report.Skipped = append(report.Skipped, recipient.StudentID)
			continue
		}
		student, err := s.ledger.FindByID(ctx, recipient.StudentID)
		if err != nil {
			s.logger.Warn("recipient lookup failed",
				zap.String("student_id", recipient.StudentID),
				zap.Error(err))
			report.Skipped = append(report.Skipped, recipient.StudentID)
			continue
		}
		if err := s.issueOne(ctx, course, roleCategory, student.ID, student.Name, roleCategory.Name); err != nil {
			s.logger.Warn("role certificate issuance failed",
				zap.String("course_id", courseID),
				zap.String("student_id", student.ID),
				zap.Error(err))
			report.Skipped = append(report.Skipped, student.ID)
			continue
		}
		report.RecipientCertificates++
	}

	return report, nil
}

// Preview renders a sample certificate without touching any ledger.
func (s *CertificateService) Preview(ctx context.Context, courseID, studentName, role string) ([]byte, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return s.render(course, studentName, role)
}

// issueOne renders and stores a certificate, then upserts the student's
// ledger entry for the category. Single-participation categories keep one
// document; multiple-participation categories accumulate up to the history
// cap, dropping the oldest on overflow. The completion year is set once and
// never overwritten.
func (s *CertificateService) issueOne(ctx context.Context, course *models.Course, category *models.CourseCategory, studentID, studentName, role string) error {
	rendered, err := s.render(course, studentName, role)
	if err != nil {
		return err
	}
	stored, err := s.files.Store(rendered, "certificates/"+course.ID, "certificate.pdf")
	if err != nil {
		return err
	}

	record, err := s.ledger.GetCourseRecord(ctx, studentID, category.ID)
	if err != nil && err != sql.ErrNoRows {
		s.discard(stored.Handle)
		return err
	}
	year := s.clock.Now().Year()
	if record == nil || err == sql.ErrNoRows {
		record = &models.CourseRecord{
			StudentID:  studentID,
			CategoryID: category.ID,
		}
	}
	record.Status = models.CourseRecordYes
	if record.CompletionYear == 0 {
		record.CompletionYear = year
	}
	if category.Participation == models.ParticipationSingle {
		record.Documents = []string{stored.URL}
	} else {
		record.Documents = append(record.Documents, stored.URL)
		if len(record.Documents) > s.cfg.HistoryCap {
			record.Documents = record.Documents[len(record.Documents)-s.cfg.HistoryCap:]
		}
	}
	if err := s.ledger.SaveCourseRecord(ctx, record); err != nil {
		s.discard(stored.Handle)
		return err
	}
	return nil
}

func (s *CertificateService) discard(handle string) {
	if err := s.files.Delete(handle); err != nil {
		s.logger.Warn("failed to discard orphaned certificate", zap.String("handle", handle), zap.Error(err))
	}
}

func (s *CertificateService) render(course *models.Course, studentName, role string) ([]byte, error) {
	location := course.Location
	if location == "" {
		location = s.cfg.Location
	}
	fields := certificate.Fields{
		StudentName: studentName,
		CourseTitle: course.Title,
		Role:        role,
		IssuedDate:  s.clock.Now().Format("2 January 2006"),
		Location:    location,
		Signers: []certificate.Signer{
			{Name: s.cfg.SignerOneName, Position: s.cfg.SignerOneTitle},
			{Name: s.cfg.SignerTwoName, Position: s.cfg.SignerTwoTitle},
		},
	}
	data, err := s.renderer.Render(fields)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return data, nil
}
