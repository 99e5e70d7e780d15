package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/storage"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	ListPrereqCategories(ctx context.Context, courseID string) ([]string, error)
	ReplacePrereqCategories(ctx context.Context, courseID string, categoryIDs []string) error
	ListContacts(ctx context.Context, courseID string) ([]models.CourseContact, error)
	ReplaceContacts(ctx context.Context, courseID string, contacts []models.CourseContact) error
	ListRecipients(ctx context.Context, courseID string) ([]models.CourseRecipient, error)
	ReplaceRecipients(ctx context.Context, courseID string, recipients []models.CourseRecipient) error
}

type categoryChecker interface {
	FindByID(ctx context.Context, id string) (*models.CourseCategory, error)
}

// ContactInput is a notification contact on a course payload.
type ContactInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// RecipientInput designates a role-based certificate recipient.
type RecipientInput struct {
	RoleCategoryID string `json:"role_category_id" validate:"required"`
	StudentID      string `json:"student_id" validate:"required"`
}

// CourseInput carries the writable fields of a course offering.
type CourseInput struct {
	CategoryID string  `json:"category_id" validate:"required"`
	Title      string  `json:"title" validate:"required"`
	Location   string  `json:"location"`
	Fee        float64 `json:"fee" validate:"gte=0"`

	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`

	RegistrationStartDate   *time.Time `json:"registration_start_date"`
	RegistrationEndDate     *time.Time `json:"registration_end_date"`
	PaymentReceiveStartDate *time.Time `json:"payment_receive_start_date"`
	PaymentReceiveEndDate   *time.Time `json:"payment_receive_end_date"`

	StudentCap  int `json:"student_cap" validate:"gte=0"`
	WaitlistCap int `json:"waitlist_cap" validate:"gte=0"`

	RestrictReenrollment   bool `json:"restrict_reenrollment"`
	PostGraduationRequired bool `json:"post_graduation_required"`
	PostGraduationYearFrom int  `json:"post_graduation_year_from"`
	PostGraduationYearTo   int  `json:"post_graduation_year_to"`
	MustHaveCategories     bool `json:"must_have_categories"`

	Details           string           `json:"details"`
	PrereqCategoryIDs []string         `json:"prereq_category_ids"`
	Contacts          []ContactInput   `json:"contacts" validate:"dive"`
	Recipients        []RecipientInput `json:"recipients" validate:"dive"`
}

// CourseDetail bundles a course with its relations for read endpoints.
type CourseDetail struct {
	models.Course
	PrereqCategoryIDs []string                 `json:"prereq_category_ids"`
	Contacts          []models.CourseContact   `json:"contacts"`
	Recipients        []models.CourseRecipient `json:"recipients"`
}

// CourseService manages course offerings: CRUD, ordering, cover photos and
// the relations eligibility and certificates depend on.
type CourseService struct {
	repo       courseRepository
	categories categoryChecker
	files      storage.FileStore
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, categories categoryChecker, files storage.FileStore, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		repo:       repo,
		categories: categories,
		files:      files,
		validator:  validate,
		logger:     logger,
	}
}

// Create validates and persists a new course with its relations.
func (s *CourseService) Create(ctx context.Context, input CourseInput) (*CourseDetail, error) {
	if err := s.prepare(ctx, &input); err != nil {
		return nil, err
	}

	course := courseFromInput(input)
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	if err := s.saveRelations(ctx, course.ID, input); err != nil {
		return nil, err
	}
	return s.Get(ctx, course.ID)
}

// Update rewrites a course and its relations. Extending the payment window
// here is what triggers reinstatement on the next reconciler pass.
func (s *CourseService) Update(ctx context.Context, id string, input CourseInput) (*CourseDetail, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.prepare(ctx, &input); err != nil {
		return nil, err
	}

	course := courseFromInput(input)
	course.ID = id
	course.CoverPhotoURL = existing.CoverPhotoURL
	course.CoverPhotoHandle = existing.CoverPhotoHandle
	course.Sequence = existing.Sequence
	course.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	if err := s.saveRelations(ctx, id, input); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetCoverPhoto stores a new cover image, replacing and deleting the old one.
func (s *CourseService) SetCoverPhoto(ctx context.Context, id, fileName string, data []byte) (*CourseDetail, error) {
	course, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	stored, err := s.files.Store(data, "course-covers", fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store cover photo")
	}

	oldHandle := course.CoverPhotoHandle
	course.CoverPhotoURL = stored.URL
	course.CoverPhotoHandle = stored.Handle
	if err := s.repo.Update(ctx, course); err != nil {
		if deleteErr := s.files.Delete(stored.Handle); deleteErr != nil {
			s.logger.Warn("failed to discard orphaned cover photo", zap.String("handle", stored.Handle), zap.Error(deleteErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	if oldHandle != "" {
		if err := s.files.Delete(oldHandle); err != nil {
			s.logger.Warn("failed to delete replaced cover photo", zap.String("handle", oldHandle), zap.Error(err))
		}
	}
	return s.Get(ctx, id)
}

// Delete removes a course and its cover photo.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	course, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	if course.CoverPhotoHandle != "" {
		if err := s.files.Delete(course.CoverPhotoHandle); err != nil {
			s.logger.Warn("failed to delete cover photo", zap.String("handle", course.CoverPhotoHandle), zap.Error(err))
		}
	}
	return nil
}

// Get loads a course with its relations.
func (s *CourseService) Get(ctx context.Context, id string) (*CourseDetail, error) {
	course, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	prereqs, err := s.repo.ListPrereqCategories(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite categories")
	}
	contacts, err := s.repo.ListContacts(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contacts")
	}
	recipients, err := s.repo.ListRecipients(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipients")
	}
	return &CourseDetail{
		Course:            *course,
		PrereqCategoryIDs: prereqs,
		Contacts:          contacts,
		Recipients:        recipients,
	}, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *CourseService) load(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// prepare validates an input payload and checks the referenced categories
// actually exist.
func (s *CourseService) prepare(ctx context.Context, input *CourseInput) error {
	if err := s.validator.Struct(input); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if input.PostGraduationRequired && input.PostGraduationYearFrom > input.PostGraduationYearTo {
		return appErrors.Clone(appErrors.ErrValidation, "post-graduation year range is inverted")
	}
	for _, categoryID := range append([]string{input.CategoryID}, input.PrereqCategoryIDs...) {
		if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrValidation, "unknown course category: "+categoryID)
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify category")
		}
	}
	return nil
}

func (s *CourseService) saveRelations(ctx context.Context, courseID string, input CourseInput) error {
	if err := s.repo.ReplacePrereqCategories(ctx, courseID, input.PrereqCategoryIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save prerequisite categories")
	}
	contacts := make([]models.CourseContact, 0, len(input.Contacts))
	for _, contact := range input.Contacts {
		contacts = append(contacts, models.CourseContact{Name: contact.Name, Email: contact.Email})
	}
	if err := s.repo.ReplaceContacts(ctx, courseID, contacts); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save contacts")
	}
	recipients := make([]models.CourseRecipient, 0, len(input.Recipients))
	for _, recipient := range input.Recipients {
		recipients = append(recipients, models.CourseRecipient{
			CourseID:       courseID,
			RoleCategoryID: recipient.RoleCategoryID,
			StudentID:      recipient.StudentID,
		})
	}
	if err := s.repo.ReplaceRecipients(ctx, courseID, recipients); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save recipients")
	}
	return nil
}

func courseFromInput(input CourseInput) *models.Course {
	return &models.Course{
		CategoryID: input.CategoryID,
		Title:      input.Title,
		Location:   input.Location,
		Fee:        input.Fee,

		StartDate: input.StartDate,
		EndDate:   input.EndDate,

		RegistrationStartDate:   input.RegistrationStartDate,
		RegistrationEndDate:     input.RegistrationEndDate,
		PaymentReceiveStartDate: input.PaymentReceiveStartDate,
		PaymentReceiveEndDate:   input.PaymentReceiveEndDate,

		StudentCap:  input.StudentCap,
		WaitlistCap: input.WaitlistCap,

		PrerequisiteRules: models.PrerequisiteRules{
			RestrictReenrollment:   input.RestrictReenrollment,
			PostGraduationRequired: input.PostGraduationRequired,
			PostGraduationYearFrom: input.PostGraduationYearFrom,
			PostGraduationYearTo:   input.PostGraduationYearTo,
			MustHaveCategories:     input.MustHaveCategories,
		},

		Details: input.Details,
	}
}
