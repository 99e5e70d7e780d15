package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/storage"
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	SetAccountVerified(ctx context.Context, id string, verified bool) (bool, error)
	GetCourseRecord(ctx context.Context, studentID, categoryID string) (*models.CourseRecord, error)
	SaveCourseRecord(ctx context.Context, record *models.CourseRecord) error
}

// CourseHistoryRequest updates one entry of a student's completion ledger.
// The optional document is stored and appended to the entry.
type CourseHistoryRequest struct {
	StudentID      string `validate:"required"`
	CategoryID     string `validate:"required"`
	Status         string `validate:"required,oneof=yes no"`
	CompletionYear int
	FileName       string
	Document       []byte
}

// StudentService exposes student profiles to admins and lets students
// maintain their own course-history ledger.
type StudentService struct {
	repo       studentRepository
	categories categoryChecker
	files      storage.FileStore
	historyCap int
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, categories categoryChecker, files storage.FileStore, historyCap int, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if historyCap <= 0 {
		historyCap = 10
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:       repo,
		categories: categories,
		files:      files,
		historyCap: historyCap,
		validator:  validate,
		logger:     logger,
	}
}

// Get loads a full student profile with degrees and course history.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// SetAccountVerified approves or revokes a student's account verification.
// Unverified accounts fail every eligibility check.
func (s *StudentService) SetAccountVerified(ctx context.Context, id string, verified bool) (*models.Student, error) {
	updated, err := s.repo.SetAccountVerified(ctx, id, verified)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update verification")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload student")
	}
	return student, nil
}

// UpsertCourseHistory writes one ledger entry for a student, storing the
// supporting document when provided. Self-reported entries feed eligibility,
// so the category must exist.
func (s *StudentService) UpsertCourseHistory(ctx context.Context, req CourseHistoryRequest) (*models.CourseRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course history payload")
	}
	if _, err := s.categories.FindByID(ctx, req.CategoryID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course category: "+req.CategoryID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify category")
	}
	if _, err := s.repo.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	record, err := s.repo.GetCourseRecord(ctx, req.StudentID, req.CategoryID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course record")
	}
	if record == nil || err == sql.ErrNoRows {
		record = &models.CourseRecord{
			StudentID:  req.StudentID,
			CategoryID: req.CategoryID,
		}
	}
	record.Status = req.Status
	if req.CompletionYear != 0 {
		record.CompletionYear = req.CompletionYear
	}

	if len(req.Document) > 0 {
		stored, err := s.files.Store(req.Document, fmt.Sprintf("course-history/%s", req.StudentID), req.FileName)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
		}
		record.Documents = append(record.Documents, stored.URL)
		if len(record.Documents) > s.historyCap {
			record.Documents = record.Documents[len(record.Documents)-s.historyCap:]
		}
	}

	if err := s.repo.SaveCourseRecord(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save course record")
	}
	return record, nil
}
