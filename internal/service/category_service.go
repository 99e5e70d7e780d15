package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	appErrors "github.com/aoabd/course-api/pkg/errors"
)

type categoryRepository interface {
	List(ctx context.Context) ([]models.CourseCategory, error)
	FindByID(ctx context.Context, id string) (*models.CourseCategory, error)
	Create(ctx context.Context, category *models.CourseCategory) error
	UpdateSequences(ctx context.Context, orderedIDs []string) error
}

type categoryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const categoryListCacheKey = "categories:list"

// CategoryInput carries the writable fields of a course category.
type CategoryInput struct {
	Name          string `json:"name" validate:"required"`
	Participation int    `json:"participation" validate:"oneof=0 1"`
}

// CategoryService manages the course category catalogue and its display
// order. The full list is small and read often, so it is cached as one
// Redis entry and invalidated on any write.
type CategoryService struct {
	repo      categoryRepository
	cache     categoryCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCategoryService constructs CategoryService. A nil cache disables
// list caching.
func NewCategoryService(repo categoryRepository, cache categoryCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CategoryService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns every category in display order. The second return reports
// whether the list was served from cache.
func (s *CategoryService) List(ctx context.Context) ([]models.CourseCategory, bool, error) {
	if s.cache != nil {
		var cached []models.CourseCategory
		if err := s.cache.Get(ctx, categoryListCacheKey, &cached); err == nil {
			return cached, true, nil
		} else if err != appErrors.ErrCacheMiss {
			s.logger.Warn("category cache read failed", zap.Error(err))
		}
	}
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, categoryListCacheKey, categories, s.cacheTTL); err != nil {
			s.logger.Warn("category cache write failed", zap.Error(err))
		}
	}
	return categories, false, nil
}

// Get loads a single category.
func (s *CategoryService) Get(ctx context.Context, id string) (*models.CourseCategory, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	return category, nil
}

// Create validates and persists a new category at the end of the order.
func (s *CategoryService) Create(ctx context.Context, input CategoryInput) (*models.CourseCategory, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}
	category := &models.CourseCategory{
		Name:          input.Name,
		Participation: models.ParticipationType(input.Participation),
	}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}
	s.invalidate(ctx)
	return category, nil
}

// Reorder rewrites category sequences to match the given id order.
func (s *CategoryService) Reorder(ctx context.Context, orderedIDs []string) error {
	if len(orderedIDs) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "ordered id list is required")
	}
	if err := s.repo.UpdateSequences(ctx, orderedIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder categories")
	}
	s.invalidate(ctx)
	return nil
}

func (s *CategoryService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, categoryListCacheKey); err != nil {
		s.logger.Warn("category cache invalidation failed", zap.Error(err))
	}
}
