package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	appErrors "github.com/aoabd/course-api/pkg/errors"
)

type studentDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListPrereqCategories(ctx context.Context, courseID string) ([]string, error)
}

type categoryNameResolver interface {
	ResolveNames(ctx context.Context, ids []string) (map[string]string, error)
}

// EvaluateEligibility checks a student against a course's prerequisite rules.
// It is a pure function: same inputs, same verdict, no side effects.
//
// An unverified account fails immediately with a single reason, since no other
// rule can rescue it. Every other rule is evaluated unconditionally and
// appends its own failure reason, so the caller sees all blockers at once.
// categoryNames is used only to render readable reasons; missing names fall
// back to the raw id.
func EvaluateEligibility(student *models.StudentDetail, course *models.Course, requiredCategoryIDs []string, categoryNames map[string]string) models.EligibilityVerdict {
	if !student.IsAccountVerified {
		return models.EligibilityVerdict{
			Eligible: false,
			Reasons:  []string{"account is not verified; enrollment requires an approved account"},
		}
	}

	var reasons []string

	if course.RestrictReenrollment {
		var entry *models.CourseRecord
		for i := range student.CourseRecords {
			if student.CourseRecords[i].CategoryID == course.CategoryID {
				entry = &student.CourseRecords[i]
				break
			}
		}
		switch {
		case entry == nil:
			reasons = append(reasons, "no course history found for this category; update your profile with your course history")
		case entry.Status == models.CourseRecordYes:
			reasons = append(reasons, "this course category is already completed; re-enrollment is not allowed")
		}
	}

	if course.PostGraduationRequired {
		satisfied := false
		for _, degree := range student.Degrees {
			if !degree.IsCompleted || degree.YearOfGraduation == 0 {
				continue
			}
			if course.PostGraduationYearFrom > 0 && course.PostGraduationYearTo > 0 {
				if degree.YearOfGraduation >= course.PostGraduationYearFrom && degree.YearOfGraduation <= course.PostGraduationYearTo {
					satisfied = true
					break
				}
				continue
			}
			satisfied = true
			break
		}
		if !satisfied {
			if course.PostGraduationYearFrom > 0 && course.PostGraduationYearTo > 0 {
				reasons = append(reasons, fmt.Sprintf("a completed post-graduation degree between %d and %d is required but not found in your records",
					course.PostGraduationYearFrom, course.PostGraduationYearTo))
			} else {
				reasons = append(reasons, "a completed post-graduation degree is required but not found in your records")
			}
		}
	}

	if course.MustHaveCategories {
		completed := make(map[string]bool, len(student.CourseRecords))
		for _, record := range student.CourseRecords {
			if record.Status == models.CourseRecordYes {
				completed[record.CategoryID] = true
			}
		}
		for _, categoryID := range requiredCategoryIDs {
			if completed[categoryID] {
				continue
			}
			name := categoryNames[categoryID]
			if name == "" {
				name = categoryID
			}
			reasons = append(reasons, fmt.Sprintf("completion of %q is required before enrolling", name))
		}
	}

	return models.EligibilityVerdict{Eligible: len(reasons) == 0, Reasons: reasons}
}

// EligibilityCheckRequest identifies the student/course pair to evaluate.
type EligibilityCheckRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
}

// EligibilityService loads the data EvaluateEligibility needs and exposes the
// standalone pre-check. EnrollmentService re-runs the same evaluation inside
// the enrollment path, so a stale pre-check is never trusted.
type EligibilityService struct {
	students  studentDetailReader
	courses   courseReader
	resolver  categoryNameResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(students studentDetailReader, courses courseReader, resolver categoryNameResolver, validate *validator.Validate, logger *zap.Logger) *EligibilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{students: students, courses: courses, resolver: resolver, validator: validate, logger: logger}
}

// Check evaluates eligibility for a student/course pair.
func (s *EligibilityService) Check(ctx context.Context, req EligibilityCheckRequest) (*models.EligibilityVerdict, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid eligibility payload")
	}
	student, course, requiredIDs, names, err := s.load(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, err
	}
	verdict := EvaluateEligibility(student, course, requiredIDs, names)
	return &verdict, nil
}

// load gathers everything the pure evaluator consumes.
func (s *EligibilityService) load(ctx context.Context, studentID, courseID string) (*models.StudentDetail, *models.Course, []string, map[string]string, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	student, err := s.students.FindDetailByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	var requiredIDs []string
	if course.MustHaveCategories {
		requiredIDs, err = s.courses.ListPrereqCategories(ctx, courseID)
		if err != nil {
			return nil, nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite categories")
		}
	}

	names := map[string]string{}
	if len(requiredIDs) > 0 && s.resolver != nil {
		resolved, err := s.resolver.ResolveNames(ctx, requiredIDs)
		if err != nil {
			// Display names are cosmetic; fall back to raw ids.
			s.logger.Warn("category name resolution failed", zap.Error(err))
		} else {
			names = resolved
		}
	}
	return student, course, requiredIDs, names, nil
}

// cacheTTL guards against unbounded retention of resolved names.
type cachedNameResolver struct {
	inner   categoryNameResolver
	cache   cacheStore
	metrics *MetricsService
	ttl     time.Duration
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// NewCachedNameResolver wraps a resolver with per-id Redis caching.
func NewCachedNameResolver(inner categoryNameResolver, cache cacheStore, metrics *MetricsService, ttl time.Duration) *cachedNameResolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &cachedNameResolver{inner: inner, cache: cache, metrics: metrics, ttl: ttl}
}

// ResolveNames serves category names from cache, falling back to the inner
// resolver for misses and back-filling the cache.
func (r *cachedNameResolver) ResolveNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	var missing []string
	for _, id := range ids {
		var name string
		if r.cache != nil && r.cache.Get(ctx, "category:name:"+id, &name) == nil && name != "" {
			names[id] = name
			r.metrics.RecordCacheOperation(true)
			continue
		}
		r.metrics.RecordCacheOperation(false)
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names, nil
	}
	resolved, err := r.inner.ResolveNames(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, name := range resolved {
		names[id] = name
		if r.cache != nil {
			_ = r.cache.Set(ctx, "category:name:"+id, name, r.ttl)
		}
	}
	return names, nil
}
