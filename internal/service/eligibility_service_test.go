package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
)

func verifiedStudent() *models.StudentDetail {
	return &models.StudentDetail{Student: models.Student{ID: "s1", IsAccountVerified: true}}
}

func TestEvaluateEligibilityUnverifiedAccountShortCircuits(t *testing.T) {
	student := &models.StudentDetail{Student: models.Student{ID: "s1"}}
	course := &models.Course{
		ID:         "c1",
		CategoryID: "cat1",
		PrerequisiteRules: models.PrerequisiteRules{
			RestrictReenrollment: true,
			MustHaveCategories:   true,
		},
	}

	verdict := EvaluateEligibility(student, course, []string{"cat2"}, nil)
	assert.False(t, verdict.Eligible)
	require.Len(t, verdict.Reasons, 1)
	assert.Contains(t, verdict.Reasons[0], "account is not verified")
}

func TestEvaluateEligibilityNoRulesPasses(t *testing.T) {
	verdict := EvaluateEligibility(verifiedStudent(), &models.Course{ID: "c1", CategoryID: "cat1"}, nil, nil)
	assert.True(t, verdict.Eligible)
	assert.Empty(t, verdict.Reasons)
}

func TestEvaluateEligibilityRestrictReenrollment(t *testing.T) {
	course := &models.Course{
		ID:                "c1",
		CategoryID:        "cat1",
		PrerequisiteRules: models.PrerequisiteRules{RestrictReenrollment: true},
	}

	// No ledger entry for the category.
	verdict := EvaluateEligibility(verifiedStudent(), course, nil, nil)
	assert.False(t, verdict.Eligible)
	require.Len(t, verdict.Reasons, 1)
	assert.Contains(t, verdict.Reasons[0], "update your profile")

	// Entry marked completed.
	completed := verifiedStudent()
	completed.CourseRecords = []models.CourseRecord{{CategoryID: "cat1", Status: models.CourseRecordYes}}
	verdict = EvaluateEligibility(completed, course, nil, nil)
	assert.False(t, verdict.Eligible)
	require.Len(t, verdict.Reasons, 1)
	assert.Contains(t, verdict.Reasons[0], "already completed")

	// Entry present but not completed passes.
	pending := verifiedStudent()
	pending.CourseRecords = []models.CourseRecord{{CategoryID: "cat1", Status: models.CourseRecordNo}}
	verdict = EvaluateEligibility(pending, course, nil, nil)
	assert.True(t, verdict.Eligible)
}

func TestEvaluateEligibilityPostGraduationYearRange(t *testing.T) {
	course := &models.Course{
		ID:         "c1",
		CategoryID: "cat1",
		PrerequisiteRules: models.PrerequisiteRules{
			PostGraduationRequired: true,
			PostGraduationYearFrom: 2010,
			PostGraduationYearTo:   2020,
		},
	}

	inRange := verifiedStudent()
	inRange.Degrees = []models.Degree{{DegreeName: "FCPS", YearOfGraduation: 2015, IsCompleted: true}}
	assert.True(t, EvaluateEligibility(inRange, course, nil, nil).Eligible)

	outOfRange := verifiedStudent()
	outOfRange.Degrees = []models.Degree{{DegreeName: "FCPS", YearOfGraduation: 2005, IsCompleted: true}}
	verdict := EvaluateEligibility(outOfRange, course, nil, nil)
	assert.False(t, verdict.Eligible)
	assert.Contains(t, verdict.Reasons[0], "between 2010 and 2020")

	incomplete := verifiedStudent()
	incomplete.Degrees = []models.Degree{{DegreeName: "FCPS", YearOfGraduation: 2015, IsCompleted: false}}
	assert.False(t, EvaluateEligibility(incomplete, course, nil, nil).Eligible)
}

func TestEvaluateEligibilityMustHaveCategories(t *testing.T) {
	course := &models.Course{
		ID:                "c1",
		CategoryID:        "cat1",
		PrerequisiteRules: models.PrerequisiteRules{MustHaveCategories: true},
	}
	names := map[string]string{"cat2": "Basic Life Support", "cat3": "Advanced Trauma"}

	student := verifiedStudent()
	student.CourseRecords = []models.CourseRecord{{CategoryID: "cat2", Status: models.CourseRecordYes}}

	verdict := EvaluateEligibility(student, course, []string{"cat2", "cat3"}, names)
	assert.False(t, verdict.Eligible)
	require.Len(t, verdict.Reasons, 1)
	assert.Contains(t, verdict.Reasons[0], "Advanced Trauma")

	student.CourseRecords = append(student.CourseRecords, models.CourseRecord{CategoryID: "cat3", Status: models.CourseRecordYes})
	assert.True(t, EvaluateEligibility(student, course, []string{"cat2", "cat3"}, names).Eligible)
}

func TestEvaluateEligibilityAccumulatesAllReasons(t *testing.T) {
	course := &models.Course{
		ID:         "c1",
		CategoryID: "cat1",
		PrerequisiteRules: models.PrerequisiteRules{
			RestrictReenrollment:   true,
			PostGraduationRequired: true,
			MustHaveCategories:     true,
		},
	}

	verdict := EvaluateEligibility(verifiedStudent(), course, []string{"cat2"}, nil)
	assert.False(t, verdict.Eligible)
	assert.Len(t, verdict.Reasons, 3)

	// Same inputs, same verdict.
	again := EvaluateEligibility(verifiedStudent(), course, []string{"cat2"}, nil)
	assert.Equal(t, verdict, again)
}

type mockStudentDetailReader struct {
	students map[string]*models.StudentDetail
}

func (m *mockStudentDetailReader) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	courses map[string]*models.Course
	prereqs map[string][]string
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseReader) ListPrereqCategories(ctx context.Context, courseID string) ([]string, error) {
	return m.prereqs[courseID], nil
}

type mockNameResolver struct {
	names map[string]string
}

func (m *mockNameResolver) ResolveNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := m.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func TestEligibilityServiceCheck(t *testing.T) {
	students := &mockStudentDetailReader{students: map[string]*models.StudentDetail{"s1": verifiedStudent()}}
	courses := &mockCourseReader{
		courses: map[string]*models.Course{"c1": {
			ID:                "c1",
			CategoryID:        "cat1",
			PrerequisiteRules: models.PrerequisiteRules{MustHaveCategories: true},
		}},
		prereqs: map[string][]string{"c1": {"cat2"}},
	}
	svc := NewEligibilityService(students, courses, &mockNameResolver{names: map[string]string{"cat2": "Basic Life Support"}}, validator.New(), zap.NewNop())

	verdict, err := svc.Check(context.Background(), EligibilityCheckRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)
	assert.False(t, verdict.Eligible)
	require.Len(t, verdict.Reasons, 1)
	assert.Contains(t, verdict.Reasons[0], "Basic Life Support")
}

func TestEligibilityServiceCheckUnknownCourse(t *testing.T) {
	students := &mockStudentDetailReader{students: map[string]*models.StudentDetail{"s1": verifiedStudent()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{}}
	svc := NewEligibilityService(students, courses, &mockNameResolver{}, validator.New(), zap.NewNop())

	_, err := svc.Check(context.Background(), EligibilityCheckRequest{StudentID: "s1", CourseID: "missing"})
	require.Error(t, err)
}
