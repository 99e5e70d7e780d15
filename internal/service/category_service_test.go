package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	appErrors "github.com/aoabd/course-api/pkg/errors"
)

type mockCategoryRepo struct {
	categories []models.CourseCategory
	listCalls  int
	reordered  []string
}

func (m *mockCategoryRepo) List(ctx context.Context) ([]models.CourseCategory, error) {
	m.listCalls++
	return m.categories, nil
}

func (m *mockCategoryRepo) FindByID(ctx context.Context, id string) (*models.CourseCategory, error) {
	for i := range m.categories {
		if m.categories[i].ID == id {
			return &m.categories[i], nil
		}
	}
	return nil, appErrors.ErrNotFound
}

func (m *mockCategoryRepo) Create(ctx context.Context, category *models.CourseCategory) error {
	category.ID = "new-cat"
	m.categories = append(m.categories, *category)
	return nil
}

func (m *mockCategoryRepo) UpdateSequences(ctx context.Context, orderedIDs []string) error {
	m.reordered = orderedIDs
	return nil
}

type mockCategoryCache struct {
	entries map[string][]byte
	deleted []string
}

func newMockCategoryCache() *mockCategoryCache {
	return &mockCategoryCache{entries: make(map[string][]byte)}
}

func (m *mockCategoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCategoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCategoryCache) Delete(ctx context.Context, key string) error {
	delete(m.entries, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func TestCategoryListPopulatesCache(t *testing.T) {
	repo := &mockCategoryRepo{categories: []models.CourseCategory{
		{ID: "cat1", Name: "ACLS"},
		{ID: "cat2", Name: "ATLS"},
	}}
	cache := newMockCategoryCache()
	svc := NewCategoryService(repo, cache, time.Minute, nil, zap.NewNop())

	first, fromCache, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Len(t, first, 2)

	second, fromCache, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listCalls)
}

func TestCategoryWritesInvalidateCache(t *testing.T) {
	repo := &mockCategoryRepo{categories: []models.CourseCategory{{ID: "cat1", Name: "ACLS"}}}
	cache := newMockCategoryCache()
	svc := NewCategoryService(repo, cache, time.Minute, nil, zap.NewNop())

	_, _, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Contains(t, cache.entries, categoryListCacheKey)

	_, err = svc.Create(context.Background(), CategoryInput{Name: "Workshop", Participation: 1})
	require.NoError(t, err)
	assert.NotContains(t, cache.entries, categoryListCacheKey)

	_, _, err = svc.List(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Reorder(context.Background(), []string{"new-cat", "cat1"}))
	assert.NotContains(t, cache.entries, categoryListCacheKey)
	assert.Equal(t, []string{"new-cat", "cat1"}, repo.reordered)
}

func TestCategoryListWithoutCache(t *testing.T) {
	repo := &mockCategoryRepo{categories: []models.CourseCategory{{ID: "cat1", Name: "ACLS"}}}
	svc := NewCategoryService(repo, nil, 0, nil, zap.NewNop())

	categories, fromCache, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Len(t, categories, 1)
}

func TestCategoryCreateRejectsMissingName(t *testing.T) {
	svc := NewCategoryService(&mockCategoryRepo{}, nil, 0, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CategoryInput{Participation: 0})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCategoryReorderRequiresIDs(t *testing.T) {
	svc := NewCategoryService(&mockCategoryRepo{}, nil, 0, nil, zap.NewNop())

	err := svc.Reorder(context.Background(), nil)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
