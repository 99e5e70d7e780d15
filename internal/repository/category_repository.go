package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aoabd/course-api/internal/models"
)

// CategoryRepository handles persistence of course categories.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs the repository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// List returns all categories ordered by their configured sequence.
func (r *CategoryRepository) List(ctx context.Context) ([]models.CourseCategory, error) {
	const query = `SELECT id, name, participation, sequence, created_at, updated_at
        FROM course_categories ORDER BY sequence ASC, created_at DESC`
	var categories []models.CourseCategory
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// FindByID returns a category by its ID.
func (r *CategoryRepository) FindByID(ctx context.Context, id string) (*models.CourseCategory, error) {
	const query = `SELECT id, name, participation, sequence, created_at, updated_at
        FROM course_categories WHERE id = $1`
	var category models.CourseCategory
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		return nil, err
	}
	return &category, nil
}

// ResolveNames maps category ids to display names. Unknown ids are omitted.
func (r *CategoryRepository) ResolveNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("SELECT id, name FROM course_categories WHERE id IN (%s)", strings.Join(placeholders, ","))
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve category names: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan category name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// Create persists a new category.
func (r *CategoryRepository) Create(ctx context.Context, category *models.CourseCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	const query = `INSERT INTO course_categories (id, name, participation, sequence, created_at, updated_at)
        VALUES (:id, :name, :participation, :sequence, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// UpdateSequences applies a new display order in a single transaction.
func (r *CategoryRepository) UpdateSequences(ctx context.Context, orderedIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sequence update: %w", err)
	}
	const query = `UPDATE course_categories SET sequence = $2, updated_at = $3 WHERE id = $1`
	now := time.Now().UTC()
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, query, id, i+1, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("update category sequence: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sequence update: %w", err)
	}
	return nil
}
