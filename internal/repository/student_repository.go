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

const studentColumns = `id, name, bmdc_no, email, contact_number, is_email_verified,
        is_bmdc_verified, is_account_verified, picture_url, picture_handle, created_at, updated_at`

// StudentRepository handles persistence of student profiles and their
// completion ledger.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by their ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindDetailByID returns a student with degrees and course ledger attached.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &models.StudentDetail{Student: *student}

	const degreeQuery = `SELECT id, student_id, degree_name, year_of_graduation, is_completed
        FROM student_degrees WHERE student_id = $1`
	if err := r.db.SelectContext(ctx, &detail.Degrees, degreeQuery, id); err != nil {
		return nil, fmt.Errorf("load student degrees: %w", err)
	}

	const recordQuery = `SELECT id, student_id, category_id, status, completion_year, documents, updated_at
        FROM student_course_records WHERE student_id = $1`
	if err := r.db.SelectContext(ctx, &detail.CourseRecords, recordQuery, id); err != nil {
		return nil, fmt.Errorf("load course records: %w", err)
	}
	return detail, nil
}

// List returns students filtered by search text and verification state.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR bmdc_no ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Verified != nil {
		conditions = append(conditions, fmt.Sprintf("is_account_verified = $%d", len(args)+1))
		args = append(args, *filter.Verified)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM students%s ORDER BY name ASC LIMIT %d OFFSET %d",
		studentColumns, clause, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM students" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// SetAccountVerified flips the admin approval flag that gates enrollment.
func (r *StudentRepository) SetAccountVerified(ctx context.Context, id string, verified bool) (bool, error) {
	const query = `UPDATE students SET is_account_verified = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, verified, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set account verified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set account verified: %w", err)
	}
	return affected > 0, nil
}

// GetCourseRecord returns the ledger entry for one category, or sql.ErrNoRows.
func (r *StudentRepository) GetCourseRecord(ctx context.Context, studentID, categoryID string) (*models.CourseRecord, error) {
	const query = `SELECT id, student_id, category_id, status, completion_year, documents, updated_at
        FROM student_course_records WHERE student_id = $1 AND category_id = $2`
	var record models.CourseRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, categoryID); err != nil {
		return nil, err
	}
	return &record, nil
}

// SaveCourseRecord upserts a ledger entry keyed by (student, category).
func (r *StudentRepository) SaveCourseRecord(ctx context.Context, record *models.CourseRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO student_course_records (id, student_id, category_id, status, completion_year, documents, updated_at)
        VALUES (:id, :student_id, :category_id, :status, :completion_year, :documents, :updated_at)
        ON CONFLICT (student_id, category_id) DO UPDATE SET
        status = EXCLUDED.status, completion_year = EXCLUDED.completion_year,
        documents = EXCLUDED.documents, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("save course record: %w", err)
	}
	return nil
}

// CompletedCategories returns the set of category ids the student holds a
// "yes" ledger entry for.
func (r *StudentRepository) CompletedCategories(ctx context.Context, studentID string) (map[string]bool, error) {
	const query = `SELECT category_id FROM student_course_records WHERE student_id = $1 AND status = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID, models.CourseRecordYes); err != nil {
		return nil, fmt.Errorf("list completed categories: %w", err)
	}
	completed := make(map[string]bool, len(ids))
	for _, id := range ids {
		completed[id] = true
	}
	return completed, nil
}
