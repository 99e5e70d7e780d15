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

const courseColumns = `id, category_id, title, location, fee, start_date, end_date,
        registration_start_date, registration_end_date, payment_receive_start_date, payment_receive_end_date,
        student_cap, waitlist_cap, restrict_reenrollment, post_graduation_required,
        post_graduation_year_from, post_graduation_year_to, must_have_categories,
        details, cover_photo_url, cover_photo_handle, sequence, created_at, updated_at`

// CourseRepository handles persistence of course offerings.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses filtered by category and schedule status.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CategoryID != "" {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)+1))
		args = append(args, filter.CategoryID)
	}
	switch filter.Status {
	case models.CourseStatusArchived:
		conditions = append(conditions, fmt.Sprintf("end_date < $%d", len(args)+1))
		args = append(args, time.Now().UTC())
	case models.CourseStatusRunning:
		conditions = append(conditions, fmt.Sprintf("(end_date IS NULL OR end_date >= $%d)", len(args)+1))
		args = append(args, time.Now().UTC())
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

	query := fmt.Sprintf("SELECT %s FROM courses%s ORDER BY sequence ASC, created_at DESC LIMIT %d OFFSET %d",
		courseColumns, clause, size, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM courses" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, category_id, title, location, fee, start_date, end_date,
        registration_start_date, registration_end_date, payment_receive_start_date, payment_receive_end_date,
        student_cap, waitlist_cap, restrict_reenrollment, post_graduation_required,
        post_graduation_year_from, post_graduation_year_to, must_have_categories,
        details, cover_photo_url, cover_photo_handle, sequence, created_at, updated_at)
        VALUES (:id, :category_id, :title, :location, :fee, :start_date, :end_date,
        :registration_start_date, :registration_end_date, :payment_receive_start_date, :payment_receive_end_date,
        :student_cap, :waitlist_cap, :restrict_reenrollment, :post_graduation_required,
        :post_graduation_year_from, :post_graduation_year_to, :must_have_categories,
        :details, :cover_photo_url, :cover_photo_handle, :sequence, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update rewrites the mutable course fields, including the capacity and
// window fields the enrollment core reads.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET category_id = :category_id, title = :title, location = :location,
        fee = :fee, start_date = :start_date, end_date = :end_date,
        registration_start_date = :registration_start_date, registration_end_date = :registration_end_date,
        payment_receive_start_date = :payment_receive_start_date, payment_receive_end_date = :payment_receive_end_date,
        student_cap = :student_cap, waitlist_cap = :waitlist_cap,
        restrict_reenrollment = :restrict_reenrollment, post_graduation_required = :post_graduation_required,
        post_graduation_year_from = :post_graduation_year_from, post_graduation_year_to = :post_graduation_year_to,
        must_have_categories = :must_have_categories, details = :details,
        cover_photo_url = :cover_photo_url, cover_photo_handle = :cover_photo_handle,
        sequence = :sequence, updated_at = :updated_at
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update course: no rows affected")
	}
	return nil
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// ListPrereqCategories returns the required-category set for a course.
func (r *CourseRepository) ListPrereqCategories(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT category_id FROM course_prereq_categories WHERE course_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisite categories: %w", err)
	}
	return ids, nil
}

// ReplacePrereqCategories rewrites the required-category set.
func (r *CourseRepository) ReplacePrereqCategories(ctx context.Context, courseID string, categoryIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prerequisite update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_prereq_categories WHERE course_id = $1`, courseID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear prerequisite categories: %w", err)
	}
	for _, categoryID := range categoryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_prereq_categories (course_id, category_id) VALUES ($1, $2)`,
			courseID, categoryID); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert prerequisite category: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prerequisite update: %w", err)
	}
	return nil
}

// ReplaceContacts rewrites the notification contact list for a course.
func (r *CourseRepository) ReplaceContacts(ctx context.Context, courseID string, contacts []models.CourseContact) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contact update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_contacts WHERE course_id = $1`, courseID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear course contacts: %w", err)
	}
	for _, contact := range contacts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_contacts (id, course_id, name, email) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), courseID, contact.Name, contact.Email); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert course contact: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit contact update: %w", err)
	}
	return nil
}

// ReplaceRecipients rewrites the role-based certificate recipient list.
func (r *CourseRepository) ReplaceRecipients(ctx context.Context, courseID string, recipients []models.CourseRecipient) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recipient update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_recipients WHERE course_id = $1`, courseID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear course recipients: %w", err)
	}
	for _, recipient := range recipients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_recipients (course_id, role_category_id, student_id) VALUES ($1, $2, $3)`,
			courseID, recipient.RoleCategoryID, recipient.StudentID); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert course recipient: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recipient update: %w", err)
	}
	return nil
}

// ListContacts returns the notification contacts for a course.
func (r *CourseRepository) ListContacts(ctx context.Context, courseID string) ([]models.CourseContact, error) {
	const query = `SELECT id, course_id, name, email FROM course_contacts WHERE course_id = $1`
	var contacts []models.CourseContact
	if err := r.db.SelectContext(ctx, &contacts, query, courseID); err != nil {
		return nil, fmt.Errorf("list course contacts: %w", err)
	}
	return contacts, nil
}

// ListRecipients returns the role-based certificate recipients for a course.
func (r *CourseRepository) ListRecipients(ctx context.Context, courseID string) ([]models.CourseRecipient, error) {
	const query = `SELECT course_id, role_category_id, student_id FROM course_recipients WHERE course_id = $1`
	var recipients []models.CourseRecipient
	if err := r.db.SelectContext(ctx, &recipients, query, courseID); err != nil {
		return nil, fmt.Errorf("list course recipients: %w", err)
	}
	return recipients, nil
}

// PaymentWindow pairs a course with its payment-receive deadline for the
// expiry reconciler.
type PaymentWindow struct {
	CourseID              string     `db:"id"`
	PaymentReceiveEndDate *time.Time `db:"payment_receive_end_date"`
}

// ListPaymentWindows returns every course's payment deadline.
func (r *CourseRepository) ListPaymentWindows(ctx context.Context) ([]PaymentWindow, error) {
	const query = `SELECT id, payment_receive_end_date FROM courses`
	var windows []PaymentWindow
	if err := r.db.SelectContext(ctx, &windows, query); err != nil {
		return nil, fmt.Errorf("list payment windows: %w", err)
	}
	return windows, nil
}
