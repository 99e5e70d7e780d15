package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aoabd/course-api/internal/models"
)

const enrollmentColumns = `id, course_id, student_id, status, payment_received,
        payment_proof_url, payment_proof_handle, payment_received_at, is_attend, remark, enrolled_at, updated_at`

// uniqueViolation is the Postgres error code raised by the
// (course_id, student_id) unique constraint on duplicate enrollment.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint conflict.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// EnrollmentRepository handles persistence of enrollment records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByCourseAndStudent returns the record for a (course, student) pair.
func (r *EnrollmentRepository) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE course_id = $1 AND student_id = $2", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// List returns enrollments with student and course context.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf(`SELECT e.id, e.course_id, e.student_id, e.status, e.payment_received,
        e.payment_proof_url, e.payment_proof_handle, e.payment_received_at, e.is_attend, e.remark, e.enrolled_at, e.updated_at,
        s.name AS student_name, s.bmdc_no AS student_bmdc, s.email AS student_email, c.title AS course_title
        %s ORDER BY e.enrolled_at ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// Counts returns committed admission-class counts for a course. Confirmed
// records keep occupying primary seats; expired ones release them.
func (r *EnrollmentRepository) Counts(ctx context.Context, courseID string) (models.CapacityCounts, error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE status IN ('enrolled', 'confirmed')) AS enrolled,
        COUNT(*) FILTER (WHERE status = 'waitlist') AS waitlisted
        FROM enrollments WHERE course_id = $1`
	var counts models.CapacityCounts
	if err := r.db.GetContext(ctx, &counts, query, courseID); err != nil {
		return models.CapacityCounts{}, fmt.Errorf("count enrollments: %w", err)
	}
	return counts, nil
}

// CreateClassified performs the serialized count-then-insert sequence. The
// course row is locked for the duration of the transaction so concurrent
// requests for the same course observe consistent counts and cannot overbook.
// The classify callback receives committed counts and decides the admission
// class; AdmissionRejected aborts without inserting.
func (r *EnrollmentRepository) CreateClassified(ctx context.Context, enrollment *models.Enrollment, classify func(models.CapacityCounts) models.AdmissionClass) (models.AdmissionClass, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin enrollment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var lockedID string
	if err := tx.GetContext(ctx, &lockedID, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, enrollment.CourseID); err != nil {
		return "", fmt.Errorf("lock course: %w", err)
	}

	const countQuery = `SELECT
        COUNT(*) FILTER (WHERE status IN ('enrolled', 'confirmed')) AS enrolled,
        COUNT(*) FILTER (WHERE status = 'waitlist') AS waitlisted
        FROM enrollments WHERE course_id = $1`
	var counts models.CapacityCounts
	if err := tx.GetContext(ctx, &counts, countQuery, enrollment.CourseID); err != nil {
		return "", fmt.Errorf("count enrollments: %w", err)
	}

	class := classify(counts)
	if class == models.AdmissionRejected {
		return models.AdmissionRejected, nil
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now
	enrollment.Status = models.EnrollmentStatus(class)
	if enrollment.PaymentReceived == "" {
		enrollment.PaymentReceived = models.PaymentStatusNone
	}

	const insertQuery = `INSERT INTO enrollments (id, course_id, student_id, status, payment_received,
        payment_proof_url, payment_proof_handle, payment_received_at, is_attend, remark, enrolled_at, updated_at)
        VALUES (:id, :course_id, :student_id, :status, :payment_received,
        :payment_proof_url, :payment_proof_handle, :payment_received_at, :is_attend, :remark, :enrolled_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		if IsUniqueViolation(err) {
			return "", err
		}
		return "", fmt.Errorf("create enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit enrollment: %w", err)
	}
	return class, nil
}

// TransitionStatus moves an enrollment from one status to another. The update
// is conditional on the source status so concurrent transitions cannot
// clobber each other; it reports whether a row was actually changed.
func (r *EnrollmentRepository) TransitionStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (bool, error) {
	const query = `UPDATE enrollments SET status = $3, remark = '', updated_at = $4
        WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition enrollment: %w", err)
	}
	return affected > 0, nil
}

// AttachPaymentProof records a pending proof on an enrolled record.
func (r *EnrollmentRepository) AttachPaymentProof(ctx context.Context, id, proofURL, proofHandle string, receivedAt time.Time) (bool, error) {
	const query = `UPDATE enrollments SET payment_proof_url = $2, payment_proof_handle = $3,
        payment_received = 'pending', payment_received_at = $4, updated_at = $5
        WHERE id = $1 AND status = 'enrolled'`
	result, err := r.db.ExecContext(ctx, query, id, proofURL, proofHandle, receivedAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("attach payment proof: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach payment proof: %w", err)
	}
	return affected > 0, nil
}

// RejectPayment clears the proof reference and stores the reviewer's remark.
func (r *EnrollmentRepository) RejectPayment(ctx context.Context, id, remark string) (bool, error) {
	const query = `UPDATE enrollments SET payment_received = 'rejected', payment_proof_url = '',
        payment_proof_handle = '', remark = $2, updated_at = $3
        WHERE id = $1 AND payment_received = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, remark, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("reject payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject payment: %w", err)
	}
	return affected > 0, nil
}

// AcceptPayment approves the proof and confirms the enrollment in one write.
func (r *EnrollmentRepository) AcceptPayment(ctx context.Context, id string, receivedAt time.Time) (bool, error) {
	const query = `UPDATE enrollments SET payment_received = 'approved', status = 'confirmed',
        remark = '', payment_received_at = $2, updated_at = $3
        WHERE id = $1 AND status = 'enrolled' AND payment_received = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, receivedAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("accept payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accept payment: %w", err)
	}
	return affected > 0, nil
}

// SetAttendance replaces the attendance marking for a course: every listed
// enrollment becomes present, every other one absent.
func (r *EnrollmentRepository) SetAttendance(ctx context.Context, courseID string, presentIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET is_attend = FALSE, updated_at = $2 WHERE course_id = $1 AND is_attend = TRUE`,
		courseID, now); err != nil {
		return fmt.Errorf("clear attendance: %w", err)
	}
	if len(presentIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE enrollments SET is_attend = TRUE, updated_at = $3 WHERE course_id = $1 AND id = ANY($2)`,
			courseID, pq.Array(presentIDs), now); err != nil {
			return fmt.Errorf("mark attendance: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance update: %w", err)
	}
	return nil
}

// ListAttended returns the enrollments eligible for certificate issuance:
// confirmed and marked present. Attendance on an unpaid or expired record
// does not certify.
func (r *EnrollmentRepository) ListAttended(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.course_id, e.student_id, e.status, e.payment_received,
        e.payment_proof_url, e.payment_proof_handle, e.payment_received_at, e.is_attend, e.remark, e.enrolled_at, e.updated_at,
        s.name AS student_name, s.bmdc_no AS student_bmdc, s.email AS student_email, c.title AS course_title
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.course_id = $1 AND e.is_attend = TRUE AND e.status = 'confirmed'`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID); err != nil {
		return nil, fmt.Errorf("list attended enrollments: %w", err)
	}
	return enrollments, nil
}

// ExpireForCourse bulk-expires the course's enrolled records, clearing any
// remark. Waitlisted and confirmed records are untouched.
func (r *EnrollmentRepository) ExpireForCourse(ctx context.Context, courseID string) (int64, error) {
	const query = `UPDATE enrollments SET status = 'expired', remark = '', updated_at = $2
        WHERE course_id = $1 AND status = 'enrolled'`
	result, err := r.db.ExecContext(ctx, query, courseID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire enrollments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire enrollments: %w", err)
	}
	return affected, nil
}

// ReinstateForCourse bulk-restores the course's expired records to enrolled,
// used when a payment window is extended past now.
func (r *EnrollmentRepository) ReinstateForCourse(ctx context.Context, courseID string) (int64, error) {
	const query = `UPDATE enrollments SET status = 'enrolled', remark = '', updated_at = $2
        WHERE course_id = $1 AND status = 'expired'`
	result, err := r.db.ExecContext(ctx, query, courseID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reinstate enrollments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reinstate enrollments: %w", err)
	}
	return affected, nil
}
