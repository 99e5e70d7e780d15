package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/aoabd/course-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCounts(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"enrolled", "waitlisted"}).AddRow(7, 2)
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE status IN ('enrolled', 'confirmed'))")).
		WithArgs("course-1").
		WillReturnRows(rows)

	counts, err := repo.Counts(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, 7, counts.Enrolled)
	require.Equal(t, 2, counts.Waitlisted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $3, remark = '', updated_at = $4")).
		WithArgs("enr-1", models.EnrollmentStatusWaitlist, models.EnrollmentStatusEnrolled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.TransitionStatus(context.Background(), "enr-1", models.EnrollmentStatusWaitlist, models.EnrollmentStatusEnrolled)
	require.NoError(t, err)
	require.True(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransitionStatusNoMatch(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $3")).
		WithArgs("enr-1", models.EnrollmentStatusWaitlist, models.EnrollmentStatusEnrolled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.TransitionStatus(context.Background(), "enr-1", models.EnrollmentStatusWaitlist, models.EnrollmentStatusEnrolled)
	require.NoError(t, err)
	require.False(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAcceptPaymentConditional(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	receivedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("status = 'enrolled' AND payment_received = 'pending'")).
		WithArgs("enr-1", receivedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	accepted, err := repo.AcceptPayment(context.Background(), "enr-1", receivedAt)
	require.NoError(t, err)
	require.False(t, accepted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExpireForCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'expired'")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	expired, err := repo.ExpireForCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, int64(4), expired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReinstateForCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'enrolled'")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	reinstated, err := repo.ReinstateForCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, int64(4), reinstated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateClassifiedCommits(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("course-1"))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "waitlisted"}).AddRow(1, 0))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{CourseID: "course-1", StudentID: "stu-1"}
	var seen models.CapacityCounts
	class, err := repo.CreateClassified(context.Background(), enrollment, func(counts models.CapacityCounts) models.AdmissionClass {
		seen = counts
		return models.AdmissionEnrolled
	})
	require.NoError(t, err)
	require.Equal(t, models.AdmissionEnrolled, class)
	require.Equal(t, 1, seen.Enrolled)
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.PaymentStatusNone, enrollment.PaymentReceived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateClassifiedRejectedSkipsInsert(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("course-1"))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "waitlisted"}).AddRow(10, 5))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{CourseID: "course-1", StudentID: "stu-1"}
	class, err := repo.CreateClassified(context.Background(), enrollment, func(models.CapacityCounts) models.AdmissionClass {
		return models.AdmissionRejected
	})
	require.NoError(t, err)
	require.Equal(t, models.AdmissionRejected, class)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateClassifiedDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("course-1"))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "waitlisted"}).AddRow(0, 0))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	enrollment := &models.Enrollment{CourseID: "course-1", StudentID: "stu-1"}
	_, err := repo.CreateClassified(context.Background(), enrollment, func(models.CapacityCounts) models.AdmissionClass {
		return models.AdmissionEnrolled
	})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySetAttendance(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET is_attend = FALSE")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("SET is_attend = TRUE")).
		WithArgs("course-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.SetAttendance(context.Background(), "course-1", []string{"enr-1", "enr-2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListAttendedRequiresConfirmed(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "student_id", "status", "is_attend", "student_name"}).
		AddRow("e-1", "course-1", "s-1", "confirmed", true, "Dr. Rahman")
	mock.ExpectQuery(regexp.QuoteMeta("e.is_attend = TRUE AND e.status = 'confirmed'")).
		WithArgs("course-1").
		WillReturnRows(rows)

	attended, err := repo.ListAttended(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, attended, 1)
	require.Equal(t, "s-1", attended[0].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}
