package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Rejected requests never create a record, so
// there is no persisted rejected state.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusWaitlist  EnrollmentStatus = "waitlist"
	EnrollmentStatusConfirmed EnrollmentStatus = "confirmed"
	EnrollmentStatusExpired   EnrollmentStatus = "expired"
)

// PaymentStatus tracks the proof-of-payment review state.
type PaymentStatus string

// Possible payment statuses.
const (
	PaymentStatusNone     PaymentStatus = "no"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// AdmissionClass is the capacity accountant's verdict for a new request.
type AdmissionClass string

// Admission classes.
const (
	AdmissionEnrolled AdmissionClass = "enrolled"
	AdmissionWaitlist AdmissionClass = "waitlist"
	AdmissionRejected AdmissionClass = "rejected"
)

// Enrollment captures one student's relationship to one course offering.
// At most one record exists per (course, student) pair.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	CourseID           string           `db:"course_id" json:"course_id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	PaymentReceived    PaymentStatus    `db:"payment_received" json:"payment_received"`
	PaymentProofURL    string           `db:"payment_proof_url" json:"payment_proof_url,omitempty"`
	PaymentProofHandle string           `db:"payment_proof_handle" json:"-"`
	PaymentReceivedAt  *time.Time       `db:"payment_received_at" json:"payment_received_at,omitempty"`
	IsAttend           bool             `db:"is_attend" json:"is_attend"`
	Remark             string           `db:"remark" json:"remark,omitempty"`
	EnrolledAt         time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentBMDC  string `db:"student_bmdc" json:"student_bmdc"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseTitle  string `db:"course_title" json:"course_title"`
}

// CapacityCounts holds committed admission-class counts for a course.
type CapacityCounts struct {
	Enrolled   int `db:"enrolled" json:"enrolled"`
	Waitlisted int `db:"waitlisted" json:"waitlisted"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	CourseID  string
	StudentID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}
