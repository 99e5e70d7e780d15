package models

import "time"

// PrerequisiteRules are the eligibility gates embedded in a course.
type PrerequisiteRules struct {
	RestrictReenrollment   bool `db:"restrict_reenrollment" json:"restrict_reenrollment"`
	PostGraduationRequired bool `db:"post_graduation_required" json:"post_graduation_required"`
	PostGraduationYearFrom int  `db:"post_graduation_year_from" json:"post_graduation_year_from"`
	PostGraduationYearTo   int  `db:"post_graduation_year_to" json:"post_graduation_year_to"`
	MustHaveCategories     bool `db:"must_have_categories" json:"must_have_categories"`
}

// Course represents a single course or event offering.
//
// The enrollment core treats courses as read-only apart from the capacity and
// window fields, which course management may extend after publication.
type Course struct {
	ID         string  `db:"id" json:"id"`
	CategoryID string  `db:"category_id" json:"category_id"`
	Title      string  `db:"title" json:"title"`
	Location   string  `db:"location" json:"location"`
	Fee        float64 `db:"fee" json:"fee"`

	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`

	// Registration window gates enrollment creation; payment window gates
	// proof submission and drives expiry. Nil bounds are open-ended.
	RegistrationStartDate   *time.Time `db:"registration_start_date" json:"registration_start_date,omitempty"`
	RegistrationEndDate     *time.Time `db:"registration_end_date" json:"registration_end_date,omitempty"`
	PaymentReceiveStartDate *time.Time `db:"payment_receive_start_date" json:"payment_receive_start_date,omitempty"`
	PaymentReceiveEndDate   *time.Time `db:"payment_receive_end_date" json:"payment_receive_end_date,omitempty"`

	StudentCap  int `db:"student_cap" json:"student_cap"`
	WaitlistCap int `db:"waitlist_cap" json:"waitlist_cap"`

	PrerequisiteRules

	Details          string    `db:"details" json:"details"`
	CoverPhotoURL    string    `db:"cover_photo_url" json:"cover_photo_url,omitempty"`
	CoverPhotoHandle string    `db:"cover_photo_handle" json:"-"`
	Sequence         int       `db:"sequence" json:"sequence"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// CourseContact is a stakeholder notified about enrollment events.
type CourseContact struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"course_id"`
	Name     string `db:"name" json:"name"`
	Email    string `db:"email" json:"email"`
}

// CourseRecipient assigns a student to a certificate role on a course,
// e.g. faculty members who receive certificates without enrolling.
type CourseRecipient struct {
	CourseID       string `db:"course_id" json:"course_id"`
	RoleCategoryID string `db:"role_category_id" json:"role_category_id"`
	StudentID      string `db:"student_id" json:"student_id"`
}

// CourseStatus filters course listings by schedule state.
type CourseStatus string

// Course listing states.
const (
	CourseStatusRunning  CourseStatus = "running"
	CourseStatusArchived CourseStatus = "archived"
)

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	CategoryID string
	Status     CourseStatus
	Page       int
	PageSize   int
}
