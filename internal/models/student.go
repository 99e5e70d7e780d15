package models

import (
	"time"

	"github.com/lib/pq"
)

// Student represents a registered medical professional.
type Student struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	BMDCNo            string    `db:"bmdc_no" json:"bmdc_no"`
	Email             string    `db:"email" json:"email"`
	ContactNumber     string    `db:"contact_number" json:"contact_number"`
	IsEmailVerified   bool      `db:"is_email_verified" json:"is_email_verified"`
	IsBMDCVerified    bool      `db:"is_bmdc_verified" json:"is_bmdc_verified"`
	IsAccountVerified bool      `db:"is_account_verified" json:"is_account_verified"`
	PictureURL        string    `db:"picture_url" json:"picture_url,omitempty"`
	PictureHandle     string    `db:"picture_handle" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Degree is a post-graduation qualification on a student profile.
type Degree struct {
	ID               string `db:"id" json:"id"`
	StudentID        string `db:"student_id" json:"-"`
	DegreeName       string `db:"degree_name" json:"degree_name"`
	YearOfGraduation int    `db:"year_of_graduation" json:"year_of_graduation"`
	IsCompleted      bool   `db:"is_completed" json:"is_completed"`
}

// Course-history completion markers.
const (
	CourseRecordYes = "yes"
	CourseRecordNo  = "no"
)

// CourseRecord is one entry in a student's per-category completion ledger.
// The ledger is keyed by (student, category); eligibility reads it and
// certificate issuance writes it.
type CourseRecord struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	CategoryID     string         `db:"category_id" json:"category_id"`
	Status         string         `db:"status" json:"status"`
	CompletionYear int            `db:"completion_year" json:"completion_year,omitempty"`
	Documents      pq.StringArray `db:"documents" json:"documents"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// StudentDetail bundles a student with the profile data eligibility consumes.
type StudentDetail struct {
	Student
	Degrees       []Degree       `json:"post_graduation_degrees"`
	CourseRecords []CourseRecord `json:"courses"`
}

// StudentFilter encapsulates search parameters for listing students.
type StudentFilter struct {
	Search   string
	Verified *bool
	Page     int
	PageSize int
}
