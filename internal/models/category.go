package models

import "time"

// ParticipationType controls how many certificates a category may accumulate
// for the same person.
type ParticipationType int

// Participation modes.
const (
	ParticipationSingle   ParticipationType = 0
	ParticipationMultiple ParticipationType = 1
)

// CourseCategory is a reusable classification against which a student's
// completion ledger and a course's prerequisites are keyed.
type CourseCategory struct {
	ID            string            `db:"id" json:"id"`
	Name          string            `db:"name" json:"name"`
	Participation ParticipationType `db:"participation" json:"participation"`
	Sequence      int               `db:"sequence" json:"sequence"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}
