package models

// EligibilityVerdict is the outcome of evaluating a student against a
// course's prerequisite rules. Reasons carries one entry per failed rule so
// the caller sees every blocking reason at once.
type EligibilityVerdict struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons"`
}
