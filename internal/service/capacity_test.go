package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aoabd/course-api/internal/models"
)

func TestClassifyAdmission(t *testing.T) {
	tests := []struct {
		name        string
		studentCap  int
		waitlistCap int
		enrolled    int
		waitlisted  int
		want        models.AdmissionClass
	}{
		{"primary seat free", 2, 1, 0, 0, models.AdmissionEnrolled},
		{"last primary seat", 2, 1, 1, 0, models.AdmissionEnrolled},
		{"primary full goes to waitlist", 2, 1, 2, 0, models.AdmissionWaitlist},
		{"waitlist full rejects", 2, 1, 2, 1, models.AdmissionRejected},
		{"zero caps reject immediately", 0, 0, 0, 0, models.AdmissionRejected},
		{"zero waitlist skips straight to reject", 1, 0, 1, 0, models.AdmissionRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyAdmission(tt.studentCap, tt.waitlistCap, tt.enrolled, tt.waitlisted)
			assert.Equal(t, tt.want, got)
		})
	}
}
