package service

import "github.com/aoabd/course-api/internal/models"

// ClassifyAdmission decides the admission class for a new enrollment request
// from committed counts. Primary seats fill first, then the waitlist; when
// both caps are reached the request is rejected outright.
func ClassifyAdmission(studentCap, waitlistCap, enrolled, waitlisted int) models.AdmissionClass {
	if enrolled < studentCap {
		return models.AdmissionEnrolled
	}
	if waitlisted < waitlistCap {
		return models.AdmissionWaitlist
	}
	return models.AdmissionRejected
}
