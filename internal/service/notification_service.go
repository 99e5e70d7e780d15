package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/pkg/jobs"
	"github.com/aoabd/course-api/pkg/mailer"
)

const jobTypeEmail = "email"

type emailJob struct {
	To      string
	Subject string
	Body    string
}

// NotificationService dispatches enrollment lifecycle emails through the
// background job queue so request handling never waits on SMTP.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService builds the service and its mail queue. Call Start
// before enqueueing and Stop on shutdown.
func NewNotificationService(sender mailer.Mailer, workers int, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	s.queue = jobs.NewQueue("mail", func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(emailJob)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return sender.Send(payload.To, payload.Subject, payload.Body)
	}, jobs.QueueConfig{Workers: workers, Logger: logger})
	return s
}

// Start launches the mail workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the mail workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// EnrollmentCreated notifies course contacts that a new admission landed.
func (s *NotificationService) EnrollmentCreated(course *models.Course, student *models.Student, status models.EnrollmentStatus, contacts []models.CourseContact) {
	subject := fmt.Sprintf("New %s admission: %s", status, course.Title)
	body := fmt.Sprintf("%s (BMDC %s, %s) has been admitted to %q with status %s.",
		student.Name, student.BMDCNo, student.Email, course.Title, status)
	for _, contact := range contacts {
		s.enqueue(contact.Email, subject, body)
	}
}

// PaymentReviewed tells the student the outcome of their payment review.
func (s *NotificationService) PaymentReviewed(enrollment *models.Enrollment, email string, accepted bool, remark string) {
	if accepted {
		s.enqueue(email, "Payment approved",
			"Your payment has been approved and your enrollment is confirmed.")
		return
	}
	s.enqueue(email, "Payment rejected",
		fmt.Sprintf("Your payment proof was rejected: %s. Please submit a new proof.", remark))
}

func (s *NotificationService) enqueue(to, subject, body string) {
	if to == "" {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeEmail,
		Payload: emailJob{To: to, Subject: subject, Body: body},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue email", zap.String("to", to), zap.Error(err))
	}
}
