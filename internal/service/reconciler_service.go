package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aoabd/course-api/internal/repository"
	"github.com/aoabd/course-api/pkg/clock"
)

type paymentWindowReader interface {
	ListPaymentWindows(ctx context.Context) ([]repository.PaymentWindow, error)
}

type expiryRepository interface {
	ExpireForCourse(ctx context.Context, courseID string) (int64, error)
	ReinstateForCourse(ctx context.Context, courseID string) (int64, error)
}

// ReconcileResult summarizes one reconciler pass.
type ReconcileResult struct {
	Expired    int64 `json:"expired"`
	Reinstated int64 `json:"reinstated"`
	Errors     int   `json:"errors"`
}

// ReconcilerService periodically converges enrollments with their course's
// payment window: unpaid enrolled records past the deadline expire, and
// expired records whose window reopened are reinstated. Each pass is
// idempotent, so overlapping or repeated runs settle on the same state.
type ReconcilerService struct {
	courses     paymentWindowReader
	enrollments expiryRepository
	metrics     *MetricsService
	clock       clock.Clock
	interval    time.Duration
	logger      *zap.Logger
}

// NewReconcilerService constructs ReconcilerService.
func NewReconcilerService(courses paymentWindowReader, enrollments expiryRepository, metrics *MetricsService, clk clock.Clock, interval time.Duration, logger *zap.Logger) *ReconcilerService {
	if clk == nil {
		clk = clock.System{}
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcilerService{
		courses:     courses,
		enrollments: enrollments,
		metrics:     metrics,
		clock:       clk,
		interval:    interval,
		logger:      logger,
	}
}

// RunOnce executes a single reconciliation pass over every course. A failure
// on one course is counted and logged but does not stop the sweep.
func (s *ReconcilerService) RunOnce(ctx context.Context) ReconcileResult {
	started := time.Now()
	var result ReconcileResult

	windows, err := s.courses.ListPaymentWindows(ctx)
	if err != nil {
		s.logger.Error("reconciler failed to list payment windows", zap.Error(err))
		result.Errors++
		s.observe(result, time.Since(started))
		return result
	}

	now := s.clock.Now()
	for _, window := range windows {
		if window.PaymentReceiveEndDate != nil && window.PaymentReceiveEndDate.Before(now) {
			expired, err := s.enrollments.ExpireForCourse(ctx, window.CourseID)
			if err != nil {
				s.logger.Error("reconciler expire failed", zap.String("course_id", window.CourseID), zap.Error(err))
				result.Errors++
				continue
			}
			result.Expired += expired
			if expired > 0 {
				s.logger.Info("expired unpaid enrollments",
					zap.String("course_id", window.CourseID),
					zap.Int64("count", expired))
			}
			continue
		}

		// Window open or unbounded: bring back anything expired earlier.
		reinstated, err := s.enrollments.ReinstateForCourse(ctx, window.CourseID)
		if err != nil {
			s.logger.Error("reconciler reinstate failed", zap.String("course_id", window.CourseID), zap.Error(err))
			result.Errors++
			continue
		}
		result.Reinstated += reinstated
		if reinstated > 0 {
			s.logger.Info("reinstated enrollments after window extension",
				zap.String("course_id", window.CourseID),
				zap.Int64("count", reinstated))
		}
	}

	s.observe(result, time.Since(started))
	return result
}

// Start runs reconciliation immediately and then on every tick until the
// context is cancelled.
func (s *ReconcilerService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("enrollment reconciler stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

func (s *ReconcilerService) observe(result ReconcileResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveReconcilePass(result.Expired, result.Reinstated, result.Errors, elapsed)
}
