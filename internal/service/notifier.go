package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ndrozd/studentportal-api/pkg/config"
	"github.com/ndrozd/studentportal-api/pkg/jobs"
)

// Notification event types.
const (
	EventBookingCommitted   = "booking.committed"
	EventBookingRescheduled = "booking.rescheduled"
	EventSignupCreated      = "signup.created"
	EventSignupCancelled    = "signup.cancelled"
	EventSubmissionRejected = "submission.rejected"
)

// Event is a notification pushed to the background queue.
type Event struct {
	Type    string            `json:"type"`
	UserID  string            `json:"user_id"`
	Payload map[string]string `json:"payload"`
}

type eventPublisher interface {
	Publish(event Event)
}

// Notifier dispatches domain events through a background worker queue.
// The default sink writes structured log entries; a real transport
// would replace the queue handler.
type Notifier struct {
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotifier builds a Notifier with its own worker queue. metrics may
// be nil.
func NewNotifier(cfg config.NotificationsConfig, metrics *MetricsService, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{metrics: metrics, logger: logger}
	n.queue = jobs.NewQueue("notifications", n.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 1,
		RetryDelay: time.Second,
		Logger:     logger,
	})
	return n
}

// Start launches the worker pool.
func (n *Notifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains and stops the worker pool.
func (n *Notifier) Stop() {
	n.queue.Stop()
}

// Publish enqueues an event. Events are best-effort; a full queue
// drops the event with a warning rather than blocking the request.
func (n *Notifier) Publish(event Event) {
	switch event.Type {
	case EventBookingCommitted:
		n.metrics.RecordBooking("committed")
	case EventBookingRescheduled:
		n.metrics.RecordBooking("rescheduled")
	case EventSubmissionRejected:
		n.metrics.RecordSubmissionCheck("rejected")
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    event.Type,
		Payload: event,
	}
	if err := n.queue.Enqueue(job); err != nil {
		n.logger.Warn("notification dropped",
			zap.String("event", event.Type),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
}

func (n *Notifier) deliver(_ context.Context, job jobs.Job) error {
	event, ok := job.Payload.(Event)
	if !ok {
		n.logger.Warn("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	fields := []zap.Field{
		zap.String("event", event.Type),
		zap.String("user_id", event.UserID),
	}
	for k, v := range event.Payload {
		fields = append(fields, zap.String(k, v))
	}
	n.logger.Info("notification delivered", fields...)
	return nil
}
