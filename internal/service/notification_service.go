package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-network-api/pkg/jobs"
)

// Notification is a workflow event addressed to one recipient.
type Notification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	RecipientID string    `json:"recipient_id"`
	ActorID     string    `json:"actor_id"`
	Resource    string    `json:"resource"`
	ResourceID  string    `json:"resource_id"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notification types.
const (
	NotifyConnectionRequested = "connection.requested"
	NotifyConnectionChanged   = "connection.status_changed"
	NotifyRegistrationCreated = "registration.created"
	NotifyRegistrationChanged = "registration.status_changed"
	NotifyRegistrationPromote = "registration.promoted"
	NotifyApplicationReceived = "application.received"
	NotifyApplicationChanged  = "application.status_changed"
)

// Notifier delivers notifications. Delivery is owned by an external service.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info("workflow notification",
		zap.String("notification_id", note.ID),
		zap.String("type", note.Type),
		zap.String("recipient_id", note.RecipientID),
		zap.String("actor_id", note.ActorID),
		zap.String("resource", note.Resource),
		zap.String("resource_id", note.ResourceID),
		zap.String("status", note.Status),
	)
	return nil
}

// NotificationConfig sizes the delivery queue.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NotificationService publishes workflow notifications asynchronously through a worker queue.
type NotificationService struct {
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService builds the service; Start must be called before Publish delivers.
func NewNotificationService(notifier Notifier, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{metrics: metrics, logger: logger}
	handler := func(ctx context.Context, job jobs.Job) error {
		note, ok := job.Payload.(Notification)
		if !ok {
			metrics.RecordNotification("invalid")
			logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
			return nil
		}
		if err := notifier.Notify(ctx, note); err != nil {
			metrics.RecordNotification("failed")
			return fmt.Errorf("deliver %s: %w", note.Type, err)
		}
		metrics.RecordNotification("delivered")
		return nil
	}
	svc.queue = jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Publish enqueues the notification. Enqueue failures are logged and dropped.
func (s *NotificationService) Publish(n Notification) {
	if n.RecipientID == "" || n.RecipientID == n.ActorID {
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}
	if err := s.queue.Enqueue(jobs.Job{ID: n.ID, Type: n.Type, Payload: n}); err != nil {
		s.metrics.RecordNotification("dropped")
		s.logger.Warn("failed to enqueue notification", zap.String("type", n.Type), zap.Error(err))
	}
}
