package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/pkg/config"
	"github.com/meditrace/meditrace-api/pkg/jobs"
)

// Dispatcher delivers a notification to the external channel (SMS, push).
// Implementations must be safe for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// LogDispatcher is the default delivery backend: it only logs. Real
// deployments plug in an SMS gateway behind the same interface.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher constructs LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the notification.
func (d *LogDispatcher) Dispatch(_ context.Context, n models.Notification) error {
	d.logger.Sugar().Infow("notification dispatched",
		"type", n.Type, "recipient", n.RecipientContact, "batch_id", n.BatchID)
	return nil
}

type notificationMetrics interface {
	IncNotification(kind string)
}

// NotificationService queues post-commit patient notifications. Delivery is
// strictly after the ledger commit and never rolls it back; a lost
// notification is an operational issue, not a traceability one.
type NotificationService struct {
	dispatcher Dispatcher
	metrics    notificationMetrics
	queue      *jobs.Queue
	enabled    bool
	logger     *zap.Logger
}

// NewNotificationService constructs NotificationService and its queue.
func NewNotificationService(dispatcher Dispatcher, metrics notificationMetrics, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if dispatcher == nil {
		dispatcher = NewLogDispatcher(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		dispatcher: dispatcher,
		metrics:    metrics,
		enabled:    cfg.Enabled,
		logger:     logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// EnqueueTreatment queues a treatment notification to the patient.
func (s *NotificationService) EnqueueTreatment(batchID, contact string, payload map[string]interface{}) {
	s.enqueue(models.NotificationTreatment, batchID, contact, payload)
}

// EnqueueRecall queues a recall notification to the patient.
func (s *NotificationService) EnqueueRecall(batchID, contact string, payload map[string]interface{}) {
	s.enqueue(models.NotificationRecall, batchID, contact, payload)
}

func (s *NotificationService) enqueue(kind models.NotificationType, batchID, contact string, payload map[string]interface{}) {
	if !s.enabled {
		return
	}
	n := models.Notification{
		Type:             kind,
		RecipientContact: contact,
		BatchID:          batchID,
		Payload:          payload,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: string(kind), Payload: n}); err != nil {
		s.logger.Sugar().Warnw("failed to enqueue notification", "type", kind, "batch_id", batchID, "error", err)
	}
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Sugar().Errorw("invalid notification payload", "job_id", job.ID)
		return nil
	}
	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncNotification(string(n.Type))
	}
	return nil
}
