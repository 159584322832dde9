package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
	"github.com/noah-isme/tuition-ledger-api/pkg/jobs"
)

const notificationJobType = "notification"

type notificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
	ListUnread(ctx context.Context, actorID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, actorID string, ids []string) (int64, error)
}

// MarkReadRequest lists notifications to acknowledge.
type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

// Notifier is the fire-and-forget sink ledger operations report to.
type Notifier interface {
	Notify(ctx context.Context, actorID string, category models.NotificationCategory, content string)
}

// NotificationService persists notification events after the ledger write that caused
// them has committed. Failures are logged and counted, never returned.
type NotificationService struct {
	store       notificationStore
	queue       notificationQueue
	metrics     *MetricsService
	logger      *zap.Logger
	systemActor string
	now         func() time.Time
}

// NewNotificationService constructs the service. systemActor attributes events raised by sweeps.
func NewNotificationService(store notificationStore, metrics *MetricsService, systemActor string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if systemActor == "" {
		systemActor = "system"
	}
	return &NotificationService{store: store, metrics: metrics, logger: logger, systemActor: systemActor, now: time.Now}
}

// UseQueue routes notifications through an async worker queue.
func (s *NotificationService) UseQueue(q notificationQueue) {
	s.queue = q
}

// SystemActor returns the actor attributed to scheduled work.
func (s *NotificationService) SystemActor() string {
	return s.systemActor
}

// Notify records an event. It never blocks on a full queue: the event is written inline instead.
func (s *NotificationService) Notify(ctx context.Context, actorID string, category models.NotificationCategory, content string) {
	if s == nil {
		return
	}
	if actorID == "" {
		actorID = s.systemActor
	}
	n := &models.Notification{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Category:  category,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}

	if s.queue != nil {
		err := s.queue.TryEnqueue(jobs.Job{ID: n.ID, Type: notificationJobType, Payload: n})
		if err == nil {
			return
		}
		s.logger.Debug("notification queue unavailable, writing inline", zap.String("notification_id", n.ID), zap.Error(err))
	}

	// Detach from the request: a cancelled request must not drop the event.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.persist(writeCtx, n); err != nil {
		s.reportFailure(n, err)
	}
}

// HandleJob is the jobs.Handler for queued notifications.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(*models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	return s.persist(ctx, n)
}

// HandleDrop is the jobs queue OnDrop hook.
func (s *NotificationService) HandleDrop(job jobs.Job, err error) {
	n, _ := job.Payload.(*models.Notification)
	if n == nil {
		n = &models.Notification{ID: job.ID}
	}
	s.reportFailure(n, err)
}

// Unread returns the actor's unread notifications, newest first.
func (s *NotificationService) Unread(ctx context.Context, actorID string, limit int) ([]models.Notification, error) {
	items, err := s.store.ListUnread(ctx, actorID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// MarkRead acknowledges the actor's notifications and returns how many changed.
func (s *NotificationService) MarkRead(ctx context.Context, actorID string, req MarkReadRequest) (int64, error) {
	if len(req.IDs) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "ids are required")
	}
	n, err := s.store.MarkRead(ctx, actorID, req.IDs)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return n, nil
}

func (s *NotificationService) persist(ctx context.Context, n *models.Notification) error {
	if err := s.store.Insert(ctx, n); err != nil {
		return err
	}
	s.metrics.IncNotification(true)
	return nil
}

func (s *NotificationService) reportFailure(n *models.Notification, err error) {
	s.metrics.IncNotification(false)
	wrapped := appErrors.Wrap(err, appErrors.ErrTransientDependency.Code, appErrors.ErrTransientDependency.Status, "notification not recorded")
	s.logger.Warn("notification dropped",
		zap.String("code", wrapped.Code),
		zap.String("notification_id", n.ID),
		zap.String("category", string(n.Category)),
		zap.Error(err),
	)
}

// summarizeNames renders up to limit names followed by "and N more".
func summarizeNames(names []string, limit int) string {
	if len(names) == 0 {
		return ""
	}
	if len(names) <= limit {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(names[:limit], ", "), len(names)-limit)
}
