package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/pkg/jobs"
)

type notificationStoreStub struct {
	mu    sync.Mutex
	saved []models.Notification
	err   error
}

func (s *notificationStoreStub) Insert(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *n)
	return nil
}

func (s *notificationStoreStub) ListUnread(ctx context.Context, actorID string, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.saved {
		if n.ActorID == actorID && !n.IsRead && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *notificationStoreStub) MarkRead(ctx context.Context, actorID string, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for i := range s.saved {
		if s.saved[i].ActorID != actorID || s.saved[i].IsRead {
			continue
		}
		for _, id := range ids {
			if s.saved[i].ID == id {
				s.saved[i].IsRead = true
				changed++
			}
		}
	}
	return changed, nil
}

func (s *notificationStoreStub) byCategory(category models.NotificationCategory) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.saved {
		if n.Category == category {
			out = append(out, n)
		}
	}
	return out
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestNotifyWritesInlineWithoutQueue(t *testing.T) {
	store := &notificationStoreStub{}
	svc := NewNotificationService(store, nil, "system", zap.NewNop())

	svc.Notify(context.Background(), "", models.NotificationGeneral, "2 sessions completed")

	require.Len(t, store.saved, 1)
	assert.Equal(t, "system", store.saved[0].ActorID)
	assert.False(t, store.saved[0].IsRead)
}

func TestNotifyEnqueuesAndFallsBackWhenQueueFull(t *testing.T) {
	store := &notificationStoreStub{}
	queue := &queueStub{}
	svc := NewNotificationService(store, nil, "system", nil)
	svc.UseQueue(queue)

	svc.Notify(context.Background(), "op-1", models.NotificationNewFee, "paid")
	require.Len(t, queue.jobs, 1)
	assert.Empty(t, store.saved)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))
	require.Len(t, store.saved, 1)
	assert.Equal(t, "op-1", store.saved[0].ActorID)

	queue.err = jobs.ErrQueueFull
	svc.Notify(context.Background(), "op-1", models.NotificationNewFee, "paid again")
	assert.Len(t, store.saved, 2)
}

func TestNotifySwallowsStoreFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &notificationStoreStub{err: errors.New("connection refused")}
	metrics := NewMetricsService()
	svc := NewNotificationService(store, metrics, "system", zap.New(core))

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), "op-1", models.NotificationDeletion, "deleted")
	})
	require.Equal(t, 1, logs.FilterMessage("notification dropped").Len())
	assert.Equal(t, "TRANSIENT_DEPENDENCY_FAILURE", logs.All()[0].ContextMap()["code"])
	assert.EqualValues(t, 1, metrics.Snapshot().NotificationFailures)
}

func TestHandleJobRejectsUnknownPayload(t *testing.T) {
	svc := NewNotificationService(&notificationStoreStub{}, nil, "", nil)
	assert.Error(t, svc.HandleJob(context.Background(), jobs.Job{Payload: "text"}))
}

func TestSummarizeNames(t *testing.T) {
	assert.Equal(t, "", summarizeNames(nil, 3))
	assert.Equal(t, "A, B", summarizeNames([]string{"A", "B"}, 3))
	assert.Equal(t, "A, B, C and 2 more", summarizeNames([]string{"A", "B", "C", "D", "E"}, 3))
}

func TestUnreadAndMarkRead(t *testing.T) {
	store := &notificationStoreStub{}
	svc := NewNotificationService(store, nil, "system", nil)
	svc.Notify(context.Background(), "op-1", models.NotificationNewFee, "Fee received")
	svc.Notify(context.Background(), "op-2", models.NotificationNewFee, "Other operator")

	unread, err := svc.Unread(context.Background(), "op-1", 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	_, err = svc.MarkRead(context.Background(), "op-1", MarkReadRequest{})
	assert.Error(t, err)

	changed, err := svc.MarkRead(context.Background(), "op-1", MarkReadRequest{IDs: []string{unread[0].ID, store.saved[1].ID}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	unread, err = svc.Unread(context.Background(), "op-1", 10)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
