package zombie

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windmill-labs/windmill-worker/internal/events"
	"github.com/windmill-labs/windmill-worker/internal/queue"
)

func newStaleJob(t *testing.T, q *queue.MemoryClient, id string, sameWorker bool) {
	t.Helper()
	job := &queue.Job{
		ID:           id,
		WorkspaceID:  "ws1",
		CreatedAt:    time.Now(),
		ScheduledFor: time.Now(),
		JobKind:      queue.KindScript,
		SameWorker:   sameWorker,
	}
	require.NoError(t, q.Push(context.Background(), job))
	_, err := q.Pull(context.Background(), "worker-1", nil)
	require.NoError(t, err)
}

func TestReaper_ReleasesRestartableZombie(t *testing.T) {
	q := queue.NewMemoryClient()
	newStaleJob(t, q, "j1", false)

	ctx := context.Background()
	emitter := events.NewEventEmitter(events.NewEventBus(1), "test")
	r := New(q, emitter, nil, time.Hour, 0)

	require.NoError(t, r.ReapOnce(ctx))

	released, err := q.Get(ctx, "j1")
	require.NoError(t, err)
	require.False(t, released.Running)
}

func TestReaper_FailsSameWorkerZombie(t *testing.T) {
	q := queue.NewMemoryClient()
	newStaleJob(t, q, "j2", true)

	ctx := context.Background()
	emitter := events.NewEventEmitter(events.NewEventBus(1), "test")
	r := New(q, emitter, nil, time.Hour, 0)

	require.NoError(t, r.ReapOnce(ctx))

	_, err := q.Get(ctx, "j2")
	require.Error(t, err) // completed jobs are removed from the pending table
}
