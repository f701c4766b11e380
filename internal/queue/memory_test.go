package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newJob(id string, priority int) *Job {
	p := priority
	return &Job{
		ID:           id,
		WorkspaceID:  "ws1",
		CreatedAt:    time.Now(),
		ScheduledFor: time.Now(),
		JobKind:      KindScript,
		Priority:     &p,
	}
}

func TestMemoryClient_PullHonorsPriorityThenSchedule(t *testing.T) {
	q := NewMemoryClient()
	ctx := context.Background()

	low := newJob("low", 1)
	high := newJob("high", 10)
	require.NoError(t, q.Push(ctx, low))
	require.NoError(t, q.Push(ctx, high))

	job, err := q.Pull(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "high", job.ID)
	require.True(t, job.Running)
	require.Equal(t, "worker-1", *job.Worker)

	// Same priority as "low" but scheduled earlier: pulled first.
	early := newJob("early", 1)
	early.ScheduledFor = low.ScheduledFor.Add(-time.Minute)
	require.NoError(t, q.Push(ctx, early))

	job, err = q.Pull(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "early", job.ID)
}

func TestMemoryClient_PullExcludesRunningAndSuspended(t *testing.T) {
	q := NewMemoryClient()
	ctx := context.Background()

	suspended := newJob("suspended", 5)
	suspended.Suspend = 1
	require.NoError(t, q.Push(ctx, suspended))

	running := newJob("running", 5)
	running.Running = true
	require.NoError(t, q.Push(ctx, running))

	job, err := q.Pull(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestMemoryClient_PullIsExclusive(t *testing.T) {
	q := NewMemoryClient()
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, newJob("j1", 5)))

	first, err := q.Pull(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.Pull(ctx, "worker-2", nil)
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestMemoryClient_CancelThenIsCanceled(t *testing.T) {
	q := NewMemoryClient()
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, newJob("j1", 5)))

	require.NoError(t, q.Cancel(ctx, "j1", "user requested", "alice"))
	canceled, err := q.IsCanceled(ctx, "j1")
	require.NoError(t, err)
	require.True(t, canceled)
}

func TestMemoryClient_ZombieReclamation(t *testing.T) {
	q := NewMemoryClient()
	ctx := context.Background()

	job := newJob("j1", 5)
	require.NoError(t, q.Push(ctx, job))
	_, err := q.Pull(ctx, "worker-1", nil)
	require.NoError(t, err)

	// Simulate a stalled worker: last_ping falls behind the reaper cutoff.
	stale := time.Now().Add(-1 * time.Hour)
	q.jobs["j1"].LastPing = &stale

	zombies, err := q.ListZombies(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, zombies, 1)
	require.Equal(t, "j1", zombies[0].ID)

	require.NoError(t, q.ReleaseZombie(ctx, "j1"))
	released, err := q.Get(ctx, "j1")
	require.NoError(t, err)
	require.False(t, released.Running)
}

func TestMemoryClient_AppendLogsAccumulates(t *testing.T) {
	q := NewMemoryClient()
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, newJob("j1", 5)))

	n, err := q.AppendLogs(ctx, "j1", "hello ")
	require.NoError(t, err)
	require.Equal(t, 6, n)

	n, err = q.AppendLogs(ctx, "j1", "world")
	require.NoError(t, err)
	require.Equal(t, 11, n)
}
