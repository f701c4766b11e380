package workerd

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windmill-labs/windmill-worker/internal/flow"
	"github.com/windmill-labs/windmill-worker/internal/metrics"
	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/pkg/config"
)

type stubEmitter struct{}

func (stubEmitter) EmitWorkerStarted(workerID int)                                  {}
func (stubEmitter) EmitWorkerStopped(workerID int)                                  {}
func (stubEmitter) EmitJobQueued(jobID string, priority int)                        {}
func (stubEmitter) EmitJobStarted(jobID string, workerID int)                       {}
func (stubEmitter) EmitJobCompleted(jobID string, workerID int, d time.Duration)    {}
func (stubEmitter) EmitJobFailed(jobID string, workerID int, errMsg string)         {}
func (stubEmitter) EmitJobCancelled(jobID, reason string)                          {}
func (stubEmitter) EmitPoolStarted(totalWorkers int)                                {}
func (stubEmitter) EmitPoolStopped(totalWorkers int)                                {}
func (stubEmitter) EmitPoolScaled(direction string, totalWorkers int)               {}
func (stubEmitter) EmitFlowStepAdvanced(flowJobID string, step int, moduleID string) {}
func (stubEmitter) EmitFlowSuspended(flowJobID, moduleID string)                    {}
func (stubEmitter) EmitFlowResumed(flowJobID, moduleID string)                      {}
func (stubEmitter) EmitFlowCompleted(flowJobID string, success bool)                {}
func (stubEmitter) EmitZombieReclaimed(jobID string)                               {}
func (stubEmitter) EmitZombieKilled(jobID, reason string)                          {}
func (stubEmitter) EmitSystemStarted(component string)                             {}
func (stubEmitter) EmitSystemStopped(component string)                             {}
func (stubEmitter) EmitError(component string, err error)                          {}

func newTestLoop(t *testing.T) (*Loop, *queue.MemoryClient) {
	t.Helper()
	q := queue.NewMemoryClient()
	m := metrics.New("workerd-test-" + t.Name())
	engine := flow.NewEngine(q, stubEmitter{}, m)
	l := New("test-worker", config.WorkerConfig{}, config.EnvsConfig{}, q, nil, engine, nil, stubEmitter{}, m)
	return l, q
}

func TestDispatchFlow_StartsFreshFlowJob(t *testing.T) {
	l, q := newTestLoop(t)
	ctx := context.Background()

	flowValue := flow.FlowValue{
		Modules: []flow.Module{
			{
				ID:              "a",
				Value:           flow.ModuleValue{Type: flow.ValueRawScript, Content: "def main(): return 1", Language: "python3"},
				InputTransforms: map[string]flow.InputTransform{},
			},
		},
	}
	rawFlow, err := json.Marshal(flowValue)
	require.NoError(t, err)

	job := &queue.Job{
		ID:          "flow-job-1",
		WorkspaceID: "ws1",
		JobKind:     queue.KindFlow,
		Running:     true,
		RawFlow:     rawFlow,
		Args:        json.RawMessage(`{}`),
	}
	require.NoError(t, q.Push(ctx, job))

	l.dispatchFlow(ctx, job)

	updated, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, updated.FlowStatus)

	var status flow.FlowStatus
	require.NoError(t, json.Unmarshal(updated.FlowStatus, &status))
	require.Len(t, status.Modules, 1)
	require.Equal(t, flow.ModuleInProgress, status.Modules[0].Type)
}

func TestDispatchFlow_InvalidRawFlowFailsJob(t *testing.T) {
	l, q := newTestLoop(t)
	ctx := context.Background()

	job := &queue.Job{
		ID:          "flow-job-bad",
		WorkspaceID: "ws1",
		JobKind:     queue.KindFlow,
		Running:     true,
		RawFlow:     json.RawMessage(`not json`),
		Args:        json.RawMessage(`{}`),
	}
	require.NoError(t, q.Push(ctx, job))

	l.dispatchFlow(ctx, job)

	_, err := q.Get(ctx, job.ID)
	require.Error(t, err, "job should have been moved to completed_job by failJob")
}

func TestDispatch_RoutesFlowKindToFlowEngine(t *testing.T) {
	l, q := newTestLoop(t)
	ctx := context.Background()

	flowValue := flow.FlowValue{
		Modules: []flow.Module{
			{
				ID:              "a",
				Value:           flow.ModuleValue{Type: flow.ValueRawScript, Content: "def main(): return 1", Language: "python3"},
				InputTransforms: map[string]flow.InputTransform{},
			},
		},
	}
	rawFlow, _ := json.Marshal(flowValue)
	job := &queue.Job{
		ID:          "flow-job-2",
		WorkspaceID: "ws1",
		JobKind:     queue.KindFlowPreview,
		Running:     true,
		RawFlow:     rawFlow,
		Args:        json.RawMessage(`{}`),
	}
	require.NoError(t, q.Push(ctx, job))

	l.dispatch(ctx, job)

	updated, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, updated.FlowStatus, "dispatch should have routed to dispatchFlow, not dispatchScript")
}

func TestFailJob_CompletesJobWithErrorResult(t *testing.T) {
	l, q := newTestLoop(t)
	ctx := context.Background()

	job := &queue.Job{
		ID:          "script-job-1",
		WorkspaceID: "ws1",
		JobKind:     queue.KindScript,
		Running:     true,
	}
	require.NoError(t, q.Push(ctx, job))

	l.failJob(ctx, job, errString("boom"))

	_, err := q.Get(ctx, job.ID)
	require.Error(t, err, "failed job should have moved out of the pending queue")
}

func TestRun_StopsCleanlyOnContextCancel(t *testing.T) {
	l, _ := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
