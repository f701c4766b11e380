package flow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windmill-labs/windmill-worker/internal/events"
	"github.com/windmill-labs/windmill-worker/internal/metrics"
	"github.com/windmill-labs/windmill-worker/internal/queue"
)

// stubEmitter discards every lifecycle event; tests assert on the flow
// status and job state held by the queue instead of inspecting emitted events.
type stubEmitter struct{}

func (stubEmitter) EmitWorkerStarted(int)                                     {}
func (stubEmitter) EmitWorkerStopped(int)                                     {}
func (stubEmitter) EmitJobQueued(string, int)                                 {}
func (stubEmitter) EmitJobStarted(string, int)                                {}
func (stubEmitter) EmitJobCompleted(string, int, time.Duration)               {}
func (stubEmitter) EmitJobFailed(string, int, string)                        {}
func (stubEmitter) EmitJobCancelled(string, string)                          {}
func (stubEmitter) EmitPoolStarted(int)                                       {}
func (stubEmitter) EmitPoolStopped(int)                                       {}
func (stubEmitter) EmitPoolScaled(string, int)                                {}
func (stubEmitter) EmitFlowStepAdvanced(string, int, string)                  {}
func (stubEmitter) EmitFlowSuspended(string, string)                         {}
func (stubEmitter) EmitFlowResumed(string, string)                           {}
func (stubEmitter) EmitFlowCompleted(string, bool)                           {}
func (stubEmitter) EmitZombieReclaimed(string)                               {}
func (stubEmitter) EmitZombieKilled(string, string)                         {}
func (stubEmitter) EmitSystemStarted(string)                                 {}
func (stubEmitter) EmitSystemStopped(string)                                 {}
func (stubEmitter) EmitError(string, error)                                  {}

var _ events.Emitter = stubEmitter{}

func newTestEngine() (*Engine, *queue.MemoryClient) {
	q := queue.NewMemoryClient()
	m := metrics.New("flow-test-" + time.Now().Format("150405.000000000"))
	return NewEngine(q, stubEmitter{}, m), q
}

func seedFlowJob(t *testing.T, q *queue.MemoryClient, id string) *queue.Job {
	t.Helper()
	job := &queue.Job{
		ID:          id,
		WorkspaceID: "ws1",
		JobKind:     queue.KindFlow,
		Running:     true,
		Args:        json.RawMessage(`{"n":21}`),
	}
	require.NoError(t, q.Push(context.Background(), job))
	return job
}

func TestStart_TwoStepFlow_DispatchesFirstStepOnly(t *testing.T) {
	engine, q := newTestEngine()
	flowJob := seedFlowJob(t, q, "flow-1")

	value := &FlowValue{
		Modules: []Module{
			{ID: "a", Value: ModuleValue{Type: ValueRawScript, Content: "def main(n): return n * 2"}},
			{ID: "b", Value: ModuleValue{Type: ValueRawScript, Content: "def main(n): return n + 1"}},
		},
	}

	require.NoError(t, engine.Start(context.Background(), flowJob, value))

	refreshed, err := q.Get(context.Background(), "flow-1")
	require.NoError(t, err)
	var status FlowStatus
	require.NoError(t, json.Unmarshal(refreshed.FlowStatus, &status))
	require.Equal(t, 0, status.Step)
	require.Equal(t, ModuleInProgress, status.Modules[0].Type)
	require.Equal(t, ModuleWaitingForPriorSteps, status.Modules[1].Type)
	require.NotNil(t, status.Modules[0].Job)
}

func TestOnChildCompleted_AdvancesToSecondStepOnSuccess(t *testing.T) {
	engine, q := newTestEngine()
	flowJob := seedFlowJob(t, q, "flow-2")

	value := &FlowValue{
		Modules: []Module{
			{ID: "a", Value: ModuleValue{Type: ValueRawScript, Content: "step-a"}},
			{ID: "b", Value: ModuleValue{Type: ValueRawScript, Content: "step-b"}},
		},
	}
	require.NoError(t, engine.Start(context.Background(), flowJob, value))

	refreshed, _ := q.Get(context.Background(), "flow-2")
	var status FlowStatus
	require.NoError(t, json.Unmarshal(refreshed.FlowStatus, &status))
	childID := *status.Modules[0].Job

	err := engine.OnChildCompleted(context.Background(), flowJob, value, &status, childID, true, json.RawMessage(`42`))
	require.NoError(t, err)

	refreshed2, _ := q.Get(context.Background(), "flow-2")
	var status2 FlowStatus
	require.NoError(t, json.Unmarshal(refreshed2.FlowStatus, &status2))
	require.Equal(t, 1, status2.Step)
	require.Equal(t, ModuleSuccess, status2.Modules[0].Type)
	require.Equal(t, ModuleInProgress, status2.Modules[1].Type)
}

func TestOnChildCompleted_FailureWithoutRetryFailsFlow(t *testing.T) {
	engine, q := newTestEngine()
	flowJob := seedFlowJob(t, q, "flow-3")

	value := &FlowValue{
		Modules: []Module{
			{ID: "a", Value: ModuleValue{Type: ValueRawScript, Content: "step-a"}},
		},
	}
	require.NoError(t, engine.Start(context.Background(), flowJob, value))

	refreshed, _ := q.Get(context.Background(), "flow-3")
	var status FlowStatus
	require.NoError(t, json.Unmarshal(refreshed.FlowStatus, &status))
	childID := *status.Modules[0].Job

	err := engine.OnChildCompleted(context.Background(), flowJob, value, &status, childID, false, json.RawMessage(`"boom"`))
	require.NoError(t, err)

	// Complete() moves the job out of the pending/jobs map into completed_job.
	_, err = q.Get(context.Background(), "flow-3")
	require.Error(t, err)
}

func TestOnChildCompleted_RetriesUpToConfiguredAttempts(t *testing.T) {
	engine, q := newTestEngine()
	flowJob := seedFlowJob(t, q, "flow-4")

	value := &FlowValue{
		Modules: []Module{
			{
				ID:    "a",
				Value: ModuleValue{Type: ValueRawScript, Content: "step-a"},
				Retry: &RetryPolicy{Attempts: 2},
			},
		},
	}
	require.NoError(t, engine.Start(context.Background(), flowJob, value))

	refreshed, _ := q.Get(context.Background(), "flow-4")
	var status FlowStatus
	require.NoError(t, json.Unmarshal(refreshed.FlowStatus, &status))
	childID := *status.Modules[0].Job

	// First failure: retried (fail count 1 < attempts 2), which immediately
	// redispatches the step, landing it back in InProgress.
	require.NoError(t, engine.OnChildCompleted(context.Background(), flowJob, value, &status, childID, false, json.RawMessage(`"err"`)))
	refreshed2, _ := q.Get(context.Background(), "flow-4")
	var status2 FlowStatus
	require.NoError(t, json.Unmarshal(refreshed2.FlowStatus, &status2))
	require.Equal(t, 1, status2.Retry.FailCount)
	require.Equal(t, ModuleInProgress, status2.Modules[0].Type)
	require.NotEqual(t, childID, *status2.Modules[0].Job, "retry should dispatch a fresh child job")
}

func TestOnChildCompleted_ContinueOnErrorAdvancesWithWrappedError(t *testing.T) {
	engine, q := newTestEngine()
	flowJob := seedFlowJob(t, q, "flow-5")

	value := &FlowValue{
		Modules: []Module{
			{ID: "a", Value: ModuleValue{Type: ValueRawScript, Content: "step-a"}, ContinueOnError: true},
			{ID: "b", Value: ModuleValue{Type: ValueRawScript, Content: "step-b"}},
		},
	}
	require.NoError(t, engine.Start(context.Background(), flowJob, value))

	refreshed, _ := q.Get(context.Background(), "flow-5")
	var status FlowStatus
	require.NoError(t, json.Unmarshal(refreshed.FlowStatus, &status))
	childID := *status.Modules[0].Job

	require.NoError(t, engine.OnChildCompleted(context.Background(), flowJob, value, &status, childID, false, json.RawMessage(`"err"`)))

	refreshed2, _ := q.Get(context.Background(), "flow-5")
	var status2 FlowStatus
	require.NoError(t, json.Unmarshal(refreshed2.FlowStatus, &status2))
	require.Equal(t, 1, status2.Step)
	require.Equal(t, ModuleSuccess, status2.Modules[0].Type)
}

func TestOnChildCompleted_FailureDispatchesFailureModule(t *testing.T) {
	engine, q := newTestEngine()
	flowJob := seedFlowJob(t, q, "flow-6")

	value := &FlowValue{
		Modules: []Module{
			{ID: "a", Value: ModuleValue{Type: ValueRawScript, Content: "step-a"}},
		},
		FailureModule: &Module{ID: "handler", Value: ModuleValue{Type: ValueRawScript, Content: "handle-error"}},
	}
	require.NoError(t, engine.Start(context.Background(), flowJob, value))

	refreshed, _ := q.Get(context.Background(), "flow-6")
	var status FlowStatus
	require.NoError(t, json.Unmarshal(refreshed.FlowStatus, &status))
	childID := *status.Modules[0].Job

	require.NoError(t, engine.OnChildCompleted(context.Background(), flowJob, value, &status, childID, false, json.RawMessage(`"boom"`)))

	refreshed2, err := q.Get(context.Background(), "flow-6")
	require.NoError(t, err) // flow job still open, waiting on the failure module child
	var status2 FlowStatus
	require.NoError(t, json.Unmarshal(refreshed2.FlowStatus, &status2))
	require.NotNil(t, status2.FailureModule)
	require.Equal(t, "handler", status2.FailureModule.ID)
}

// TestStart_ForLoopOverDoubles mirrors spec scenario 1: step A returns
// [1,2,3], step B iterates "result" and doubles each element.
func TestStart_ForLoopOverDoubles(t *testing.T) {
	engine, q := newTestEngine()
	flowJob := seedFlowJob(t, q, "flow-7")

	value := &FlowValue{
		Modules: []Module{
			{ID: "a", Value: ModuleValue{Type: ValueRawScript, Content: "def main(): return [1,2,3]"}},
			{
				ID: "loop",
				Value: ModuleValue{
					Type:     ValueForLoop,
					Iterator: "result",
					Modules:  []Module{{ID: "double", Value: ModuleValue{Type: ValueRawScript, Content: "def main(x): return x*2"}}},
				},
			},
		},
	}
	require.NoError(t, engine.Start(context.Background(), flowJob, value))

	refreshed, _ := q.Get(context.Background(), "flow-7")
	var status FlowStatus
	require.NoError(t, json.Unmarshal(refreshed.FlowStatus, &status))
	aChild := *status.Modules[0].Job

	require.NoError(t, engine.OnChildCompleted(context.Background(), flowJob, value, &status, aChild, true, json.RawMessage(`[1,2,3]`)))

	refreshed2, _ := q.Get(context.Background(), "flow-7")
	var status2 FlowStatus
	require.NoError(t, json.Unmarshal(refreshed2.FlowStatus, &status2))
	require.Equal(t, 1, status2.Step)
	require.NotNil(t, status2.Modules[1].Iterator)
	require.Equal(t, 0, status2.Modules[1].Iterator.Index)
	require.Len(t, status2.Modules[1].Iterator.Itered, 3)

	// Drive the loop's three iterations to completion, doubling each element.
	status3 := status2
	doubled := []string{"2", "4", "6"}
	for i := 0; i < 3; i++ {
		loopChild := *status3.Modules[1].Job
		require.NoError(t, engine.OnChildCompleted(context.Background(), flowJob, value, &status3, loopChild, true, json.RawMessage(doubled[i])))
		refreshedN, err := q.Get(context.Background(), "flow-7")
		if i < 2 {
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(refreshedN.FlowStatus, &status3))
		} else {
			require.Error(t, err, "flow should be complete after the loop's final iteration")
		}
	}
}

func TestStart_BranchAllAccumulatesOrderedResults(t *testing.T) {
	engine, q := newTestEngine()
	flowJob := seedFlowJob(t, q, "flow-8")

	value := &FlowValue{
		Modules: []Module{
			{
				ID: "fanout",
				Value: ModuleValue{
					Type: ValueBranchAll,
					Branches: []Branch{
						{Modules: []Module{{ID: "x", Value: ModuleValue{Type: ValueRawScript, Content: "a"}}}},
						{Modules: []Module{{ID: "y", Value: ModuleValue{Type: ValueRawScript, Content: "b"}}}, SkipFailure: true},
					},
					BranchParallel: true,
				},
			},
		},
	}
	require.NoError(t, engine.Start(context.Background(), flowJob, value))

	refreshed, _ := q.Get(context.Background(), "flow-8")
	var status FlowStatus
	require.NoError(t, json.Unmarshal(refreshed.FlowStatus, &status))
	require.Len(t, status.Modules[0].FlowJobs, 2)

	first, second := status.Modules[0].FlowJobs[0], status.Modules[0].FlowJobs[1]
	require.NoError(t, engine.OnChildCompleted(context.Background(), flowJob, value, &status, first, true, json.RawMessage(`"A"`)))
	refreshed2, _ := q.Get(context.Background(), "flow-8")
	require.NoError(t, json.Unmarshal(refreshed2.FlowStatus, &status))

	// Second branch fails but SkipFailure is set, so the arm still completes.
	require.NoError(t, engine.OnChildCompleted(context.Background(), flowJob, value, &status, second, false, json.RawMessage(`"boom"`)))
	require.JSONEq(t, `["A",{"error":"\"boom\""}]`, string(status.Modules[0].Result))

	completed, err := q.Get(context.Background(), "flow-8")
	require.Error(t, err, "flow should have completed and moved out of the active job map")
	_ = completed
}
