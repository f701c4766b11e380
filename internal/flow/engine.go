package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/windmill-labs/windmill-worker/internal/events"
	"github.com/windmill-labs/windmill-worker/internal/metrics"
	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/internal/werr"
	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// Engine advances a flow's persistent FlowStatus one transition at a time.
// Each exported method corresponds to one transition trigger: Start for the
// initial claim, OnChildCompleted for a child job finishing. There is no
// resume entry point: a module left in WaitingForEvents is not advanced by
// the engine.
//
// The engine supports single-module inner sequences for ForLoop/WhileLoop/
// BranchOne/BranchAll bodies; a multi-module inner sequence would need a
// recursive FlowStatus and is out of scope for now.
type Engine struct {
	q       queue.Client
	emit    events.Emitter
	metrics *metrics.Registry
	log     logger.Logger
}

// NewEngine builds a flow Engine around a queue client.
func NewEngine(q queue.Client, emit events.Emitter, m *metrics.Registry) *Engine {
	return &Engine{
		q:       q,
		emit:    emit,
		metrics: m,
		log:     logger.Default().WithComponent("flow"),
	}
}

// Start initializes FlowStatus for a freshly claimed flow job and
// dispatches its first module. FlowValue.PreprocessorModule is not run.
func (e *Engine) Start(ctx context.Context, flowJob *queue.Job, value *FlowValue) error {
	status := &FlowStatus{
		Step:    0,
		Modules: make([]ModuleState, len(value.Modules)),
	}
	for i, m := range value.Modules {
		status.Modules[i] = ModuleState{ID: m.ID, Type: ModuleWaitingForPriorSteps}
	}
	if len(status.Modules) > 0 {
		status.Modules[0].Type = ModuleWaitingForExecutor
	}

	if err := e.persist(ctx, flowJob, status); err != nil {
		return err
	}
	return e.dispatchStep(ctx, flowJob, value, status)
}

// OnChildCompleted handles a single child job finishing: it locates the
// module state that owns childJobID (directly, via a loop iteration, or
// via a branch-all arm) and applies the step-4 completion rules.
func (e *Engine) OnChildCompleted(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus, childJobID string, success bool, result json.RawMessage) error {
	step := status.Step
	if step >= len(status.Modules) {
		return fmt.Errorf("flow %s: child completion %s after flow already terminal", flowJob.ID, childJobID)
	}
	module := &status.Modules[step]
	flowModule := value.Modules[step]

	switch flowModule.Value.Type {
	case ValueForLoop, ValueWhileLoop:
		return e.onLoopChildCompleted(ctx, flowJob, value, status, module, flowModule, childJobID, success, result)
	case ValueBranchAll:
		return e.onBranchAllChildCompleted(ctx, flowJob, value, status, module, flowModule, childJobID, success, result)
	default:
		if module.Job == nil || *module.Job != childJobID {
			return fmt.Errorf("flow %s: child %s does not match step %d's dispatched job", flowJob.ID, childJobID, step)
		}
		return e.completeModule(ctx, flowJob, value, status, module, flowModule, success, result)
	}
}

// completeModule applies retry / continue_on_error / failure_module /
// stop_after_if / step-advance rules to a single module outcome.
func (e *Engine) completeModule(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus, module *ModuleState, flowModule Module, success bool, result json.RawMessage) error {
	if !success {
		if flowModule.Retry != nil && status.Retry.FailCount < flowModule.Retry.Attempts {
			status.Retry.FailCount++
			module.Type = ModuleWaitingForExecutor
			e.log.Info("retrying failed step", "flow_job", flowJob.ID, "step", status.Step, "attempt", status.Retry.FailCount)
			if err := e.persist(ctx, flowJob, status); err != nil {
				return err
			}
			return e.dispatchStep(ctx, flowJob, value, status)
		}

		if flowModule.ContinueOnError {
			module.Type = ModuleSuccess
			module.Result = wrapError(result)
			return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
		}

		module.Type = ModuleFailure
		module.Error = string(result)
		status.Retry.FailCount = 0

		if value.FailureModule != nil && status.FailureModule == nil {
			return e.dispatchFailureModule(ctx, flowJob, value, status, module.Error)
		}

		e.emit.EmitFlowCompleted(flowJob.ID, false)
		if e.metrics != nil {
			e.metrics.FlowsCompleted.WithLabelValues("false").Inc()
		}
		return e.q.Complete(ctx, flowJob, false, result, flowJob.Logs)
	}

	module.Type = ModuleSuccess
	module.Result = result
	status.Retry.FailCount = 0
	return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
}

func (e *Engine) afterModuleSuccess(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus, module *ModuleState, flowModule Module) error {
	if flowModule.StopAfterIfExpr != "" {
		params := EvalContext(StepContext{PreviousResult: module.Result, Result: module.Result})
		stop, err := EvalBool(flowModule.StopAfterIfExpr, params)
		if err != nil {
			return werr.Internal("evaluating stop_after_if", err)
		}
		if stop {
			return e.finish(ctx, flowJob, true, module.Result)
		}
	}

	if value.EarlyReturn != nil && value.EarlyReturn.ModuleID == module.ID {
		return e.finish(ctx, flowJob, true, module.Result)
	}

	status.Step++
	if status.Step >= len(status.Modules) {
		return e.finish(ctx, flowJob, true, module.Result)
	}

	if e.metrics != nil {
		e.metrics.FlowStepsAdvanced.Inc()
	}
	e.emit.EmitFlowStepAdvanced(flowJob.ID, status.Step, status.Modules[status.Step].ID)
	status.Modules[status.Step].Type = ModuleWaitingForExecutor

	if err := e.persist(ctx, flowJob, status); err != nil {
		return err
	}
	return e.dispatchStep(ctx, flowJob, value, status)
}

func (e *Engine) finish(ctx context.Context, flowJob *queue.Job, success bool, result json.RawMessage) error {
	e.emit.EmitFlowCompleted(flowJob.ID, success)
	if e.metrics != nil {
		e.metrics.FlowsCompleted.WithLabelValues(fmt.Sprintf("%t", success)).Inc()
	}
	return e.q.Complete(ctx, flowJob, success, result, flowJob.Logs)
}

func (e *Engine) dispatchFailureModule(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus, errMsg string) error {
	fm := *value.FailureModule
	childID := uuid.NewString()
	status.FailureModule = &ModuleState{ID: fm.ID, Type: ModuleWaitingForExecutor, Job: &childID}

	args, _ := json.Marshal(map[string]string{"error": errMsg})
	child := &queue.Job{
		ID:             childID,
		WorkspaceID:    flowJob.WorkspaceID,
		ParentJob:      &flowJob.ID,
		CreatedAt:      nowFn(),
		ScheduledFor:   nowFn(),
		JobKind:        queue.KindScript,
		Args:           args,
		IsFlowStep:     true,
		PermissionedAs: flowJob.PermissionedAs,
		Priority:       flowJob.Priority,
	}
	if err := e.q.Push(ctx, child); err != nil {
		return werr.Internal("pushing failure module child job", err)
	}
	return e.persist(ctx, flowJob, status)
}

// dispatchStep applies the skip_if/mock/suspend gating for the module at
// status.Step and hands it off to the value-specific dispatcher.
// input_transforms and sleep are not evaluated: script steps receive the
// flow job's args and are dispatched immediately.
func (e *Engine) dispatchStep(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus) error {
	step := status.Step
	if step >= len(status.Modules) {
		return e.finish(ctx, flowJob, true, previousResult(status))
	}
	module := &status.Modules[step]
	flowModule := value.Modules[step]

	prev := previousResult(status)
	params := EvalContext(StepContext{FlowInput: flowJob.Args, PreviousResult: prev, Result: prev})

	if flowModule.SkipIfExpr != "" {
		skip, err := EvalBool(flowModule.SkipIfExpr, params)
		if err != nil {
			return werr.Internal("evaluating skip_if", err)
		}
		if skip {
			module.Type = ModuleSuccess
			module.Result = json.RawMessage("null")
			return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
		}
	}

	if flowModule.Mock != nil && flowModule.Mock.Enabled {
		module.Type = ModuleSuccess
		module.Result = flowModule.Mock.ReturnValue
		return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
	}

	if flowModule.Suspend != nil && flowModule.Suspend.RequiredEvents > len(module.Approvers) {
		module.Type = ModuleWaitingForEvents
		module.Suspend = flowModule.Suspend.RequiredEvents - len(module.Approvers)
		e.emit.EmitFlowSuspended(flowJob.ID, module.ID)
		if e.metrics != nil {
			e.metrics.FlowsSuspended.Inc()
		}
		return e.persist(ctx, flowJob, status)
	}

	switch flowModule.Value.Type {
	case ValueRawScript, ValuePathScript:
		return e.dispatchScript(ctx, flowJob, status, module, flowModule, nil)
	case ValuePathFlow:
		return e.dispatchSubflow(ctx, flowJob, status, module, flowModule)
	case ValueIdentity:
		module.Type = ModuleSuccess
		module.Result = prev
		return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
	case ValueForLoop, ValueWhileLoop:
		return e.startLoop(ctx, flowJob, value, status, module, flowModule)
	case ValueBranchOne:
		return e.startBranchOne(ctx, flowJob, value, status, module, flowModule, params)
	case ValueBranchAll:
		return e.startBranchAll(ctx, flowJob, status, module, flowModule)
	default:
		return werr.Internal(fmt.Sprintf("unknown module value type %q", flowModule.Value.Type), nil)
	}
}

func (e *Engine) dispatchScript(ctx context.Context, flowJob *queue.Job, status *FlowStatus, module *ModuleState, flowModule Module, args json.RawMessage) error {
	childID := uuid.NewString()
	module.Type = ModuleInProgress
	module.Job = &childID

	if args == nil {
		args = flowJob.Args
	}

	child := &queue.Job{
		ID:             childID,
		WorkspaceID:    flowJob.WorkspaceID,
		ParentJob:      &flowJob.ID,
		CreatedAt:      nowFn(),
		ScheduledFor:   nowFn(),
		JobKind:        queue.KindScript,
		RawCode:        strPtr(flowModule.Value.Content),
		Args:           args,
		IsFlowStep:     true,
		SameWorker:     false,
		PermissionedAs: flowJob.PermissionedAs,
		Priority:       flowJob.Priority,
		Tag:            flowJob.Tag,
	}
	if err := e.q.Push(ctx, child); err != nil {
		return werr.Internal("pushing step child job", err)
	}
	return e.persist(ctx, flowJob, status)
}

func (e *Engine) dispatchSubflow(ctx context.Context, flowJob *queue.Job, status *FlowStatus, module *ModuleState, flowModule Module) error {
	childID := uuid.NewString()
	module.Type = ModuleInProgress
	module.Job = &childID

	child := &queue.Job{
		ID:             childID,
		WorkspaceID:    flowJob.WorkspaceID,
		ParentJob:      &flowJob.ID,
		CreatedAt:      nowFn(),
		ScheduledFor:   nowFn(),
		JobKind:        queue.KindFlow,
		ScriptPath:     strPtr(flowModule.Value.Path),
		Args:           flowJob.Args,
		IsFlowStep:     true,
		PermissionedAs: flowJob.PermissionedAs,
		Priority:       flowJob.Priority,
		Tag:            flowJob.Tag,
	}
	if err := e.q.Push(ctx, child); err != nil {
		return werr.Internal("pushing subflow child job", err)
	}
	return e.persist(ctx, flowJob, status)
}

// startLoop evaluates the iterator expression, then dispatches the first
// iteration's (single) inner module.
func (e *Engine) startLoop(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus, module *ModuleState, flowModule Module) error {
	prev := previousResult(status)
	params := EvalContext(StepContext{FlowInput: flowJob.Args, PreviousResult: prev, Result: prev})

	iterVal, err := EvalValue(flowModule.Value.Iterator, params)
	if err != nil {
		return werr.Internal("evaluating loop iterator", err)
	}
	items, ok := iterVal.([]interface{})
	if !ok {
		return werr.Execution("loop iterator did not evaluate to an array", nil)
	}

	itered := make([]json.RawMessage, len(items))
	for i, it := range items {
		b, _ := json.Marshal(it)
		itered[i] = b
	}

	module.Iterator = &IteratorState{Index: 0, Itered: itered}
	if len(itered) == 0 {
		module.Type = ModuleSuccess
		module.Result = json.RawMessage("[]")
		return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
	}

	module.Type = ModuleInProgress
	return e.dispatchLoopIteration(ctx, flowJob, status, module, flowModule)
}

func (e *Engine) dispatchLoopIteration(ctx context.Context, flowJob *queue.Job, status *FlowStatus, module *ModuleState, flowModule Module) error {
	if len(flowModule.Value.Modules) != 1 {
		return werr.Internal("loop body must have exactly one inner module", nil)
	}
	inner := flowModule.Value.Modules[0]
	elemArgs := module.Iterator.Itered[module.Iterator.Index]

	childID := uuid.NewString()
	module.Job = &childID

	child := &queue.Job{
		ID:             childID,
		WorkspaceID:    flowJob.WorkspaceID,
		ParentJob:      &flowJob.ID,
		CreatedAt:      nowFn(),
		ScheduledFor:   nowFn(),
		JobKind:        queue.KindScript,
		RawCode:        strPtr(inner.Value.Content),
		Args:           elemArgs,
		IsFlowStep:     true,
		PermissionedAs: flowJob.PermissionedAs,
		Priority:       flowJob.Priority,
		Tag:            flowJob.Tag,
	}
	if err := e.q.Push(ctx, child); err != nil {
		return werr.Internal("pushing loop iteration child job", err)
	}
	return e.persist(ctx, flowJob, status)
}

func (e *Engine) onLoopChildCompleted(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus, module *ModuleState, flowModule Module, childJobID string, success bool, result json.RawMessage) error {
	if module.Job == nil || *module.Job != childJobID {
		return fmt.Errorf("flow %s: child %s does not match loop step", flowJob.ID, childJobID)
	}

	if !success && !flowModule.Value.SkipFailures {
		if flowModule.Retry != nil && status.Retry.FailCount < flowModule.Retry.Attempts {
			status.Retry.FailCount++
			if err := e.persist(ctx, flowJob, status); err != nil {
				return err
			}
			return e.dispatchLoopIteration(ctx, flowJob, status, module, flowModule)
		}
		module.Type = ModuleFailure
		module.Error = string(result)
		return e.finish(ctx, flowJob, false, result)
	}
	status.Retry.FailCount = 0

	outcome := result
	if !success {
		outcome = wrapError(result)
	}
	if module.Iterator.Args == nil {
		module.Iterator.Args = json.RawMessage("[]")
	}
	var acc []json.RawMessage
	_ = json.Unmarshal(module.Iterator.Args, &acc)
	acc = append(acc, outcome)
	accBytes, _ := json.Marshal(acc)
	module.Iterator.Args = accBytes

	module.Iterator.Index++
	if module.Iterator.Index < len(module.Iterator.Itered) {
		return e.dispatchLoopIteration(ctx, flowJob, status, module, flowModule)
	}

	module.Type = ModuleSuccess
	module.Result = accBytes
	return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
}

// startBranchOne evaluates each branch's expression in order and dispatches
// the first truthy branch's (single) module, or the default.
func (e *Engine) startBranchOne(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus, module *ModuleState, flowModule Module, params map[string]interface{}) error {
	chosen := -1
	var modules []Module
	for i, b := range flowModule.Value.Branches {
		truthy, err := EvalBool(b.Expr, params)
		if err != nil {
			return werr.Internal("evaluating branch expr", err)
		}
		if truthy {
			chosen = i
			modules = b.Modules
			break
		}
	}
	if chosen == -1 {
		modules = flowModule.Value.Default
	}
	module.BranchChosen = &chosen

	if len(modules) != 1 {
		return werr.Internal("branch-one arm must have exactly one module", nil)
	}
	inner := modules[0]

	childID := uuid.NewString()
	module.Type = ModuleInProgress
	module.Job = &childID

	child := &queue.Job{
		ID:             childID,
		WorkspaceID:    flowJob.WorkspaceID,
		ParentJob:      &flowJob.ID,
		CreatedAt:      nowFn(),
		ScheduledFor:   nowFn(),
		JobKind:        queue.KindScript,
		RawCode:        strPtr(inner.Value.Content),
		Args:           flowJob.Args,
		IsFlowStep:     true,
		PermissionedAs: flowJob.PermissionedAs,
		Priority:       flowJob.Priority,
		Tag:            flowJob.Tag,
	}
	if err := e.q.Push(ctx, child); err != nil {
		return werr.Internal("pushing branch-one child job", err)
	}
	return e.persist(ctx, flowJob, status)
}

// startBranchAll dispatches every branch's (single) module as an
// independent child job, serially when Value.BranchParallel is false.
func (e *Engine) startBranchAll(ctx context.Context, flowJob *queue.Job, status *FlowStatus, module *ModuleState, flowModule Module) error {
	module.BranchAll = &BranchAllState{Branch: 0, Len: len(flowModule.Value.Branches)}
	module.FlowJobs = make([]string, len(flowModule.Value.Branches))
	module.FlowJobsSuccess = make([]bool, len(flowModule.Value.Branches))
	module.Type = ModuleInProgress

	dispatchOne := func(i int) error {
		branch := flowModule.Value.Branches[i]
		if len(branch.Modules) != 1 {
			return werr.Internal("branch-all arm must have exactly one module", nil)
		}
		inner := branch.Modules[0]
		childID := uuid.NewString()
		module.FlowJobs[i] = childID

		child := &queue.Job{
			ID:             childID,
			WorkspaceID:    flowJob.WorkspaceID,
			ParentJob:      &flowJob.ID,
			CreatedAt:      nowFn(),
			ScheduledFor:   nowFn(),
			JobKind:        queue.KindScript,
			RawCode:        strPtr(inner.Value.Content),
			Args:           flowJob.Args,
			IsFlowStep:     true,
			PermissionedAs: flowJob.PermissionedAs,
			Priority:       flowJob.Priority,
			Tag:            flowJob.Tag,
		}
		return e.q.Push(ctx, child)
	}

	if flowModule.Value.BranchParallel {
		for i := range flowModule.Value.Branches {
			if err := dispatchOne(i); err != nil {
				return werr.Internal("pushing branch-all child job", err)
			}
		}
	} else if err := dispatchOne(0); err != nil {
		return werr.Internal("pushing branch-all child job", err)
	}

	return e.persist(ctx, flowJob, status)
}

func (e *Engine) onBranchAllChildCompleted(ctx context.Context, flowJob *queue.Job, value *FlowValue, status *FlowStatus, module *ModuleState, flowModule Module, childJobID string, success bool, result json.RawMessage) error {
	idx := -1
	for i, id := range module.FlowJobs {
		if id == childJobID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("flow %s: child %s does not match any branch-all arm", flowJob.ID, childJobID)
	}

	outcome := result
	branch := flowModule.Value.Branches[idx]
	if !success {
		if !branch.SkipFailure {
			module.Type = ModuleFailure
			return e.finish(ctx, flowJob, false, result)
		}
		outcome = wrapError(result)
	}
	module.FlowJobsSuccess[idx] = true

	if !flowModule.Value.BranchParallel {
		module.BranchAll.Branch = idx + 1
		results := branchAllResults(module, idx, outcome)
		if module.BranchAll.Branch < module.BranchAll.Len {
			branch2 := flowModule.Value.Branches[module.BranchAll.Branch]
			inner := branch2.Modules[0]
			childID := uuid.NewString()
			module.FlowJobs[module.BranchAll.Branch] = childID
			child := &queue.Job{
				ID:             childID,
				WorkspaceID:    flowJob.WorkspaceID,
				ParentJob:      &flowJob.ID,
				CreatedAt:      nowFn(),
				ScheduledFor:   nowFn(),
				JobKind:        queue.KindScript,
				RawCode:        strPtr(inner.Value.Content),
				Args:           flowJob.Args,
				IsFlowStep:     true,
				PermissionedAs: flowJob.PermissionedAs,
				Priority:       flowJob.Priority,
				Tag:            flowJob.Tag,
			}
			if err := e.q.Push(ctx, child); err != nil {
				return werr.Internal("pushing next branch-all arm", err)
			}
			module.Result = results
			return e.persist(ctx, flowJob, status)
		}
		module.Type = ModuleSuccess
		module.Result = results
		return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
	}

	allDone := true
	for _, done := range module.FlowJobsSuccess {
		if !done {
			allDone = false
			break
		}
	}
	module.Result = branchAllResults(module, idx, outcome)
	if !allDone {
		return e.persist(ctx, flowJob, status)
	}
	module.Type = ModuleSuccess
	return e.afterModuleSuccess(ctx, flowJob, value, status, module, flowModule)
}

// branchAllResults accumulates per-branch outcomes into module.Result's
// ordered array, setting index idx to outcome.
func branchAllResults(module *ModuleState, idx int, outcome json.RawMessage) json.RawMessage {
	results := make([]json.RawMessage, module.BranchAll.Len)
	if module.Result != nil {
		_ = json.Unmarshal(module.Result, &results)
	}
	if results == nil {
		results = make([]json.RawMessage, module.BranchAll.Len)
	}
	results[idx] = outcome
	b, _ := json.Marshal(results)
	return b
}

func (e *Engine) persist(ctx context.Context, flowJob *queue.Job, status *FlowStatus) error {
	b, err := json.Marshal(status)
	if err != nil {
		return werr.Internal("marshaling flow status", err)
	}
	return e.q.UpdateFlowStatus(ctx, flowJob.ID, b)
}

func previousResult(status *FlowStatus) json.RawMessage {
	if status.Step == 0 || status.Step > len(status.Modules) {
		return nil
	}
	return status.Modules[status.Step-1].Result
}

func wrapError(result json.RawMessage) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": string(result)})
	return b
}

func strPtr(s string) *string { return &s }

// nowFn is a seam for tests; production code always uses time.Now.
var nowFn = time.Now
