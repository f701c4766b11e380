// Package flow implements the flow state machine: it advances a persistent
// FlowStatus one module at a time, using the queue as its durable work
// list.
package flow

import "encoding/json"

// ModuleStateType is the six-case tagged union of a module's execution
// state.
type ModuleStateType string

const (
	ModuleWaitingForPriorSteps ModuleStateType = "WaitingForPriorSteps"
	ModuleWaitingForEvents     ModuleStateType = "WaitingForEvents"
	ModuleWaitingForExecutor   ModuleStateType = "WaitingForExecutor"
	ModuleInProgress           ModuleStateType = "InProgress"
	ModuleSuccess              ModuleStateType = "Success"
	ModuleFailure              ModuleStateType = "Failure"
)

// IteratorState tracks a for-loop or while-loop's progress.
type IteratorState struct {
	Index  int               `json:"index"`
	Itered []json.RawMessage `json:"itered,omitempty"`
	Args   json.RawMessage   `json:"args,omitempty"`
}

// BranchAllState tracks a branch-all module's progress.
type BranchAllState struct {
	Branch int `json:"branch"`
	Len    int `json:"len"`
}

// ModuleState is a single module's persisted execution state, a tagged
// struct discriminated by Type.
type ModuleState struct {
	ID     string          `json:"id"`
	Type   ModuleStateType `json:"type"`
	Job    *string         `json:"job,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	Iterator *IteratorState `json:"iterator,omitempty"`

	FlowJobs        []string `json:"flow_jobs,omitempty"`
	FlowJobsSuccess []bool   `json:"flow_jobs_success,omitempty"`

	BranchChosen *int            `json:"branch_chosen,omitempty"`
	BranchAll    *BranchAllState `json:"branchall,omitempty"`

	Approvers []string `json:"approvers,omitempty"`
	Suspend   int      `json:"suspend"`

	Count    int `json:"count"`
	Progress int `json:"progress"`
}

// RetryState counts attempts made against the current step under a retry
// policy.
type RetryState struct {
	FailCount int `json:"fail_count"`
}

// FlowStatus is the persistent execution state of a flow, embedded in the
// flow job's flow_status column.
type FlowStatus struct {
	Step          int                    `json:"step"`
	Modules       []ModuleState          `json:"modules"`
	FailureModule *ModuleState           `json:"failure_module,omitempty"`
	Retry         RetryState             `json:"retry"`
	UserStates    map[string]interface{} `json:"user_states,omitempty"`
}

// CurrentModule returns the module at Step, or nil if Step is out of range
// (flow already terminal).
func (s *FlowStatus) CurrentModule() *ModuleState {
	if s.Step < 0 || s.Step >= len(s.Modules) {
		return nil
	}
	return &s.Modules[s.Step]
}

// Terminal reports whether every module has reached a Success/Failure
// state and the flow has no more steps to dispatch.
func (s *FlowStatus) Terminal() bool {
	return s.Step >= len(s.Modules)
}

// ModuleValueType is the eight-case tagged union of what a module does:
// a script to run, a path to a shared script/flow, a loop, a branch, or a
// pass-through identity.
type ModuleValueType string

const (
	ValueRawScript  ModuleValueType = "RawScript"
	ValuePathScript ModuleValueType = "PathScript"
	ValuePathFlow   ModuleValueType = "PathFlow"
	ValueForLoop    ModuleValueType = "ForLoopFlow"
	ValueWhileLoop  ModuleValueType = "WhileLoopFlow"
	ValueBranchOne  ModuleValueType = "BranchOne"
	ValueBranchAll  ModuleValueType = "BranchAll"
	ValueIdentity   ModuleValueType = "Identity"
)

// Branch is one arm of a BranchOne/BranchAll module.
type Branch struct {
	Expr        string   `json:"expr,omitempty"`  // empty for BranchAll and BranchOne's default arm
	Modules     []Module `json:"modules"`
	SkipFailure bool     `json:"skip_failure,omitempty"`
}

// ModuleValue is the declarative body of a module, a tagged struct
// discriminated by Type.
type ModuleValue struct {
	Type ModuleValueType `json:"type"`

	// RawScript / PathScript
	Content  string `json:"content,omitempty"`
	Language string `json:"language,omitempty"`
	Path     string `json:"path,omitempty"`

	// ForLoop / WhileLoop
	Iterator     string   `json:"iterator,omitempty"`  // JS expression yielding an array
	Modules      []Module `json:"modules,omitempty"`
	SkipFailures bool     `json:"skip_failures,omitempty"`
	Parallel     bool     `json:"parallel,omitempty"`
	Parallelism  int      `json:"parallelism,omitempty"`

	// BranchOne / BranchAll
	Branches       []Branch `json:"branches,omitempty"`
	Default        []Module `json:"default,omitempty"`
	BranchParallel bool     `json:"branch_parallel,omitempty"`
}

// RetryPolicy configures step-level retry on failure.
type RetryPolicy struct {
	Attempts int `json:"attempts"`
	Seconds  int `json:"seconds"`
}

// Module is one entry of FlowValue.Modules.
type Module struct {
	ID              string                    `json:"id"`
	Value           ModuleValue               `json:"value"`
	InputTransforms map[string]InputTransform `json:"input_transforms"`
	Retry           *RetryPolicy              `json:"retry,omitempty"`
	SleepExpr       string                    `json:"sleep,omitempty"`
	StopAfterIfExpr string                    `json:"stop_after_if,omitempty"`
	SkipIfExpr      string                    `json:"skip_if,omitempty"`
	Suspend         *SuspendConfig            `json:"suspend,omitempty"`
	Mock            *MockConfig               `json:"mock,omitempty"`
	CacheTTL        int                       `json:"cache_ttl,omitempty"`
	Timeout         int                       `json:"timeout,omitempty"`
	Priority        *int                      `json:"priority,omitempty"`
	DeleteAfterUse  bool                      `json:"delete_after_use,omitempty"`
	ContinueOnError bool                      `json:"continue_on_error,omitempty"`
	EarlyReturn     bool                      `json:"early_return,omitempty"`
}

// InputTransform is either a static JSON value or a JS expression
// evaluated against the step context.
type InputTransform struct {
	IsExpr bool            `json:"is_expr"`
	Static json.RawMessage `json:"static,omitempty"`
	Expr   string          `json:"expr,omitempty"`
}

// SuspendConfig gates a module on external approval.
type SuspendConfig struct {
	RequiredEvents int `json:"required_events"`
}

// MockConfig lets a module short-circuit with a canned result (testing,
// replay).
type MockConfig struct {
	Enabled     bool            `json:"enabled"`
	ReturnValue json.RawMessage `json:"return_value,omitempty"`
}

// ConcurrencyConfig holds a flow's concurrency key, time window and limit.
// The flow engine does not read it, so concurrent runs are not limited.
type ConcurrencyConfig struct {
	Key           string `json:"concurrency_key,omitempty"`
	TimeWindowSec int    `json:"concurrency_time_window_s,omitempty"`
	Limit         int    `json:"concurrency_limit,omitempty"`
}

// FlowValue is the declarative definition of a flow.
type FlowValue struct {
	Modules            []Module          `json:"modules"`
	FailureModule      *Module           `json:"failure_module,omitempty"`
	PreprocessorModule *Module           `json:"preprocessor_module,omitempty"`
	SameWorker         bool              `json:"same_worker,omitempty"`
	SkipExpr           string            `json:"skip_expr,omitempty"`
	Concurrency        ConcurrencyConfig `json:"concurrency,omitempty"`
	CacheTTL           int               `json:"cache_ttl,omitempty"`
	Priority           *int              `json:"priority,omitempty"`
	EarlyReturn        *EarlyReturn      `json:"early_return,omitempty"`
}

// EarlyReturn names the module whose Success short-circuits the rest of
// the flow, keyed off the module rather than an expression (original
// source supplement distinct from StopAfterIfExpr).
type EarlyReturn struct {
	ModuleID string `json:"module_id"`
}

// StepContext is the evaluation context for input_transform expressions
// and stop_after_if/skip_if.
type StepContext struct {
	FlowInput      json.RawMessage            `json:"flow_input"`
	PreviousResult json.RawMessage            `json:"previous_result"`
	Result         json.RawMessage            `json:"result"`
	Resume         json.RawMessage            `json:"resume,omitempty"`
	Resumes        []json.RawMessage          `json:"resumes,omitempty"`
	Iter           *IterContext               `json:"iter,omitempty"`
	PreviousIDs    map[string]json.RawMessage `json:"previous_id,omitempty"`
}

// IterContext exposes the current loop element and index inside a
// for-loop/while-loop's inner sequence.
type IterContext struct {
	Value json.RawMessage `json:"value"`
	Index int             `json:"index"`
}
