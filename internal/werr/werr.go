// Package werr defines the job error taxonomy (kinds, not Go types in the
// exception-hierarchy sense): every failure the worker reports is one of a
// closed set of kinds, each with a distinct effect on the queue row and the
// retry/failure-module path.
package werr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of job error kinds.
type Kind string

const (
	// KindInternal covers a bug or a DB outage. The worker loop fails the
	// job with it at once; the job is not retried.
	KindInternal Kind = "internal_error"
	// KindExecution covers the script having run but some piece of worker
	// infrastructure failing around it (bad args, unreadable result file).
	KindExecution Kind = "execution_error"
	// KindExitStatus covers the script process exiting with a non-zero
	// status. Carries the exit code.
	KindExitStatus Kind = "exit_status"
	// KindNotFound covers a script or flow referenced by hash that no
	// longer exists.
	KindNotFound Kind = "not_found"
	// KindPermissionDenied covers a principal not allowed to run the job.
	KindPermissionDenied Kind = "permission_denied"
	// KindQuotaExceeded covers a log size or concurrency cap being hit;
	// the supervisor kills the child and the job fails with an
	// explanatory message.
	KindQuotaExceeded Kind = "quota_exceeded"
)

// Error is the concrete error type every job-failing path returns. It wraps
// an underlying cause (possibly nil) and tags it with a Kind so callers
// upstream (the worker loop, the flow engine) can branch on the kind
// without string-matching messages.
type Error struct {
	Kind     Kind
	Message  string
	ExitCode int
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Internal wraps cause as a KindInternal error.
func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Cause: cause}
}

// Execution wraps cause as a KindExecution error.
func Execution(msg string, cause error) *Error {
	return &Error{Kind: KindExecution, Message: msg, Cause: cause}
}

// ExitStatus reports a non-zero script exit code.
func ExitStatus(code int) *Error {
	return &Error{
		Kind:     KindExitStatus,
		Message:  fmt.Sprintf("exited with status %d", code),
		ExitCode: code,
	}
}

// TerminatedBySignal reports a child killed by a signal, per spec's
// ExecutionErr("terminated by signal") mapping.
func TerminatedBySignal() *Error {
	return &Error{Kind: KindExecution, Message: "terminated by signal"}
}

// Killed reports a child killed for reason (timeout, cancellation, quota).
func Killed(reason string) *Error {
	return &Error{Kind: KindExecution, Message: fmt.Sprintf("killed because %s", reason)}
}

// NotFound builds a KindNotFound error carrying msg.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// PermissionDenied builds a KindPermissionDenied error carrying msg.
func PermissionDenied(msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: msg}
}

// QuotaExceeded builds a KindQuotaExceeded error carrying msg.
func QuotaExceeded(msg string) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: msg}
}

// As extracts a *Error from err, following the standard errors.As contract.
func As(err error) (*Error, bool) {
	var werr *Error
	if errors.As(err, &werr) {
		return werr, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to KindInternal for errors
// that were never tagged with a werr.Error.
func KindOf(err error) Kind {
	if werr, ok := As(err); ok {
		return werr.Kind
	}
	return KindInternal
}
