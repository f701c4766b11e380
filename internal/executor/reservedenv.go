// Package executor produces the per-language wrapper artifacts
// (args.json, result.json, main.<ext>) and reserved environment variables
// every job runs under.
package executor

import (
	"fmt"
	"time"
)

// ReservedEnv builds the WM_* / BASE_INTERNAL_URL environment variables
// injected into every job, as a first-class builder rather than
// an ad-hoc map.
type ReservedEnv struct {
	JobID        string
	Token        string
	Workspace    string
	Email        string
	Username     string
	BaseURL      string
	ParentJob    string
	FlowPath     string
	SchedulePath string
	InternalURL  string
}

// TokenTTL is how long WM_TOKEN remains valid: timeout*2.
func TokenTTL(timeout time.Duration) time.Duration {
	return 2 * timeout
}

// Env renders the reserved variables as a slice of "KEY=VALUE" strings
// suitable for exec.Cmd.Env.
func (r ReservedEnv) Env() []string {
	out := []string{
		fmt.Sprintf("WM_JOB_ID=%s", r.JobID),
		fmt.Sprintf("WM_TOKEN=%s", r.Token),
		fmt.Sprintf("WM_WORKSPACE=%s", r.Workspace),
		fmt.Sprintf("WM_EMAIL=%s", r.Email),
		fmt.Sprintf("WM_USERNAME=%s", r.Username),
		fmt.Sprintf("WM_BASE_URL=%s", r.BaseURL),
		fmt.Sprintf("BASE_INTERNAL_URL=%s", r.InternalURL),
	}
	if r.ParentJob != "" {
		out = append(out, fmt.Sprintf("WM_PARENT_JOB=%s", r.ParentJob))
	}
	if r.FlowPath != "" {
		out = append(out, fmt.Sprintf("WM_FLOW_PATH=%s", r.FlowPath))
	}
	if r.SchedulePath != "" {
		out = append(out, fmt.Sprintf("WM_SCHEDULE_PATH=%s", r.SchedulePath))
	}
	return out
}

// DirectModeEnv returns the minimal environment for direct (non-sandboxed)
// invocation: PATH, HOME, language cache dirs, and the reserved vars.
func DirectModeEnv(reserved ReservedEnv, path, home, cacheDir string) []string {
	env := []string{
		"PATH=" + path,
		"HOME=" + home,
	}
	if cacheDir != "" {
		env = append(env, "CACHE_DIR="+cacheDir)
	}
	return append(env, reserved.Env()...)
}
