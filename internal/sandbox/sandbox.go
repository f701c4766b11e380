// Package sandbox manages per-job scoped directories and renders the
// Linux-namespace-isolation config template invoked before each language
// executor.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir describes one job's filesystem scope.
type Dir struct {
	Root         string  // /tmp/<worker>/<job-uuid>/
	KeepOnExit   bool
	sharedLinked bool
}

// New creates and returns the job directory root under base (normally
// /tmp/<worker>), named after jobID.
func New(base, jobID string, keepOnExit bool) (*Dir, error) {
	root := filepath.Join(base, jobID)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating job dir %s: %w", root, err)
	}
	return &Dir{Root: root, KeepOnExit: keepOnExit}, nil
}

// Path joins elem onto the job directory root.
func (d *Dir) Path(elem...string) string {
	return filepath.Join(append([]string{d.Root}, elem...)...)
}

// LinkShared bind-mounts (via symlink, since a real mount namespace needs
// root) the root flow's shared directory into this job's directory, for
// same-worker flows exchanging files between steps.
func (d *Dir) LinkShared(rootFlowSharedDir string) error {
	if d.sharedLinked {
		return nil
	}
	link := d.Path("shared")
	if err := os.Symlink(rootFlowSharedDir, link); err != nil {
		return fmt.Errorf("linking shared dir: %w", err)
	}
	d.sharedLinked = true
	return nil
}

// EnsureSharedDir creates and returns the root flow's shared directory
// (/tmp/<worker>/<root-flow>/shared/), used once per same-worker flow.
func EnsureSharedDir(base, rootFlowJobID string) (string, error) {
	shared := filepath.Join(base, rootFlowJobID, "shared")
	if err := os.MkdirAll(shared, 0o700); err != nil {
		return "", fmt.Errorf("creating shared dir %s: %w", shared, err)
	}
	return shared, nil
}

// Cleanup removes the job directory unless KeepOnExit (or the
// KEEP_JOB_DIR env var) is set.
func (d *Dir) Cleanup() error {
	if d.KeepOnExit {
		return nil
	}
	return os.RemoveAll(d.Root)
}

// TemplateVars are the placeholders interpolated into an embedded sandbox
// config template.
type TemplateVars struct {
	JobDir                string
	CacheDir              string
	CloneNewUser          bool
	SharedMount           string
	SharedDependencies    []string
	AdditionalPythonPaths []string
}

// RenderConfig fills template with vars, replacing each "{NAME}"
// placeholder with its rendered value.
func RenderConfig(template string, vars TemplateVars) string {
	cloneNewUser := "false"
	if vars.CloneNewUser {
		cloneNewUser = "true"
	}
	replacer := strings.NewReplacer(
		"{JOB_DIR}", vars.JobDir,
		"{CACHE_DIR}", vars.CacheDir,
		"{CLONE_NEWUSER}", cloneNewUser,
		"{SHARED_MOUNT}", vars.SharedMount,
		"{SHARED_DEPENDENCIES}", strings.Join(vars.SharedDependencies, ","),
		"{ADDITIONAL_PYTHON_PATHS}", strings.Join(vars.AdditionalPythonPaths, ":"),
	)
	return replacer.Replace(template)
}

// DisableSandbox reports whether sandboxing is disabled for this worker
// process, per the DISABLE_NSJAIL env var.
func DisableSandbox() bool {
	return os.Getenv("DISABLE_NSJAIL") == "true"
}

// DisableNewUserNamespace reports whether CLONE_NEWUSER should be omitted
// from the rendered config, per DISABLE_NUSER.
func DisableNewUserNamespace() bool {
	return os.Getenv("DISABLE_NUSER") == "true"
}

// KeepJobDir reports the worker-wide KEEP_JOB_DIR override;
// per-job opt-in is still threaded through Dir.KeepOnExit.
func KeepJobDir() bool {
	return os.Getenv("KEEP_JOB_DIR") == "true"
}
