package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_CreatesJobDir(t *testing.T) {
	base := t.TempDir()
	d, err := New(base, "job-123", false)
	require.NoError(t, err)
	info, err := os.Stat(d.Root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, filepath.Join(base, "job-123"), d.Root)
}

func TestCleanup_RemovesUnlessKept(t *testing.T) {
	base := t.TempDir()
	d, err := New(base, "job-1", false)
	require.NoError(t, err)
	require.NoError(t, d.Cleanup())
	_, err = os.Stat(d.Root)
	require.True(t, os.IsNotExist(err))

	kept, err := New(base, "job-2", true)
	require.NoError(t, err)
	require.NoError(t, kept.Cleanup())
	_, err = os.Stat(kept.Root)
	require.NoError(t, err)
}

func TestRenderConfig_InterpolatesPlaceholders(t *testing.T) {
	tmpl := "job_dir: {JOB_DIR}\nclone_newuser: {CLONE_NEWUSER}\npython_paths: {ADDITIONAL_PYTHON_PATHS}\n"
	out := RenderConfig(tmpl, TemplateVars{
		JobDir:                "/tmp/w/job-1",
		CloneNewUser:          true,
		AdditionalPythonPaths: []string{"/cache/pip_permanent/numpy", "/cache/pip_permanent/pandas"},
	})
	require.Contains(t, out, "job_dir: /tmp/w/job-1")
	require.Contains(t, out, "clone_newuser: true")
	require.Contains(t, out, "/cache/pip_permanent/numpy:/cache/pip_permanent/pandas")
}

func TestEnsureSharedDir_IsIdempotent(t *testing.T) {
	base := t.TempDir()
	p1, err := EnsureSharedDir(base, "root-flow-1")
	require.NoError(t, err)
	p2, err := EnsureSharedDir(base, "root-flow-1")
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}
