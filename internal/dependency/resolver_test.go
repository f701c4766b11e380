package dependency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePythonImports_ExtractsRootPackages(t *testing.T) {
	source := `
import numpy as np
from pandas import DataFrame
import json
from . import helpers
import numpy
`
	imports := parsePythonImports(source)
	require.Contains(t, imports, "numpy")
	require.Contains(t, imports, "pandas")
	require.Contains(t, imports, "json")
	require.Len(t, imports, 3) // numpy deduped, "." (relative import) skipped
}

func TestStripComments_RemovesHashLines(t *testing.T) {
	lock := "numpy==1.26.0\n# via -r requirements.in\npandas==2.2.0\n"
	out := stripComments(lock)
	require.NotContains(t, out, "# via")
	require.Contains(t, out, "numpy==1.26.0")
	require.Contains(t, out, "pandas==2.2.0")
}

func TestIsHeavy_PrefixMatchIncludesFalsePositive(t *testing.T) {
	h := NewHeavyCache(nil, "/cache/pip_permanent", []string{"numpy", "pandas", "matplotlib"})

	match, ok := h.IsHeavy("pandas==2.2.0")
	require.True(t, ok)
	require.Equal(t, "pandas", match)

	// The reference's prefix-match semantics are preserved verbatim,
	// including this false positive, per the resolved open question.
	match, ok = h.IsHeavy("pandas-stubs==2.2.0")
	require.True(t, ok)
	require.Equal(t, "pandas", match)

	_, ok = h.IsHeavy("requests==2.31.0")
	require.False(t, ok)
}
