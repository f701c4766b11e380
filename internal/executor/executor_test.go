package executor

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/internal/sandbox"
)

type fakeResolver struct {
	vars map[string]string
	res  map[string]json.RawMessage
}

func (f fakeResolver) GetVariable(path string) (string, error) { return f.vars[path], nil }
func (f fakeResolver) GetResource(path string) (json.RawMessage, error) { return f.res[path], nil }

func TestTransformArgs_ResolvesVarAndResource(t *testing.T) {
	r := fakeResolver{
		vars: map[string]string{"u/alice/token": "secret-token"},
		res:  map[string]json.RawMessage{"u/alice/db": json.RawMessage(`{"host":"db.internal","port":5432}`)},
	}
	args := json.RawMessage(`{"token":"$var:u/alice/token","db":"$res:u/alice/db","n":3}`)

	out, err := TransformArgs(args, r)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "secret-token", decoded["token"])
	require.Equal(t, float64(3), decoded["n"])
	db := decoded["db"].(map[string]interface{})
	require.Equal(t, "db.internal", db["host"])
}

func TestBuild_WritesArtifactsForPython(t *testing.T) {
	base := t.TempDir()
	dir, err := sandbox.New(base, "job-1", false)
	require.NoError(t, err)

	err = Build(dir, queue.LanguagePython, "def main(n):\n    return n * 2\n", json.RawMessage(`{"n":21}`))
	require.NoError(t, err)

	argsRaw, err := os.ReadFile(dir.Path("args.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"n":21}`, string(argsRaw))

	_, err = os.Stat(dir.Path("main.py"))
	require.NoError(t, err)
	_, err = os.Stat(dir.Path("inner.py"))
	require.NoError(t, err)
}

func TestReservedEnv_RendersWMVars(t *testing.T) {
	env := ReservedEnv{JobID: "j1", Token: "tok", Workspace: "ws1", BaseURL: "https://wm.example"}
	rendered := env.Env()
	require.Contains(t, rendered, "WM_JOB_ID=j1")
	require.Contains(t, rendered, "WM_TOKEN=tok")
	require.Contains(t, rendered, "WM_WORKSPACE=ws1")
}
