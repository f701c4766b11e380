package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/internal/sandbox"
)

// Language-specific wrapper templates: each shim imports the user's inner
// code, reads args.json, calls main with the decoded arguments, and
// serializes the return value into result.json.
const (
	pythonWrapper =        `import json,    base64
from          datetime import  datetime
import        inner

with   open("args.json") as           f:
    kwargs =                 json.load(f)

result = inner.main(**kwargs)

with              open("result.json", "w")         as f:
    json.dump(result, f,                  default=str)
`

	denoWrapper =                                 `import                  *                as                                  inner from "./inner.ts";
const       args                              =                        JSON.parse(await Deno.readTextFile("args.json"));
const       result                            =                        await            inner.main(...Object.values(args));
await       Deno.writeTextFile("result.json", JSON.stringify(result));
`

	goWrapperTemplate = `package main

import          (
	"encoding/json"
	"os"

	"mymod/inner"
)

func main() {
	raw, err := os.ReadFile("args.json")
	if err != nil {
		panic(err)
	}
	var args inner.Args
	if err := json.Unmarshal(raw, &args); err != nil {
		panic(err)
	}
	result := inner.Main(args)
	out, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}
	if err := os.WriteFile("result.json", out, 0o644); err != nil {
		panic(err)
	}
}
`
)

// Build writes args.json, an empty result.json, and the language wrapper
// into dir, and the user's inner code alongside it.
func Build(dir *sandbox.Dir, lang queue.Language, innerCode string, args json.RawMessage) error {
	if err := os.WriteFile(dir.Path("args.json"), args, 0o600); err != nil {
		return fmt.Errorf("writing args.json: %w", err)
	}
	if err := os.WriteFile(dir.Path("result.json"), []byte("{}"), 0o600); err != nil {
		return fmt.Errorf("writing result.json placeholder: %w", err)
	}

	switch lang {
	case queue.LanguagePython:
		if err := os.WriteFile(dir.Path("inner.py"), []byte(innerCode), 0o600); err != nil {
			return err
		}
		return os.WriteFile(dir.Path("main.py"), []byte(pythonWrapper), 0o600)
	case queue.LanguageDeno:
		if err := os.WriteFile(dir.Path("inner.ts"), []byte(innerCode), 0o600); err != nil {
			return err
		}
		return os.WriteFile(dir.Path("main.ts"), []byte(denoWrapper), 0o600)
	case queue.LanguageGo:
		innerDir := dir.Path("inner")
		if err := os.MkdirAll(innerDir, 0o700); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(innerDir, "inner.go"), []byte(innerCode), 0o600); err != nil {
			return err
		}
		return os.WriteFile(dir.Path("main.go"), []byte(goWrapperTemplate), 0o600)
	default:
		return fmt.Errorf("unsupported language %q", lang)
	}
}

// Interpreter resolves the binary + args used to run a built job directory
// directly (non-sandboxed).
func Interpreter(lang queue.Language, pythonPath, denoPath, goPath string) (string, []string, error) {
	switch lang {
	case queue.LanguagePython:
		return pythonPath, []string{"main.py"}, nil
	case queue.LanguageDeno:
		return denoPath, []string{"run", "--allow-all", "main.ts"}, nil
	case queue.LanguageGo:
		return goPath, []string{"run", "main.go"}, nil
	default:
		return "", nil, fmt.Errorf("unsupported language %q", lang)
	}
}

// BuildCmd constructs the *exec.Cmd for a built job directory, running
// directly (sandboxPath empty) or under the sandbox binary with a rendered
// config prepended to its arguments.
func BuildCmd(dir *sandbox.Dir, lang queue.Language, pythonPath, denoPath, goPath, sandboxPath, configPath string, env []string) (*exec.Cmd, error) {
	bin, args, err := Interpreter(lang, pythonPath, denoPath, goPath)
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	if sandboxPath != "" && !sandbox.DisableSandbox() {
		cmd = exec.Command(sandboxPath, append([]string{"--config", configPath, "--"}, append([]string{bin}, args...)...)...)
	} else {
		cmd = exec.Command(bin, args...)
	}
	cmd.Dir = dir.Root
	cmd.Env = env
	return cmd, nil
}

// ReadResult reads and parses result.json after a successful child exit.
func ReadResult(dir *sandbox.Dir) (json.RawMessage, error) {
	raw, err := os.ReadFile(dir.Path("result.json"))
	if err != nil {
		return nil, fmt.Errorf("reading result.json: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parsing result.json: %w", err)
	}
	return raw, nil
}
