// Package dependency resolves a script's transitive dependency lock file
// for Python and Go, and manages the shared heavy-dependency cache with a
// Redis-backed idempotence lock.
package dependency

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// Resolver locks a script's dependencies in a scratch job directory.
type Resolver struct {
	log logger.Logger
}

// New builds a Resolver.
func New() *Resolver {
	return &Resolver{log: logger.Default().WithComponent("dependency")}
}

// Result is a successful or failed lock attempt.
type Result struct {
	Lock         string
	LockErrorLog string
}

var importRe = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([a-zA-Z0-9_\.]+)`)

// LockPython parses imports out of source, writes requirements.in, and
// invokes pip-compile in jobDir.
func (r *Resolver) LockPython(jobDir, source string) (*Result, error) {
	imports := parsePythonImports(source)
	reqPath := filepath.Join(jobDir, "requirements.in")
	if err := os.WriteFile(reqPath, []byte(strings.Join(imports, "\n")+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing requirements.in: %w", err)
	}

	cmd := exec.Command("pip-compile", "-q", "--no-header")
	cmd.Dir = jobDir
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return &Result{LockErrorLog: errOut.String() + err.Error()}, nil
	}

	lockPath := filepath.Join(jobDir, "requirements.txt")
	raw, err := os.ReadFile(lockPath)
	if err != nil {
		return &Result{LockErrorLog: errOut.String() + err.Error()}, nil
	}

	return &Result{Lock: stripComments(string(raw))}, nil
}

// parsePythonImports extracts top-level root package names referenced by
// import/from statements.
func parsePythonImports(source string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, match := range importRe.FindAllStringSubmatch(source, -1) {
		root := strings.SplitN(match[1], ".", 2)[0]
		if root == "" || seen[root] {
			continue
		}
		seen[root] = true
		out = append(out, root)
	}
	return out
}

func stripComments(lock string) string {
	scanner := bufio.NewScanner(strings.NewReader(lock))
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// LockGo writes source into <jobDir>/inner/inner_main.go (prefixed with
// "package inner;" if the source doesn't declare a package), then runs
// `go mod init` + `go mod tidy` under GOMEMLIMIT, returning the
// concatenated go.mod/go.sum lock form.
func (r *Resolver) LockGo(jobDir, source string) (*Result, error) {
	innerDir := filepath.Join(jobDir, "inner")
	if err := os.MkdirAll(innerDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating inner dir: %w", err)
	}

	if !strings.Contains(source, "package ") {
		source = "package inner;\n" + source
	}
	if err := os.WriteFile(filepath.Join(innerDir, "inner_main.go"), []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("writing inner_main.go: %w", err)
	}

	var errOut bytes.Buffer
	initCmd := exec.Command("go", "mod", "init", "mymod")
	initCmd.Dir = jobDir
	initCmd.Stderr = &errOut
	if err := initCmd.Run(); err != nil {
		return &Result{LockErrorLog: errOut.String() + err.Error()}, nil
	}

	errOut.Reset()
	tidyCmd := exec.Command("go", "mod", "tidy")
	tidyCmd.Dir = jobDir
	tidyCmd.Env = append(os.Environ(), "GOMEMLIMIT=2000MiB")
	tidyCmd.Stderr = &errOut
	if err := tidyCmd.Run(); err != nil {
		return &Result{LockErrorLog: errOut.String() + err.Error()}, nil
	}

	modBytes, err := os.ReadFile(filepath.Join(jobDir, "go.mod"))
	if err != nil {
		return &Result{LockErrorLog: err.Error()}, nil
	}
	sumBytes, err := os.ReadFile(filepath.Join(jobDir, "go.sum"))
	if err != nil {
		sumBytes = nil
	}

	lock := string(modBytes) + "\n//go.sum\n" + string(sumBytes)
	return &Result{Lock: lock}, nil
}
