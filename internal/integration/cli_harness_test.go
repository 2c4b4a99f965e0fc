//go:build e2e

// cli_harness_test.go provides a test harness for E2E testing of the mindful
// binaries.
//
// The CLIHarness builds mindful and mindful-gateway and provides methods for
// executing CLI commands in an isolated workspace with proper environment
// setup, and for running the gateway as a child process.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// CLIHarness manages the mindful binaries for E2E testing.
type CLIHarness struct {
	// BinaryPath is the path to the built mindful binary.
	BinaryPath string

	// GatewayPath is the path to the built mindful-gateway binary.
	GatewayPath string

	// WorkDir is the working directory where commands will be executed.
	WorkDir string

	// EnvVars contains environment variables to set for command execution.
	EnvVars map[string]string

	t *testing.T
}

// CLIResult contains the output from a CLI command execution.
type CLIResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Success returns true if the command completed with exit code 0.
func (r *CLIResult) Success() bool {
	return r.ExitCode == 0 && r.Err == nil
}

// NewCLIHarness builds both binaries and creates an empty workspace. Session
// storage defaults to a file inside the workspace.
func NewCLIHarness(t *testing.T) *CLIHarness {
	t.Helper()

	projectRoot := findProjectRootForHarness(t)
	require.NotEmpty(t, projectRoot, "could not find project root (directory containing go.mod)")

	tmpDir := t.TempDir()
	h := &CLIHarness{
		BinaryPath:  filepath.Join(tmpDir, "mindful"),
		GatewayPath: filepath.Join(tmpDir, "mindful-gateway"),
		WorkDir:     filepath.Join(tmpDir, "workspace"),
		EnvVars:     make(map[string]string),
		t:           t,
	}
	require.NoError(t, os.MkdirAll(h.WorkDir, 0o755))

	for bin, pkg := range map[string]string{h.BinaryPath: "./cmd/mindful", h.GatewayPath: "./cmd/mindful-gateway"} {
		cmd := exec.Command("go", "build", "-o", bin, pkg)
		cmd.Dir = projectRoot
		output, err := cmd.CombinedOutput()
		require.NoError(t, err, "failed to build %s: %s", pkg, output)
	}

	h.SetEnv("MINDFUL_STORAGE_PATH", filepath.Join(h.WorkDir, "storage.json"))
	return h
}

// SetEnv sets an environment variable for subsequent command executions.
func (h *CLIHarness) SetEnv(key, value string) {
	h.EnvVars[key] = value
}

// Run executes a mindful command with default timeout (30 seconds).
func (h *CLIHarness) Run(args ...string) *CLIResult {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.BinaryPath, args...)
	cmd.Dir = h.WorkDir
	cmd.Env = h.buildEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &CLIResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.Err = err
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}
	return result
}

// StartGateway runs mindful-gateway on a free port with the harness
// environment plus extra, waits until it answers, and points the CLI at it.
// The process is stopped when the test completes.
func (h *CLIHarness) StartGateway(extra map[string]string) string {
	h.t.Helper()

	port := freePort(h.t)
	cmd := exec.Command(h.GatewayPath)
	cmd.Dir = h.WorkDir
	cmd.Env = append(h.buildEnv(), fmt.Sprintf("PORT=%d", port))
	for k, v := range extra {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var logs bytes.Buffer
	cmd.Stdout = &logs
	cmd.Stderr = &logs
	require.NoError(h.t, cmd.Start())
	h.t.Cleanup(func() {
		_ = cmd.Process.Signal(os.Interrupt)
		_ = cmd.Wait()
	})

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(h.t, func() bool {
		resp, err := http.Get(base + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond, "gateway did not come up")

	h.SetEnv("MINDFUL_BACKEND_URL", base+"/api/")
	return base
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// buildEnv creates the environment for child processes: the current
// environment without MINDFUL_* and PORT, plus the harness variables.
func (h *CLIHarness) buildEnv() []string {
	env := []string{}
	for _, e := range os.Environ() {
		if shouldIncludeEnvVar(e) {
			env = append(env, e)
		}
	}
	for k, v := range h.EnvVars {
		env = append(env, k+"="+v)
	}
	return env
}

// shouldIncludeEnvVar keeps the developer's own mindful settings out of the
// test processes.
func shouldIncludeEnvVar(envVar string) bool {
	return !strings.HasPrefix(envVar, "MINDFUL_") && !strings.HasPrefix(envVar, "PORT=")
}

// findProjectRootForHarness walks up from the current directory to the
// directory containing go.mod.
func findProjectRootForHarness(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// RequireSuccess fails the test if the command result indicates failure.
func (h *CLIHarness) RequireSuccess(result *CLIResult, msgAndArgs ...interface{}) {
	h.t.Helper()
	if !result.Success() {
		msg := "command failed"
		if len(msgAndArgs) > 0 {
			if s, ok := msgAndArgs[0].(string); ok {
				msg = s
			}
		}
		h.t.Fatalf("%s: exit=%d err=%v\nstdout: %s\nstderr: %s",
			msg, result.ExitCode, result.Err, result.Stdout, result.Stderr)
	}
}

// RequireFailure fails the test if the command result indicates success.
func (h *CLIHarness) RequireFailure(result *CLIResult, msgAndArgs ...interface{}) {
	h.t.Helper()
	if result.Success() {
		msg := "expected command to fail"
		if len(msgAndArgs) > 0 {
			if s, ok := msgAndArgs[0].(string); ok {
				msg = s
			}
		}
		h.t.Fatalf("%s: command succeeded unexpectedly\nstdout: %s\nstderr: %s",
			msg, result.Stdout, result.Stderr)
	}
}
