// Package sandbox executes untrusted script bodies in isolated child
// processes and captures their results as structured JSON.
//
// The protocol between engine and script:
//   - the script body and the current variables (UTF-8 JSON) are written
//     to temp files
//   - the interpreter is spawned with "<script> --variables-file <vars>"
//   - stdout carries exactly one JSON document, stderr carries logs
//   - exit code 0 means success
//
// The sandbox isolates the parent from crashes and runaway loops; it is
// not a security boundary against malicious code.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// DefaultTimeout bounds one script execution unless the request says
// otherwise.
const DefaultTimeout = 300 * time.Second

// stderrTailLimit bounds how much stderr goes into the error message.
const stderrTailLimit = 2000

// ExecuteRequest describes one script execution.
type ExecuteRequest struct {
	// Code is the script body to run.
	Code string

	// Variables is the full current working mapping, passed to the
	// script as UTF-8 JSON via --variables-file.
	Variables map[string]any

	// Timeout bounds the subprocess; zero means DefaultTimeout.
	Timeout time.Duration
}

// ExecuteResult is the outcome of one script execution.
type ExecuteResult struct {
	// Success is true when the process exited zero.
	Success bool

	// Output is the JSON document the script emitted on stdout. When
	// stdout is not valid JSON the raw text lands under "result".
	Output map[string]any

	// Logs is stderr split into lines.
	Logs []string

	// Error carries the failure reason (stderr tail for non-zero exits).
	Error string

	// ExitCode is the process exit code; -1 when the process was killed.
	ExitCode int

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Sandbox spawns interpreter subprocesses for script steps.
type Sandbox struct {
	interpreter string
	tempDir     string
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithInterpreter sets the interpreter binary (default "python3").
func WithInterpreter(interpreter string) Option {
	return func(s *Sandbox) {
		if interpreter != "" {
			s.interpreter = interpreter
		}
	}
}

// WithTempDir sets the directory temp files are created in. Empty means
// the system default.
func WithTempDir(dir string) Option {
	return func(s *Sandbox) {
		s.tempDir = dir
	}
}

// WithTimeout sets the default per-execution timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Sandbox) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sandbox) {
		s.logger = logger
	}
}

// New creates a Sandbox.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		interpreter: "python3",
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs req.Code in a child process and interprets the captured
// streams per the script protocol. The returned error is non-nil only
// for sandbox-internal failures (temp file I/O); script failures come
// back inside the result.
func (s *Sandbox) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}

	scriptPath, err := s.writeTempFile("script-*.py", []byte(req.Code))
	if err != nil {
		return nil, types.WrapError(types.SCRIPT_FAILURE, "failed to write script file", err)
	}
	defer os.Remove(scriptPath)

	variables := req.Variables
	if variables == nil {
		variables = map[string]any{}
	}
	varsJSON, err := json.Marshal(variables)
	if err != nil {
		return nil, types.WrapError(types.SCRIPT_FAILURE, "failed to marshal variables", err)
	}
	varsPath, err := s.writeTempFile("variables-*.json", varsJSON)
	if err != nil {
		return nil, types.WrapError(types.SCRIPT_FAILURE, "failed to write variables file", err)
	}
	defer os.Remove(varsPath)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, s.interpreter, scriptPath, "--variables-file", varsPath)

	// Run the script in its own process group and kill the whole group
	// on timeout, so children the script spawned cannot outlive it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	// Force UTF-8 on both sides regardless of the platform default
	// codec. The script preamble emitted by the authoring agent
	// reinforces this on the child side.
	cmd.Env = append(os.Environ(),
		"PYTHONIOENCODING=utf-8",
		"PYTHONUTF8=1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	execErr := cmd.Run()
	duration := time.Since(start)

	result := &ExecuteResult{
		Duration: duration,
		Logs:     splitLogs(stderr.String()),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		result.ExitCode = -1
		result.Error = fmt.Sprintf("script execution exceeded timeout of %v", timeout)
		s.logger.Warn("script execution timed out", "timeout", timeout)
		return result, nil
	}
	if execCtx.Err() != nil {
		result.ExitCode = -1
		result.Error = "script execution cancelled"
		return result, nil
	}

	if execErr != nil {
		exitErr, ok := execErr.(*exec.ExitError)
		if !ok {
			return nil, types.WrapError(types.SCRIPT_FAILURE,
				fmt.Sprintf("failed to spawn interpreter %q", s.interpreter), execErr)
		}
		result.ExitCode = exitErr.ExitCode()
		result.Error = fmt.Sprintf("script exited with code %d: %s",
			result.ExitCode, stderrTail(stderr.String()))
		return result, nil
	}

	result.ExitCode = 0
	result.Success = true
	result.Output = parseStdout(stdout.String())
	return result, nil
}

// writeTempFile creates a temp file with the given pattern and content.
func (s *Sandbox) writeTempFile(pattern string, content []byte) (string, error) {
	f, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return "", err
	}
	path := f.Name()

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// parseStdout interprets the captured stdout: trimmed, parsed as JSON.
// Non-JSON output is preserved raw under "result"; a bare JSON scalar or
// array is wrapped the same way so the output is always a map.
func parseStdout(stdout string) map[string]any {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return map[string]any{}
	}

	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return map[string]any{"result": trimmed}
	}
	if m, ok := parsed.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": parsed}
}

// splitLogs splits stderr into lines, dropping the trailing empty line.
func splitLogs(stderr string) []string {
	if strings.TrimSpace(stderr) == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(stderr, "\r\n", "\n"), "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// stderrTail returns the last stderrTailLimit bytes of stderr, trimmed.
func stderrTail(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	if len(trimmed) <= stderrTailLimit {
		return trimmed
	}
	return "..." + trimmed[len(trimmed)-stderrTailLimit:]
}
