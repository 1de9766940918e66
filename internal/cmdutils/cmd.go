// Package cmdutils provides utility functions for running commands.
//
// Every external tool invocation is described by a Command and goes through Exec, which
// applies timeouts, bounded retries and output checks uniformly.
package cmdutils

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Command describes one invocation of an external tool.
type Command struct {
	// Name is the executable, looked up in PATH when it is not a path.
	Name string
	Args []string
	// Env is appended to the current process environment.
	Env []string
	// Dir is the working directory. Empty means the current one.
	Dir   string
	Stdin io.Reader
	// Stdout, when set, receives a copy of the standard output as it is produced.
	Stdout io.Writer

	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout time.Duration
	// Retries is the number of extra attempts made after a failure.
	Retries    int
	RetryDelay time.Duration
	// CheckOutput fails the command when its standard output mentions an error or a warning.
	CheckOutput bool
}

// String returns the command line as it would be typed in a shell.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result holds the outputs of a finished command.
type Result struct {
	Stdout   *bytes.Buffer
	Stderr   *bytes.Buffer
	ExitCode int
}

// Runner executes commands. Components hold a Runner so that tests can substitute it.
type Runner interface {
	Run(ctx context.Context, c Command) (Result, error)
}

// ExitError is returned when a command exits with a non zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e ExitError) Error() string {
	msg := fmt.Sprintf("%q exited with status %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// OutputCheckError is returned when CheckOutput is set and the output contains a diagnostic.
type OutputCheckError struct {
	Command string
	Line    string
}

func (e OutputCheckError) Error() string {
	return fmt.Sprintf("%q reported a diagnostic: %s", e.Command, e.Line)
}

var diagnosticRe = regexp.MustCompile(`(?i)\b(error|warning)\b`)

// ExecRunner is the Runner spawning real processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	return Exec(ctx, c)
}

// Exec runs c, retrying up to c.Retries extra times on failure.
func Exec(ctx context.Context, c Command) (res Result, err error) {
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying command", "command", c.String(), "attempt", attempt+1, "error", err)
			select {
			case <-ctx.Done():
				return res, errors.Join(err, ctx.Err())
			case <-time.After(c.RetryDelay):
			}
		}

		res, err = execOnce(ctx, c)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, err
		}
	}
	return res, err
}

func execOnce(ctx context.Context, c Command) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	res := Result{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.Stdout = res.Stdout
	if c.Stdout != nil {
		cmd.Stdout = io.MultiWriter(res.Stdout, c.Stdout)
	}
	cmd.Stderr = res.Stderr
	cmd.Env = append(os.Environ(), "LANG=C")
	cmd.Env = append(cmd.Env, c.Env...)

	slog.Debug("Running command", "command", c.String(), "dir", c.Dir)
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, ExitError{Command: c.String(), Code: res.ExitCode, Stderr: res.Stderr.String()}
		}
		return res, fmt.Errorf("could not run %q: %w", c.String(), err)
	}

	if c.CheckOutput {
		if err := checkOutput(c.String(), res.Stdout.Bytes()); err != nil {
			return res, err
		}
	}
	return res, nil
}

func checkOutput(cmd string, out []byte) error {
	s := bufio.NewScanner(bytes.NewReader(out))
	for s.Scan() {
		if diagnosticRe.MatchString(s.Text()) {
			return OutputCheckError{Command: cmd, Line: s.Text()}
		}
	}
	return nil
}
