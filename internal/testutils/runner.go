package testutils

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/browser-infra/buildtools/internal/cmdutils"
)

// FakeRunner is a cmdutils.Runner recording every command instead of spawning it.
//
// Handler, when set, decides the outcome of each command. Otherwise Outputs and Errors are
// looked up with the longest key that prefixes the command line.
type FakeRunner struct {
	Handler func(c cmdutils.Command) (stdout string, err error)
	Outputs map[string]string
	Errors  map[string]error

	mu    sync.Mutex
	calls []cmdutils.Command
}

// Run implements cmdutils.Runner.
func (f *FakeRunner) Run(_ context.Context, c cmdutils.Command) (cmdutils.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	res := cmdutils.Result{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	var out string
	var err error
	if f.Handler != nil {
		out, err = f.Handler(c)
	} else {
		line := c.String()
		out = lookupPrefix(f.Outputs, line)
		err = lookupPrefix(f.Errors, line)
	}

	res.Stdout.WriteString(out)
	if c.Stdout != nil {
		_, _ = c.Stdout.Write([]byte(out))
	}
	if err != nil {
		res.ExitCode = 1
	}
	return res, err
}

// Calls returns the recorded commands in order.
func (f *FakeRunner) Calls() []cmdutils.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cmdutils.Command(nil), f.calls...)
}

// CommandLines returns the recorded command lines in order.
func (f *FakeRunner) CommandLines() []string {
	var lines []string
	for _, c := range f.Calls() {
		lines = append(lines, c.String())
	}
	return lines
}

// HasCall reports whether a recorded command line starts with prefix.
func (f *FakeRunner) HasCall(prefix string) bool {
	for _, l := range f.CommandLines() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func lookupPrefix[T any](m map[string]T, line string) T {
	var zero T
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Longest prefix wins.
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.HasPrefix(line, k) {
			return m[k]
		}
	}
	return zero
}
