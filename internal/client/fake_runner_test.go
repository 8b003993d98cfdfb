package client

import (
	"context"
	"slices"
	"strings"
	"sync"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(command string, args []string) ProcessResult
}

func (f *fakeRunner) Run(_ context.Context, command string, args ...string) ProcessResult {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{command}, args...))
	f.mu.Unlock()
	return f.respond(command, args)
}

// extractions returns the calls that were not capability probes.
func (f *fakeRunner) extractions() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, call := range f.calls {
		if !slices.Contains(call, "--list-impersonate-targets") {
			out = append(out, call)
		}
	}
	return out
}

func succeed(stdout string) ProcessResult {
	code := 0
	return ProcessResult{Succeeded: true, Stdout: stdout, ExitCode: &code}
}

func exitWith(code int, stderr string) ProcessResult {
	return ProcessResult{Stderr: stderr, ExitCode: &code}
}

func notInstalled() ProcessResult {
	return ProcessResult{Stderr: "executable file not found in $PATH"}
}

func hasArg(args []string, want string) bool {
	return slices.ContainsFunc(args, func(a string) bool { return strings.Contains(a, want) })
}
