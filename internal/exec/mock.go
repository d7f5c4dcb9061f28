package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockResponse is the canned result of a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
	// Delay holds the command "running" until it elapses or the context is done.
	Delay time.Duration
}

// MockCall records one invocation seen by a MockExecutor.
type MockCall struct {
	Dir  string
	Name string
	Args []string
}

type mockRule struct {
	name   string
	prefix []string
	resp   MockResponse
}

// MockExecutor matches commands against registered prefixes. Unmatched
// commands go to the fallback executor, or fail if there is none.
type MockExecutor struct {
	mu       sync.Mutex
	rules    []mockRule
	calls    []MockCall
	fallback CommandExecutor
}

// NewMockExecutor creates a mock. fallback may be nil.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{fallback: fallback}
}

// AddPrefixMatch registers resp for commands named name whose arguments start with prefix.
// Later registrations take precedence over earlier ones.
func (m *MockExecutor) AddPrefixMatch(name string, prefix []string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{name: name, prefix: prefix, resp: resp})
}

// GetCalls returns a copy of every recorded call.
func (m *MockExecutor) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

func (m *MockExecutor) match(dir, name string, args []string) (MockResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Dir: dir, Name: name, Args: append([]string(nil), args...)})
	for i := len(m.rules) - 1; i >= 0; i-- {
		r := m.rules[i]
		if r.name != name || len(r.prefix) > len(args) {
			continue
		}
		ok := true
		for j, p := range r.prefix {
			if args[j] != p {
				ok = false
				break
			}
		}
		if ok {
			return r.resp, true
		}
	}
	return MockResponse{}, false
}

// Run implements CommandExecutor.
func (m *MockExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	resp, ok := m.match(dir, name, args)
	if !ok {
		if m.fallback != nil {
			return m.fallback.Run(ctx, dir, name, args...)
		}
		return nil, nil, fmt.Errorf("mock: no response for %s %s", name, strings.Join(args, " "))
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return resp.Stdout, resp.Stderr, ctx.Err()
		}
	}
	return resp.Stdout, resp.Stderr, resp.Err
}

// Output implements CommandExecutor.
func (m *MockExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	stdout, _, err := m.Run(ctx, dir, name, args...)
	return stdout, err
}

// CombinedOutput implements CommandExecutor.
func (m *MockExecutor) CombinedOutput(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	stdout, stderr, err := m.Run(ctx, dir, name, args...)
	return append(stdout, stderr...), err
}
