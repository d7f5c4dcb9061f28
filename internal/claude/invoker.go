// Package claude runs the Claude Code CLI once per request in a session's
// working directory and tracks the running processes so they can be stopped.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	osexec "os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/superclaude/superclaude/internal/errors"
	pexec "github.com/superclaude/superclaude/internal/exec"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// Outcome labels reported to the observer.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
	OutcomeTimeout  = "timeout"
)

// Config controls how the CLI is launched.
type Config struct {
	Binary          string        // CLI executable, "claude" when empty
	SkipPermissions bool          // Pass --dangerously-skip-permissions
	AllowedTools    []string      // Passed as --allowedTools when permissions are not skipped
	Timeout         time.Duration // Per-invocation limit; 0 disables
}

// Request is a single prompt for a session.
type Request struct {
	SessionID      string
	WorkDir        string
	Prompt         string
	Attachments    []string // Local file paths, already on disk
	ConversationID string   // Resumed with --resume when set

	// Live, when set, is asked once the run is registered; false aborts it
	// as canceled before the CLI starts.
	Live func() bool
}

// Result is the outcome of a successful invocation.
type Result struct {
	Output         string
	ConversationID string
	Duration       time.Duration
	CostUSD        float64
}

// handle is the invoker's record of one running process.
type handle struct {
	cancel   context.CancelFunc
	canceled bool
	started  time.Time
}

// Invoker owns the table of running CLI processes, keyed by session ID.
// Nothing outside this type touches a process handle.
type Invoker struct {
	cfg      Config
	executor pexec.CommandExecutor

	mu    sync.Mutex
	procs map[string]*handle

	observe func(outcome string, elapsed time.Duration)
}

// NewInvoker creates an invoker that runs commands through executor.
func NewInvoker(cfg Config, executor pexec.CommandExecutor) *Invoker {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if executor == nil {
		executor = pexec.NewRealExecutor()
	}
	return &Invoker{cfg: cfg, executor: executor, procs: make(map[string]*handle)}
}

// SetObserver registers a callback invoked after every invocation completes.
func (inv *Invoker) SetObserver(fn func(outcome string, elapsed time.Duration)) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.observe = fn
}

// BuildArgs returns the CLI arguments for req.
func BuildArgs(cfg Config, req Request) []string {
	args := []string{"--print", "--output-format", "json"}
	if req.ConversationID != "" {
		args = append(args, "--resume", req.ConversationID)
	}
	if cfg.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	} else {
		for _, tool := range cfg.AllowedTools {
			args = append(args, "--allowedTools", tool)
		}
	}
	for _, dir := range attachmentDirs(req) {
		args = append(args, "--add-dir", dir)
	}
	return append(args, "--", buildPrompt(req))
}

// buildPrompt appends one "[Attached file: path]" line per attachment.
func buildPrompt(req Request) string {
	if len(req.Attachments) == 0 {
		return req.Prompt
	}
	var sb strings.Builder
	sb.WriteString(req.Prompt)
	sb.WriteString("\n")
	for _, path := range req.Attachments {
		sb.WriteString("\n[Attached file: ")
		sb.WriteString(path)
		sb.WriteString("]")
	}
	return sb.String()
}

// attachmentDirs lists the distinct attachment directories outside WorkDir.
func attachmentDirs(req Request) []string {
	seen := map[string]bool{filepath.Clean(req.WorkDir): true}
	var dirs []string
	for _, path := range req.Attachments {
		dir := filepath.Clean(filepath.Dir(path))
		if seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}

// Invoke runs the CLI for req and blocks until it exits. A session that
// already has a running process is rejected with KindBusy.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	const op errors.Op = "claude.Invoke"
	log := logger.WithSession(req.SessionID)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if inv.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.cfg.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	h := &handle{cancel: cancel, started: time.Now()}
	inv.mu.Lock()
	if _, running := inv.procs[req.SessionID]; running {
		inv.mu.Unlock()
		return nil, errors.E(op, errors.KindBusy, fmt.Sprintf("session %s already has a running invocation", req.SessionID))
	}
	inv.procs[req.SessionID] = h
	inv.mu.Unlock()

	defer func() {
		inv.mu.Lock()
		if inv.procs[req.SessionID] == h {
			delete(inv.procs, req.SessionID)
		}
		inv.mu.Unlock()
	}()

	if req.Live != nil && !req.Live() {
		log.Info("session went away before the run started")
		inv.report(OutcomeCanceled, 0)
		return nil, errors.InvocationCanceled(req.SessionID)
	}

	args := BuildArgs(inv.cfg, req)
	log.Info("invoking assistant", zap.String("workDir", req.WorkDir),
		zap.Int("attachments", len(req.Attachments)), zap.Bool("resume", req.ConversationID != ""))

	stdout, stderr, err := inv.executor.Run(runCtx, req.WorkDir, inv.cfg.Binary, args...)
	elapsed := time.Since(h.started)

	inv.mu.Lock()
	canceled := h.canceled
	inv.mu.Unlock()

	switch {
	case canceled || (ctx.Err() != nil && err != nil):
		log.Info("invocation canceled", zap.Duration("elapsed", elapsed))
		inv.report(OutcomeCanceled, elapsed)
		return nil, errors.InvocationCanceled(req.SessionID)
	case err != nil && runCtx.Err() == context.DeadlineExceeded:
		log.Warn("invocation timed out", zap.Duration("timeout", inv.cfg.Timeout))
		inv.report(OutcomeTimeout, elapsed)
		return nil, errors.InvocationTimeout(req.SessionID)
	case err != nil:
		detail := failureDetail(stderr, err)
		log.Warn("invocation failed", zap.String("detail", detail), zap.Duration("elapsed", elapsed))
		inv.report(OutcomeError, elapsed)
		return nil, errors.InvocationFailed(req.SessionID, detail)
	}

	res, perr := parseResult(stdout)
	res.Duration = elapsed
	if perr != nil {
		log.Warn("assistant reported an error", zap.Error(perr))
		inv.report(OutcomeError, elapsed)
		return nil, errors.InvocationFailed(req.SessionID, errors.Detail(perr))
	}

	log.Info("invocation finished", zap.Duration("elapsed", elapsed), zap.Int("bytes", len(res.Output)))
	inv.report(OutcomeSuccess, elapsed)
	return res, nil
}

func (inv *Invoker) report(outcome string, elapsed time.Duration) {
	inv.mu.Lock()
	fn := inv.observe
	inv.mu.Unlock()
	if fn != nil {
		fn(outcome, elapsed)
	}
}

// failureDetail prefers trimmed stderr, then the exit status.
func failureDetail(stderr []byte, err error) string {
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return msg
	}
	if exitErr, ok := err.(*osexec.ExitError); ok {
		return fmt.Sprintf("assistant exited with status %d", exitErr.ExitCode())
	}
	return fmt.Sprintf("assistant failed to start: %v", err)
}

// cliResult is the object printed by --output-format json.
type cliResult struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	Result       string  `json:"result"`
	SessionID    string  `json:"session_id"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// parseResult decodes the CLI's JSON result. Output that is not a JSON
// object is returned verbatim.
func parseResult(stdout []byte) (*Result, error) {
	trimmed := strings.TrimSpace(string(stdout))
	var parsed cliResult
	if !strings.HasPrefix(trimmed, "{") || json.Unmarshal([]byte(trimmed), &parsed) != nil {
		return &Result{Output: trimmed}, nil
	}

	res := &Result{
		Output:         strings.TrimSpace(parsed.Result),
		ConversationID: parsed.SessionID,
		CostUSD:        parsed.TotalCostUSD,
	}
	if parsed.IsError {
		detail := res.Output
		if detail == "" {
			detail = "assistant reported an error (" + parsed.Subtype + ")"
		}
		return res, errors.E(errors.Op("claude.parseResult"), errors.KindInvocation, detail)
	}
	return res, nil
}

// Cancel interrupts the session's running process, if any. The process gets
// pexec.KillGrace to exit before it is killed. The table entry is removed
// immediately whatever the process's exit status turns out to be.
func (inv *Invoker) Cancel(sessionID string) bool {
	inv.mu.Lock()
	h, ok := inv.procs[sessionID]
	if ok {
		h.canceled = true
		delete(inv.procs, sessionID)
	}
	inv.mu.Unlock()

	if !ok {
		return false
	}
	h.cancel()
	logger.WithSession(sessionID).Info("invocation cancel requested")
	return true
}

// Running returns the IDs of sessions with a live process, sorted.
func (inv *Invoker) Running() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	ids := make([]string, 0, len(inv.procs))
	for id := range inv.procs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown cancels every running process.
func (inv *Invoker) Shutdown() {
	for _, id := range inv.Running() {
		inv.Cancel(id)
	}
}
