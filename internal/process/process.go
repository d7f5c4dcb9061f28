// Package process finds assistant CLI processes left behind by a crashed
// superclaude instance so the clean command can reap them.
package process

import (
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/superclaude/superclaude/internal/errors"
	pexec "github.com/superclaude/superclaude/internal/exec"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// AssistantProcess is a running assistant CLI found on the system.
type AssistantProcess struct {
	PID            int
	Command        string // Full command line
	ConversationID string // Value of --resume, if any
}

// Finder locates and kills assistant processes through an executor.
type Finder struct {
	binary   string
	executor pexec.CommandExecutor
	log      *zap.Logger
}

// NewFinder creates a finder for processes started from binary.
func NewFinder(binary string, executor pexec.CommandExecutor) *Finder {
	return &Finder{
		binary:   filepath.Base(binary),
		executor: executor,
		log:      logger.ComponentLogger("process"),
	}
}

// Pattern is the pgrep expression matching invocations made by the invoker.
func (f *Finder) Pattern() string {
	return f.binary + ".*--print --output-format json"
}

// Find lists matching processes. Only Linux and macOS are supported.
func (f *Finder) Find(ctx context.Context) ([]AssistantProcess, error) {
	op := errors.Op("process.Find")
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		return nil, errors.E(op, errors.KindInvalid, "process discovery is not supported on "+runtime.GOOS)
	}

	stdout, stderr, err := f.executor.Run(ctx, "", "pgrep", "-f", f.Pattern())
	if err != nil {
		// pgrep exits 1 without output when nothing matches.
		if len(strings.TrimSpace(string(stdout))) == 0 && len(strings.TrimSpace(string(stderr))) == 0 {
			return nil, nil
		}
		return nil, errors.E(op, errors.KindIO, strings.TrimSpace(string(stderr)), err)
	}

	var procs []AssistantProcess
	for _, field := range strings.Fields(string(stdout)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		args, err := f.executor.Output(ctx, "", "ps", "-p", field, "-o", "args=")
		if err != nil {
			// Exited between pgrep and ps.
			continue
		}
		cmdLine := strings.TrimSpace(string(args))
		procs = append(procs, AssistantProcess{
			PID:            pid,
			Command:        cmdLine,
			ConversationID: extractConversationID(cmdLine),
		})
	}
	f.log.Debug("found assistant processes", zap.Int("count", len(procs)))
	return procs, nil
}

// Kill force-kills pid.
func (f *Finder) Kill(ctx context.Context, pid int) error {
	if _, stderr, err := f.executor.Run(ctx, "", "kill", "-9", strconv.Itoa(pid)); err != nil {
		return errors.E(errors.Op("process.Kill"), errors.KindIO, strings.TrimSpace(string(stderr)), err)
	}
	return nil
}

// Cleanup kills every process in procs and returns how many were killed.
func (f *Finder) Cleanup(ctx context.Context, procs []AssistantProcess) int {
	killed := 0
	for _, p := range procs {
		f.log.Info("killing orphaned assistant process", zap.Int("pid", p.PID))
		if err := f.Kill(ctx, p.PID); err != nil {
			f.log.Error("failed to kill process", zap.Int("pid", p.PID), zap.Error(err))
			continue
		}
		killed++
	}
	return killed
}

func extractConversationID(cmdLine string) string {
	_, after, ok := strings.Cut(cmdLine, "--resume")
	if !ok {
		return ""
	}
	fields := strings.Fields(strings.TrimLeft(after, " ="))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
