package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/superclaude/superclaude/internal/app"
	"github.com/superclaude/superclaude/internal/config"
	pexec "github.com/superclaude/superclaude/internal/exec"
	"github.com/superclaude/superclaude/internal/process"
)

var skipConfirm bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove saved sessions, downloaded media, the instance lock and orphaned Claude processes",
	Long: `Deletes the session snapshot and the media directory, removes a stale
instance lock, and kills Claude processes left behind by a crashed instance.

Do not run this while superclaude is running. It prompts for confirmation
unless --yes is given.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanCmd)
}

// cleanTargets are the files and processes a clean run would remove.
type cleanTargets struct {
	files     []string // Existing files and directories
	processes []process.AssistantProcess
}

func (t cleanTargets) empty() bool {
	return len(t.files) == 0 && len(t.processes) == 0
}

func gatherCleanTargets(ctx context.Context, cfg *config.Config, lockPath string, finder *process.Finder) (cleanTargets, error) {
	var t cleanTargets
	var candidates []string
	if cfg.StateFile != "" {
		candidates = append(candidates, cfg.StateFile, cfg.StateFile+"-wal", cfg.StateFile+"-shm")
	}
	candidates = append(candidates, cfg.MediaDir, lockPath)
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			t.files = append(t.files, p)
		}
	}

	procs, err := finder.Find(ctx)
	t.processes = procs
	return t, err
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	finder := process.NewFinder(cfg.ClaudeBinary, pexec.NewRealExecutor())
	return runCleanWith(cmd.Context(), cfg, filepath.Join(dir, app.LockFile), finder, os.Stdin, cmd.OutOrStdout())
}

// runCleanWith allows injecting the finder and streams for testing
func runCleanWith(ctx context.Context, cfg *config.Config, lockPath string, finder *process.Finder, input io.Reader, out io.Writer) error {
	targets, err := gatherCleanTargets(ctx, cfg, lockPath, finder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error finding Claude processes: %v\n", err)
	}

	if targets.empty() {
		fmt.Fprintln(out, "Nothing to clean.")
		return nil
	}

	fmt.Fprintln(out, "This will clean:")
	for _, f := range targets.files {
		fmt.Fprintf(out, "  - %s\n", f)
	}
	if len(targets.processes) > 0 {
		fmt.Fprintf(out, "  - %d orphaned Claude process(es)\n", len(targets.processes))
		for _, p := range targets.processes {
			fmt.Fprintf(out, "      PID %d\n", p.PID)
		}
	}

	if !skipConfirm && !confirm(input, out, "Continue?") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	removed := 0
	for _, f := range targets.files {
		if err := os.RemoveAll(f); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error removing %s: %v\n", f, err)
			continue
		}
		removed++
	}
	killed := finder.Cleanup(ctx, targets.processes)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Cleaned:")
	if removed > 0 {
		fmt.Fprintf(out, "  - %d path(s) removed\n", removed)
	}
	if killed > 0 {
		fmt.Fprintf(out, "  - %d orphaned process(es) killed\n", killed)
	}
	return nil
}

// confirm prompts the user for y/n confirmation
func confirm(input io.Reader, out io.Writer, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
