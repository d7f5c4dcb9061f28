package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/superclaude/superclaude/internal/app"
	"github.com/superclaude/superclaude/internal/config"
	"github.com/superclaude/superclaude/internal/logger"
)

var (
	configPath            string
	debugMode             bool
	quietMode             bool
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "superclaude",
	Short: "Drive Claude Code sessions from Telegram",
	Long: `SuperClaude is a chat bot that runs Claude Code against your projects.
Each chat user can open several sessions, one per project or git worktree,
switch between them, and get alerts from Claude's hooks when a session
finishes or needs input.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.superclaude/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Only log warnings and errors")
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("superclaude %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("superclaude %s\n", version)
}

// loadConfig reads the config selected by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// setupLogging applies the config's logging settings, then the CLI flags.
func setupLogging(cfg *config.Config) error {
	if cfg.LogLevel != "" {
		if err := logger.SetLevel(cfg.LogLevel); err != nil {
			return err
		}
	}
	if quietMode {
		if err := logger.SetLevel("warn"); err != nil {
			return err
		}
	} else if debugMode {
		logger.SetDebug(true)
	}
	logger.SetConsole(cfg.LogDev)
	return logger.Init(cfg.LogFile)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w\n\nRun 'superclaude init' to create one", cfg.Path(), err)
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("error starting: %w", err)
	}
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("error running: %w", err)
	}
	return nil
}
