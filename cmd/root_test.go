package cmd

import (
	"testing"

	"github.com/superclaude/superclaude/internal/config"
	"github.com/superclaude/superclaude/internal/logger"
)

func TestFlags(t *testing.T) {
	tests := []struct {
		name      string
		def       string
		shorthand string
	}{
		{"config", "", "c"},
		{"debug", "false", ""},
		{"quiet", "false", "q"},
	}
	for _, tt := range tests {
		flag := rootCmd.PersistentFlags().Lookup(tt.name)
		if flag == nil {
			t.Fatalf("--%s flag not found", tt.name)
		}
		if flag.DefValue != tt.def {
			t.Errorf("--%s default = %q, want %q", tt.name, flag.DefValue, tt.def)
		}
		if flag.Shorthand != tt.shorthand {
			t.Errorf("--%s shorthand = %q, want %q", tt.name, flag.Shorthand, tt.shorthand)
		}
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"init", "notify", "clean"} {
		if c, _, err := rootCmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionTemplate(t *testing.T) {
	origV, origC, origD := version, commit, date
	defer SetVersionInfo(origV, origC, origD)

	SetVersionInfo("1.2.3", "none", "unknown")
	if got := versionTemplate(); got != "superclaude 1.2.3\n" {
		t.Errorf("versionTemplate() = %q", got)
	}

	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	want := "superclaude 1.2.3\n  commit: abc123\n  built:  2026-01-01\n"
	if got := versionTemplate(); got != want {
		t.Errorf("versionTemplate() = %q, want %q", got, want)
	}
}

func TestSetupLogging(t *testing.T) {
	logger.Reset()
	defer logger.Reset()
	origDebug, origQuiet := debugMode, quietMode
	defer func() { debugMode, quietMode = origDebug, origQuiet }()

	debugMode, quietMode = false, false
	if err := setupLogging(&config.Config{LogLevel: "chatty"}); err == nil {
		t.Error("setupLogging should reject an unknown level")
	}

	logger.Reset()
	debugMode, quietMode = true, true
	if err := setupLogging(&config.Config{LogLevel: "info", LogFile: "stderr"}); err != nil {
		t.Errorf("setupLogging() error = %v", err)
	}
}
