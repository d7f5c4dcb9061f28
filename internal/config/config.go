// Package config loads superclaude's settings from a YAML file and then
// applies environment overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/superclaude/superclaude/internal/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. Most fields also accept the
// unprefixed name, e.g. TELEGRAM_BOT_TOKEN.
const EnvPrefix = "SUPERCLAUDE"

// Telegram caps messages at 4096 UTF-16 units.
const maxMessageLenLimit = 4096

// Config holds the application configuration
type Config struct {
	// Messaging surface
	TelegramToken  string  `yaml:"telegram_token" envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIURL string  `yaml:"telegram_api_url,omitempty" envconfig:"TELEGRAM_API_URL"`
	PollTimeout    int     `yaml:"poll_timeout,omitempty" envconfig:"POLL_TIMEOUT"` // seconds
	AllowedUsers   []int64 `yaml:"allowed_users" envconfig:"ALLOWED_USERS"`
	MaxMessageLen  int     `yaml:"max_message_len,omitempty" envconfig:"MAX_MESSAGE_LEN"`

	// Projects and working directories
	ProjectsDir  string `yaml:"projects_dir" envconfig:"PROJECTS_DIR"`
	WorktreesDir string `yaml:"worktrees_dir,omitempty" envconfig:"WORKTREES_DIR"` // Defaults to ProjectsDir

	// Assistant CLI
	ClaudeBinary      string        `yaml:"claude_binary,omitempty" envconfig:"CLAUDE_BINARY"`
	SkipPermissions   bool          `yaml:"skip_permissions,omitempty" envconfig:"SKIP_PERMISSIONS"`
	AllowedTools      []string      `yaml:"allowed_tools,omitempty" envconfig:"ALLOWED_TOOLS"`
	InvocationTimeout time.Duration `yaml:"invocation_timeout,omitempty" envconfig:"INVOCATION_TIMEOUT"` // 0 disables

	// Relay
	TranscribeURL      string `yaml:"transcribe_url" envconfig:"WHISPER_URL"`
	TranscribeLanguage string `yaml:"transcribe_language,omitempty" envconfig:"WHISPER_LANGUAGE"`
	MediaDir           string `yaml:"media_dir,omitempty" envconfig:"MEDIA_DIR"`

	// Notification receiver
	NotifyAddr           string `yaml:"notify_addr,omitempty" envconfig:"NOTIFY_ADDR"`
	RateLimitRPS         int    `yaml:"rate_limit_rps,omitempty" envconfig:"RATE_LIMIT_RPS"` // 0 disables
	RateLimitBurst       int    `yaml:"rate_limit_burst,omitempty" envconfig:"RATE_LIMIT_BURST"`
	DesktopNotifications bool   `yaml:"desktop_notifications,omitempty" envconfig:"DESKTOP_NOTIFICATIONS"`

	// Durable snapshot; empty disables it
	StateFile string `yaml:"state_file,omitempty" envconfig:"STATE_FILE"`

	// Logging
	LogLevel string `yaml:"log_level,omitempty" envconfig:"LOG_LEVEL"`
	LogFile  string `yaml:"log_file,omitempty" envconfig:"LOG_FILE"` // "", "stderr", "stdout" or a path
	LogDev   bool   `yaml:"log_dev,omitempty" envconfig:"LOG_DEV"`   // Colored console output

	path string
}

// Dir is ~/.superclaude, the home of the config file, snapshot and media.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".superclaude"), nil
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{
		PollTimeout:       30,
		MaxMessageLen:     4000,
		ClaudeBinary:      "claude",
		InvocationTimeout: 30 * time.Minute,
		TranscribeURL:     "http://localhost:8787",
		NotifyAddr:        ":3847",
		RateLimitRPS:      20,
		RateLimitBurst:    40,
		LogLevel:          "info",
	}
	if dir, err := Dir(); err == nil {
		cfg.MediaDir = filepath.Join(dir, "media")
		cfg.StateFile = filepath.Join(dir, "state.db")
	}
	return cfg
}

// Load reads the YAML file at path, then applies environment overrides.
// An empty path means DefaultPath, which may be absent. An explicit path
// must exist. Load does not validate; call Validate before use.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, errors.ConfigLoadFailed("~", err)
		}
		path = p
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
	case err != nil:
		return nil, errors.ConfigLoadFailed(path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigLoadFailed(path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.ConfigLoadFailed("environment", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.ProjectsDir = expandHome(c.ProjectsDir)
	c.WorktreesDir = expandHome(c.WorktreesDir)
	c.MediaDir = expandHome(c.MediaDir)
	c.StateFile = expandHome(c.StateFile)
	if c.LogFile != "stderr" && c.LogFile != "stdout" {
		c.LogFile = expandHome(c.LogFile)
	}
	if c.WorktreesDir == "" {
		c.WorktreesDir = c.ProjectsDir
	}
	c.TranscribeURL = strings.TrimRight(c.TranscribeURL, "/")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Path is the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Validate checks the settings needed to run the service.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.ConfigInvalid("telegram_token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	if len(c.AllowedUsers) == 0 {
		return errors.ConfigInvalid("allowed_users must list at least one user id")
	}
	if c.ProjectsDir == "" {
		return errors.ConfigInvalid("projects_dir is required")
	}
	if info, err := os.Stat(c.ProjectsDir); err != nil || !info.IsDir() {
		return errors.ConfigInvalid(fmt.Sprintf("projects_dir %s is not a directory", c.ProjectsDir))
	}
	if c.MaxMessageLen <= 0 || c.MaxMessageLen > maxMessageLenLimit {
		return errors.ConfigInvalid(fmt.Sprintf("max_message_len must be between 1 and %d", maxMessageLenLimit))
	}
	if c.InvocationTimeout < 0 {
		return errors.ConfigInvalid("invocation_timeout must not be negative")
	}
	if c.ClaudeBinary == "" {
		return errors.ConfigInvalid("claude_binary must not be empty")
	}
	if c.NotifyAddr == "" {
		return errors.ConfigInvalid("notify_addr must not be empty")
	}
	return nil
}

// Save writes the config as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.E(errors.Op("config.Save"), errors.KindIO, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.E(errors.Op("config.Save"), errors.KindConfig, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.E(errors.Op("config.Save"), errors.KindIO, err)
	}
	c.path = path
	return nil
}
