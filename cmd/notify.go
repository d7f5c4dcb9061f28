package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/superclaude/superclaude/internal/config"
	"github.com/superclaude/superclaude/internal/httpclient"
	"github.com/superclaude/superclaude/internal/notify"
)

var (
	notifyURL     string
	notifyUser    int64
	notifySession string
	notifyEvent   string
	notifyMessage string
	notifyProject string
	notifyHook    bool
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send an event to a running superclaude",
	Long: `Posts an event to the notification receiver of a running instance, which
forwards it to the chat as an alert. Meant for Claude Code hooks:

  superclaude notify --hook            # reads the hook payload from stdin
  superclaude notify --event stop --message "Build finished"`,
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().StringVar(&notifyURL, "url", "", "Receiver base URL (default derived from notify_addr)")
	notifyCmd.Flags().Int64Var(&notifyUser, "user", 0, "Telegram user id (default first allowed user)")
	notifyCmd.Flags().StringVar(&notifySession, "session", "", "Session id (default the hook's conversation id, or \"shell\")")
	notifyCmd.Flags().StringVar(&notifyEvent, "event", "notification", "Event kind, e.g. stop, notification, input")
	notifyCmd.Flags().StringVar(&notifyMessage, "message", "", "Message body")
	notifyCmd.Flags().StringVar(&notifyProject, "project", "", "Project name shown in the alert")
	notifyCmd.Flags().BoolVar(&notifyHook, "hook", false, "Read a Claude Code hook payload from stdin")
	rootCmd.AddCommand(notifyCmd)
}

// hookPayload is the subset of the JSON Claude Code passes to hooks on stdin.
type hookPayload struct {
	SessionID     string `json:"session_id"`
	HookEventName string `json:"hook_event_name"`
	Message       string `json:"message"`
	Cwd           string `json:"cwd"`
}

// applyHook fills req from a hook payload without overriding explicit flags.
func applyHook(req *notify.Request, r io.Reader, explicit func(string) bool) error {
	var p hookPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return fmt.Errorf("invalid hook payload: %w", err)
	}
	// The receiver maps a conversation id back to the session that owns it.
	if req.SessionID == "" {
		req.SessionID = p.SessionID
	}
	if p.HookEventName != "" && !explicit("event") {
		req.Event = strings.ToLower(p.HookEventName)
	}
	if req.Message == "" {
		req.Message = p.Message
	}
	if req.Message == "" && req.Event == "stop" {
		req.Message = "Claude finished responding."
	}
	if req.Project == "" && p.Cwd != "" {
		req.Project = filepath.Base(p.Cwd)
	}
	return nil
}

// receiverURL turns a listen address such as ":3847" into a base URL.
func receiverURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return "http://" + addr
}

func buildNotifyRequest(cfg *config.Config, cmd *cobra.Command, stdin io.Reader) (notify.Request, error) {
	req := notify.Request{
		UserID:    notifyUser,
		SessionID: notifySession,
		Event:     notifyEvent,
		Message:   notifyMessage,
		Project:   notifyProject,
	}
	if req.UserID == 0 {
		if len(cfg.AllowedUsers) == 0 {
			return req, fmt.Errorf("no --user given and allowed_users is empty")
		}
		req.UserID = cfg.AllowedUsers[0]
	}
	if notifyHook {
		if err := applyHook(&req, stdin, cmd.Flags().Changed); err != nil {
			return req, err
		}
	}
	if req.SessionID == "" {
		req.SessionID = notify.ShellSessionID
	}
	return req, nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	req, err := buildNotifyRequest(cfg, cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}

	base := notifyURL
	if base == "" {
		base = receiverURL(cfg.NotifyAddr)
	}

	opts := httpclient.DefaultOptions("notify-cli")
	opts.RetryMax = 1
	var failure struct {
		Error string `json:"error"`
	}
	resp, err := httpclient.New(opts).R().
		SetContext(cmd.Context()).
		SetBody(req).
		SetError(&failure).
		Post(strings.TrimRight(base, "/") + "/notify")
	if err != nil {
		return fmt.Errorf("error contacting %s: %w", base, err)
	}
	if resp.StatusCode() != http.StatusOK {
		if failure.Error != "" {
			return fmt.Errorf("notify rejected (%d): %s", resp.StatusCode(), failure.Error)
		}
		return fmt.Errorf("notify rejected: HTTP %d", resp.StatusCode())
	}
	return nil
}
