// Package notify is the HTTP receiver for session events sent by the
// assistant's hooks. Each accepted event is pushed to the owning chat as an
// alert with quick-action buttons.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/superclaude/superclaude/internal/bot"
	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/logger"
	"github.com/superclaude/superclaude/internal/metrics"
	"github.com/superclaude/superclaude/internal/notification"
	"github.com/superclaude/superclaude/internal/session"
	"go.uber.org/zap"
)

// ShellSessionID tags events posted through /notify/simple.
const ShellSessionID = "shell"

// Sessions is the slice of the session store the receiver reads.
type Sessions interface {
	Lookup(id string) (*session.Session, bool)
	LookupConversation(conversationID string) (*session.Session, bool)
	MarkWaiting(id string) bool
	Count() int
}

// Processes reports live assistant processes.
type Processes interface {
	Running() []string
}

// Config configures the receiver.
type Config struct {
	Addr         string
	AllowedUsers []int64
	RateLimit    RateLimitConfig
	Development  bool // Keep gin's debug output
}

// Deps are the collaborators the receiver needs.
type Deps struct {
	Sessions  Sessions
	Processes Processes
	Messenger bot.Messenger
	Metrics   *metrics.Metrics
	Desktop   *notification.Desktop
	Callbacks *bot.CallbackTable // Shortens button payloads for long session ids
}

// Request is the body of POST /notify.
type Request struct {
	UserID    int64  `json:"userId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
	Event     string `json:"event"`
	Message   string `json:"message"`
	Project   string `json:"project,omitempty"`
}

type simpleQuery struct {
	UserID  int64  `form:"user_id" binding:"required"`
	Message string `form:"message" binding:"required"`
	Event   string `form:"event"`
}

// Server is the notification receiver.
type Server struct {
	cfg     Config
	deps    Deps
	allowed map[int64]bool
	engine  *gin.Engine
	log     *zap.Logger
}

// NewServer builds the gin engine with its middleware and routes.
func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		allowed: make(map[int64]bool, len(cfg.AllowedUsers)),
		log:     logger.ComponentLogger("notify"),
	}
	for _, id := range cfg.AllowedUsers {
		s.allowed[id] = true
	}

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.log))
	engine.Use(deps.Metrics.Middleware())
	engine.Use(GlobalRateLimit(cfg.RateLimit))

	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	engine.POST("/notify", s.notify)
	engine.POST("/notify/simple", s.notifySimple)
	s.engine = engine
	return s
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("notification receiver listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.E(errors.Op("notify.Run"), errors.KindNetwork, "listen "+s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("shutting down notification receiver")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	running := 0
	if s.deps.Processes != nil {
		running = len(s.deps.Processes.Running())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.deps.Sessions.Count(),
		"running":  running,
	})
}

func (s *Server) notify(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.deps.Metrics.ObserveNotification("unknown", "invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.handle(c, req)
}

func (s *Server) notifySimple(c *gin.Context) {
	var q simpleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.deps.Metrics.ObserveNotification("unknown", "invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.handle(c, Request{UserID: q.UserID, SessionID: ShellSessionID, Event: q.Event, Message: q.Message})
}

func (s *Server) handle(c *gin.Context, req Request) {
	if req.Event == "" {
		req.Event = "notification"
	}
	log := s.log.With(zap.Int64("userID", req.UserID), zap.String("sessionID", req.SessionID), zap.String("event", req.Event))

	if !s.allowed[req.UserID] {
		err := errors.Unauthorized(req.UserID)
		log.Warn("rejected notification", zap.Error(err))
		s.deps.Metrics.ObserveNotification(req.Event, "rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	sess := s.resolve(req)
	if sess != nil {
		req.SessionID = sess.ID
		if marksWaiting(req.Event) && s.deps.Sessions.MarkWaiting(sess.ID) {
			sess.Status = session.StatusWaiting
		}
	}

	msg := bot.OutboundMessage{
		Text:    FormatAlert(req, sess),
		Buttons: AlertButtons(s.deps.Callbacks, req.SessionID),
	}
	if err := s.deps.Messenger.Send(c.Request.Context(), req.UserID, msg); err != nil {
		err = errors.DeliveryFailed(req.UserID, err)
		log.Error("alert delivery failed", zap.Error(err))
		s.deps.Metrics.ObserveNotification(req.Event, "failed")
		s.deps.Metrics.ObserveDeliveryError()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.deps.Desktop.Alert(req.Event, req.SessionID, req.Message); err != nil {
		log.Debug("desktop mirror failed", zap.Error(err))
	}
	s.deps.Metrics.ObserveNotification(req.Event, "delivered")
	log.Info("alert delivered")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// resolve finds the caller's session by id, or by the assistant's
// conversation id when a hook reports that instead. Sessions owned by other
// identities are never returned.
func (s *Server) resolve(req Request) *session.Session {
	found, ok := s.deps.Sessions.Lookup(req.SessionID)
	if !ok {
		found, ok = s.deps.Sessions.LookupConversation(req.SessionID)
	}
	if !ok || found.UserID != req.UserID {
		return nil
	}
	return found
}

func marksWaiting(event string) bool {
	switch strings.ToLower(event) {
	case "notification", "waiting", "input":
		return true
	}
	return false
}

func eventEmoji(event string) string {
	switch strings.ToLower(event) {
	case "stop", "done", "complete", "completed":
		return "✅"
	case "waiting", "input":
		return "❓"
	case "error", "failed":
		return "❌"
	case "notification":
		return "🔔"
	default:
		return "📣"
	}
}

// FormatAlert renders the alert text for req. sess, when known, supplies the
// project and current status.
func FormatAlert(req Request, sess *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", eventEmoji(req.Event), req.Event)
	fmt.Fprintf(&b, "Session: %s", req.SessionID)
	if sess != nil {
		fmt.Fprintf(&b, " (%s)", sess.Status)
	}
	b.WriteString("\n")

	project := req.Project
	if project == "" && sess != nil {
		project = sess.Label()
	}
	if project != "" {
		fmt.Fprintf(&b, "Project: %s\n", project)
	}
	if req.Message != "" {
		fmt.Fprintf(&b, "\n%s", req.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// AlertButtons are the quick actions attached to every alert. Payloads too
// long for Telegram are swapped for tokens from callbacks.
func AlertButtons(callbacks *bot.CallbackTable, sessionID string) [][]bot.Button {
	return [][]bot.Button{{
		{Text: "📊 Status", Data: callbacks.Encode(bot.StatusCallback(sessionID))},
		{Text: "🔀 Switch", Data: callbacks.Encode(bot.SwitchCallback(sessionID))},
	}}
}
