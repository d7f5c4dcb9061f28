package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/superclaude/superclaude/internal/catalog"
	"github.com/superclaude/superclaude/internal/claude"
	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/git"
	"github.com/superclaude/superclaude/internal/logger"
	"github.com/superclaude/superclaude/internal/metrics"
	"github.com/superclaude/superclaude/internal/session"
	"go.uber.org/zap"
)

// Catalog lists projects and worktrees.
type Catalog interface {
	ListProjects() []catalog.Project
	ListWorktrees(ctx context.Context, project string) ([]git.Worktree, error)
}

// Invoker runs the assistant for one request and can interrupt it.
type Invoker interface {
	Invoke(ctx context.Context, req claude.Request) (*claude.Result, error)
	Cancel(sessionID string) bool
}

// Transcriber turns a voice message into text.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

// Downloader materializes media on local disk.
type Downloader interface {
	FetchImage(ctx context.Context, url string) (string, error)
	SaveDocument(ctx context.Context, url, workDir, filename string) (string, error)
	Cleanup(path string)
}

// Config tunes the router.
type Config struct {
	AllowedUsers  []int64
	MaxMessageLen int
}

// Deps are the collaborators a Router calls into.
type Deps struct {
	Store       *session.Store
	Catalog     Catalog
	Invoker     Invoker
	Transcriber Transcriber
	Downloader  Downloader
	Messenger   Messenger
	Metrics     *metrics.Metrics
	Callbacks   *CallbackTable // Shared with other senders of session buttons; optional
}

// Router dispatches events for every identity. It is safe for concurrent use:
// each event may be handled on its own goroutine.
type Router struct {
	cfg     Config
	allowed map[int64]bool

	store       *session.Store
	catalog     Catalog
	invoker     Invoker
	transcriber Transcriber
	downloader  Downloader
	messenger   Messenger
	metrics     *metrics.Metrics
	callbacks   *CallbackTable

	mu      sync.Mutex
	pickers map[int64]*picker
}

// pickerTTL closes a picker the user walked away from.
const pickerTTL = 10 * time.Minute

// picker tracks an open project/worktree selection for one identity.
type picker struct {
	project string // Empty while choosing a project
	opened  time.Time
}

// NewRouter creates a router.
func NewRouter(cfg Config, deps Deps) *Router {
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = DefaultMaxMessageLen
	}
	callbacks := deps.Callbacks
	if callbacks == nil {
		callbacks = NewCallbackTable(0)
	}
	allowed := make(map[int64]bool, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		allowed[id] = true
	}
	return &Router{
		cfg:         cfg,
		allowed:     allowed,
		store:       deps.Store,
		catalog:     deps.Catalog,
		invoker:     deps.Invoker,
		transcriber: deps.Transcriber,
		downloader:  deps.Downloader,
		messenger:   deps.Messenger,
		metrics:     deps.Metrics,
		callbacks:   callbacks,
		pickers:     make(map[int64]*picker),
	}
}

// IsAllowed reports whether userID is on the allow-list.
func (r *Router) IsAllowed(userID int64) bool {
	return r.allowed[userID]
}

// stateFor derives the identity's state from the picker table and the store.
func (r *Router) stateFor(userID int64) State {
	r.mu.Lock()
	p, picking := r.pickers[userID]
	if picking && time.Since(p.opened) > pickerTTL {
		delete(r.pickers, userID)
		picking = false
	}
	r.mu.Unlock()
	if picking {
		return StateAwaitingSelection
	}

	active, ok := r.store.Active(userID)
	switch {
	case !ok:
		return StateNoSession
	case active.Busy():
		return StateWorking
	default:
		return StateIdle
	}
}

func (r *Router) transition(userID int64, from State, in Input) State {
	to := next(from, in)
	if to != from {
		logger.ComponentLogger("bot").Debug("state transition",
			zap.Int64("userID", userID), zap.Stringer("from", from), zap.Stringer("input", in), zap.Stringer("to", to))
	}
	return to
}

func (r *Router) openPicker(userID int64, project string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pickers[userID] = &picker{project: project, opened: time.Now()}
}

// closePicker closes the identity's picker and reports whether one was open.
func (r *Router) closePicker(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pickers[userID]
	delete(r.pickers, userID)
	return ok
}

// Handle processes one event. Panics are recovered so one bad update cannot
// take the process down.
func (r *Router) Handle(ctx context.Context, ev Event) {
	log := logger.ComponentLogger("bot")
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic while handling event", zap.Any("panic", rec),
				zap.Int64("userID", ev.UserID), zap.Stringer("kind", ev.Kind))
			r.reply(ctx, ev.ChatID, "❌ Internal error while handling that message.")
		}
	}()

	r.metrics.ObserveUpdate(ev.Kind.String())

	if !r.IsAllowed(ev.UserID) {
		log.Warn("rejected unauthorized user", zap.Int64("userID", ev.UserID))
		if ev.Kind == EventCallback {
			_ = r.messenger.AnswerCallback(ctx, ev.CallbackID, "Not authorized")
		}
		r.reply(ctx, ev.ChatID, "⛔ You are not authorized to use this bot.")
		return
	}

	switch ev.Kind {
	case EventCommand:
		r.handleCommand(ctx, ev)
	case EventCallback:
		r.handleCallback(ctx, ev)
	case EventText:
		r.handleText(ctx, ev)
	case EventVoice:
		r.handleVoice(ctx, ev)
	case EventImage:
		r.handleImage(ctx, ev)
	case EventDocument:
		r.handleDocument(ctx, ev)
	default:
		log.Debug("ignoring event", zap.Stringer("kind", ev.Kind))
	}
}

// admit checks whether a message may start work and answers it if not.
// It returns the active session when the identity is idle.
func (r *Router) admit(ctx context.Context, ev Event) (*session.Session, bool) {
	from := r.stateFor(ev.UserID)
	to := r.transition(ev.UserID, from, InputMessage)
	if to == StateWorking {
		active, ok := r.store.Active(ev.UserID)
		return active, ok
	}

	switch from {
	case StateNoSession:
		r.reply(ctx, ev.ChatID, "No active session. Use /new to pick a project, or /sessions to switch.")
	case StateAwaitingSelection:
		r.reply(ctx, ev.ChatID, "Pick a project from the buttons above first, or send /cancel to close the picker.")
	case StateWorking:
		active, _ := r.store.Active(ev.UserID)
		r.reply(ctx, ev.ChatID, busyText(active))
	}
	return nil, false
}

func busyText(sess *session.Session) string {
	if sess == nil {
		return "⏳ Session is busy. Wait for the reply or send /cancel."
	}
	return fmt.Sprintf("⏳ Session %s is busy. Wait for the reply or send /cancel.", sess.ID)
}

// run invokes the assistant for sess and delivers the outcome. The session
// is back to idle before the reply goes out, whatever happened.
func (r *Router) run(ctx context.Context, ev Event, sess *session.Session, prompt string, attachments []string) {
	log := logger.WithSession(sess.ID)

	if err := r.store.BeginWork(ev.UserID, sess.ID); err != nil {
		if errors.Is(err, errors.KindBusy) {
			r.reply(ctx, ev.ChatID, busyText(sess))
			return
		}
		r.reply(ctx, ev.ChatID, "Session not found. Use /sessions to pick another.")
		return
	}

	res, err := r.invoker.Invoke(ctx, claude.Request{
		SessionID:      sess.ID,
		WorkDir:        sess.WorkDir,
		Prompt:         prompt,
		Attachments:    attachments,
		ConversationID: sess.ConversationID,
		Live:           func() bool { return r.store.Runnable(ev.UserID, sess.ID) },
	})
	r.transition(ev.UserID, StateWorking, InputInvocationDone)

	if err != nil {
		r.store.FailWork(ev.UserID, sess.ID)
		switch errors.GetKind(err) {
		case errors.KindCanceled:
			r.reply(ctx, ev.ChatID, fmt.Sprintf("⏹ Session %s: request cancelled.", sess.ID))
		case errors.KindTimeout:
			r.reply(ctx, ev.ChatID, fmt.Sprintf("⏱ Session %s: request timed out and was stopped.", sess.ID))
		case errors.KindBusy:
			r.reply(ctx, ev.ChatID, busyText(sess))
		default:
			log.Warn("invocation failed", zap.Error(err))
			r.reply(ctx, ev.ChatID, "❌ Error: "+errors.Detail(err))
		}
		return
	}

	r.store.FinishWork(ev.UserID, sess.ID, res.Output, res.ConversationID)
	if err := r.Deliver(ctx, ev.ChatID, res.Output); err != nil {
		log.Warn("response delivery incomplete", zap.Error(err))
	}
}
