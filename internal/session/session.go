package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusWaiting Status = "waiting"
)

// ExcerptWidth bounds LastMessage, in display columns.
const ExcerptWidth = 500

// Session is one conversational thread bound to a working directory.
type Session struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"user_id"`
	Project        string    `json:"project"`
	Worktree       string    `json:"worktree,omitempty"` // Empty for the project root
	WorkDir        string    `json:"work_dir"`
	Status         Status    `json:"status"`
	LastMessage    string    `json:"last_message,omitempty"`
	LastActivity   time.Time `json:"last_activity"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id,omitempty"` // Assistant-side id passed back with --resume
}

// Busy reports whether an invocation is outstanding for the session.
func (s *Session) Busy() bool {
	return s.Status == StatusWorking || s.Status == StatusWaiting
}

// Label is the human-readable "project/worktree" pair.
func (s *Session) Label() string {
	if s.Worktree == "" {
		return s.Project
	}
	return s.Project + "/" + s.Worktree
}

// UserState holds one identity's sessions and which of them is active.
type UserState struct {
	Sessions map[string]*Session
	Active   string
}

func newUserState() *UserState {
	return &UserState{Sessions: make(map[string]*Session)}
}

// Excerpt trims output to at most ExcerptWidth display columns.
func Excerpt(output string) string {
	return runewidth.Truncate(strings.TrimSpace(output), ExcerptWidth, "…")
}

// idPrefix builds "{project}[-{worktree}]".
func idPrefix(project, worktree string) string {
	if worktree == "" {
		return project
	}
	return project + "-" + worktree
}

func formatID(prefix string, millis int64) string {
	return prefix + "-" + strconv.FormatInt(millis, 36)
}
