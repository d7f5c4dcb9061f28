package session

import (
	"sort"
	"sync"
	"time"

	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/git"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// Resolver maps a project and worktree to an existing working directory.
type Resolver interface {
	ResolveWorkDir(project, worktree string) (string, error)
}

// Canceller terminates the process tracked for a session, if any.
type Canceller interface {
	Cancel(sessionID string) bool
}

// Store is the process-wide session registry. All access is serialized by a
// single RWMutex and callers only ever receive copies.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]*UserState
	owners   map[string]int64
	deleting map[string]bool // Ids whose Delete is in progress

	resolver  Resolver
	canceller Canceller
	onChange  func()
	now       func() time.Time
}

// NewStore creates an empty store. canceller may be nil.
func NewStore(resolver Resolver, canceller Canceller) *Store {
	return &Store{
		users:     make(map[int64]*UserState),
		owners:    make(map[string]int64),
		deleting:  make(map[string]bool),
		resolver:  resolver,
		canceller: canceller,
		now:       time.Now,
	}
}

// OnChange registers fn to run after every mutation, outside the lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Store) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Create registers a new session for (project, worktree) and makes it active.
// A fresh ID is allocated even when an identical pair is already open.
func (s *Store) Create(userID int64, project, worktree string) (*Session, error) {
	if worktree == git.RootWorktree {
		worktree = ""
	}
	workDir, err := s.resolver.ResolveWorkDir(project, worktree)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := s.now()
	prefix := idPrefix(project, worktree)
	millis := now.UnixMilli()
	id := formatID(prefix, millis)
	for {
		if _, taken := s.owners[id]; !taken {
			break
		}
		millis++
		id = formatID(prefix, millis)
	}

	sess := &Session{
		ID:           id,
		UserID:       userID,
		Project:      project,
		Worktree:     worktree,
		WorkDir:      workDir,
		Status:       StatusIdle,
		LastActivity: now,
		CreatedAt:    now,
	}
	us := s.userLocked(userID)
	us.Sessions[id] = sess
	us.Active = id
	s.owners[id] = userID
	cp := *sess
	s.mu.Unlock()

	logger.WithSession(id).Info("session created",
		zap.Int64("userID", userID), zap.String("workDir", workDir))
	s.changed()
	return &cp, nil
}

func (s *Store) userLocked(userID int64) *UserState {
	us, ok := s.users[userID]
	if !ok {
		us = newUserState()
		s.users[userID] = us
	}
	return us
}

// getLocked returns the internal pointer for a session owned by userID.
func (s *Store) getLocked(userID int64, id string) *Session {
	us, ok := s.users[userID]
	if !ok {
		return nil
	}
	return us.Sessions[id]
}

// Active returns the identity's active session. Having none is normal.
func (s *Store) Active(userID int64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	us, ok := s.users[userID]
	if !ok || us.Active == "" {
		return nil, false
	}
	sess, ok := us.Sessions[us.Active]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// Get returns a copy of the session if userID owns it.
func (s *Store) Get(userID int64, id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.getLocked(userID, id)
	if sess == nil {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// Runnable reports whether userID owns id and no Delete of it has started.
// A run registers its process before asking, so a concurrent Delete either
// sees the process to cancel or makes this return false.
func (s *Store) Runnable(userID int64, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(userID, id) != nil && !s.deleting[id]
}

// List returns copies of the identity's sessions ordered by creation time.
func (s *Store) List(userID int64) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	us, ok := s.users[userID]
	if !ok {
		return nil
	}
	out := make([]Session, 0, len(us.Sessions))
	for _, sess := range us.Sessions {
		out = append(out, *sess)
	}
	sortByCreation(out)
	return out
}

// Switch makes id the active session. It fails with NotFound unless userID
// owns id, leaving the previous pointer untouched.
func (s *Store) Switch(userID int64, id string) error {
	s.mu.Lock()
	if s.getLocked(userID, id) == nil {
		s.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	us := s.users[userID]
	changed := us.Active != id
	us.Active = id
	s.mu.Unlock()

	if changed {
		s.changed()
	}
	return nil
}

// Delete cancels the session's process and removes it. Deleting an unknown
// or foreign id is a no-op that returns false.
func (s *Store) Delete(userID int64, id string) bool {
	s.mu.Lock()
	owned := s.getLocked(userID, id) != nil
	if owned {
		s.deleting[id] = true
	}
	canceller := s.canceller
	s.mu.Unlock()
	if !owned {
		return false
	}

	if canceller != nil {
		canceller.Cancel(id)
	}

	s.mu.Lock()
	delete(s.deleting, id)
	us, ok := s.users[userID]
	if !ok || us.Sessions[id] == nil {
		s.mu.Unlock()
		return false
	}
	delete(us.Sessions, id)
	delete(s.owners, id)
	if us.Active == id {
		us.Active = pickReplacement(us.Sessions)
	}
	s.mu.Unlock()

	logger.WithSession(id).Info("session deleted", zap.Int64("userID", userID))
	s.changed()
	return true
}

// pickReplacement returns the most recently active session, ties broken by
// the lexically smallest ID, or "" when none remain.
func pickReplacement(sessions map[string]*Session) string {
	var best *Session
	for _, sess := range sessions {
		switch {
		case best == nil:
			best = sess
		case sess.LastActivity.After(best.LastActivity):
			best = sess
		case sess.LastActivity.Equal(best.LastActivity) && sess.ID < best.ID:
			best = sess
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// BeginWork moves the session to working. A session that is already working
// or waiting is rejected with KindBusy so one session never has two
// overlapping invocations.
func (s *Store) BeginWork(userID int64, id string) error {
	s.mu.Lock()
	sess := s.getLocked(userID, id)
	if sess == nil {
		s.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	if sess.Busy() {
		s.mu.Unlock()
		return errors.SessionBusy(id)
	}
	sess.Status = StatusWorking
	sess.LastActivity = s.now()
	s.mu.Unlock()

	s.changed()
	return nil
}

// FinishWork returns the session to idle and records the response excerpt.
// conversationID replaces the stored one when non-empty.
func (s *Store) FinishWork(userID int64, id, output, conversationID string) bool {
	s.mu.Lock()
	sess := s.getLocked(userID, id)
	if sess == nil {
		s.mu.Unlock()
		return false
	}
	sess.Status = StatusIdle
	sess.LastMessage = Excerpt(output)
	sess.LastActivity = s.now()
	if conversationID != "" {
		sess.ConversationID = conversationID
	}
	s.mu.Unlock()

	s.changed()
	return true
}

// FailWork returns the session to idle after a failed or cancelled invocation.
func (s *Store) FailWork(userID int64, id string) bool {
	s.mu.Lock()
	sess := s.getLocked(userID, id)
	if sess == nil {
		s.mu.Unlock()
		return false
	}
	sess.Status = StatusIdle
	sess.LastActivity = s.now()
	s.mu.Unlock()

	s.changed()
	return true
}

// MarkWaiting flags a working session as waiting for input. Sessions in any
// other state are left alone.
func (s *Store) MarkWaiting(id string) bool {
	s.mu.Lock()
	owner, ok := s.owners[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	sess := s.getLocked(owner, id)
	if sess == nil || sess.Status != StatusWorking {
		s.mu.Unlock()
		return false
	}
	sess.Status = StatusWaiting
	s.mu.Unlock()

	s.changed()
	return true
}

// Lookup finds a session by id regardless of owner.
func (s *Store) Lookup(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[id]
	if !ok {
		return nil, false
	}
	sess := s.getLocked(owner, id)
	if sess == nil {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// LookupConversation finds the session whose last invocation reported
// conversationID.
func (s *Store) LookupConversation(conversationID string) (*Session, bool) {
	if conversationID == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, us := range s.users {
		for _, sess := range us.Sessions {
			if sess.ConversationID == conversationID {
				cp := *sess
				return &cp, true
			}
		}
	}
	return nil, false
}

// All returns copies of every session across identities.
func (s *Store) All() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.owners))
	for _, us := range s.users {
		for _, sess := range us.Sessions {
			out = append(out, *sess)
		}
	}
	sortByCreation(out)
	return out
}

// Count returns the number of sessions across identities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.owners)
}

// Restore loads previously saved sessions. Every restored session comes back
// idle since its process did not survive the restart, and each identity's
// most recently active session becomes active. Duplicate ids are skipped.
func (s *Store) Restore(sessions []Session) int {
	s.mu.Lock()
	restored := 0
	for i := range sessions {
		sess := sessions[i]
		if sess.ID == "" {
			continue
		}
		if _, taken := s.owners[sess.ID]; taken {
			continue
		}
		sess.Status = StatusIdle
		us := s.userLocked(sess.UserID)
		us.Sessions[sess.ID] = &sess
		s.owners[sess.ID] = sess.UserID
		restored++
	}
	for _, us := range s.users {
		if us.Active == "" {
			us.Active = pickReplacement(us.Sessions)
		}
	}
	s.mu.Unlock()

	if restored > 0 {
		logger.ComponentLogger("session").Info("sessions restored", zap.Int("count", restored))
	}
	return restored
}

func sortByCreation(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
