// Package store keeps an optional on-disk snapshot of the session registry
// so sessions survive a restart. Only the records are kept: any invocation
// that was running when the process stopped is lost, and restored sessions
// always come back idle.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/session"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	project TEXT NOT NULL,
	worktree TEXT NOT NULL DEFAULT '',
	work_dir TEXT NOT NULL,
	last_message TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL DEFAULT '',
	created_at_ns INTEGER NOT NULL,
	last_activity_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at_ns);`

// Snapshot is a sqlite-backed session snapshot.
type Snapshot struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the snapshot database at path.
func Open(path string) (*Snapshot, error) {
	const op errors.Op = "store.Open"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.E(op, errors.KindIO, fmt.Sprintf("create dir for %s", path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, path, err)
	}
	// A single writer avoids SQLITE_BUSY between the OnChange hook and shutdown.
	db.SetMaxOpenConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
	_, _ = db.Exec("PRAGMA journal_mode = WAL;")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL;")

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.E(op, errors.KindIO, "create schema", err)
	}
	return &Snapshot{path: path, db: db}, nil
}

// Path returns the database file location.
func (s *Snapshot) Path() string {
	return s.path
}

// Save replaces the stored snapshot with sessions.
func (s *Snapshot) Save(ctx context.Context, sessions []session.Session) error {
	const op errors.Op = "store.Save"

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return errors.E(op, errors.KindIO, "clear", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sessions
		(id, user_id, project, worktree, work_dir, last_message, conversation_id, created_at_ns, last_activity_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.E(op, errors.KindIO, "prepare", err)
	}
	defer stmt.Close()

	for _, sess := range sessions {
		if _, err := stmt.ExecContext(ctx,
			sess.ID, sess.UserID, sess.Project, sess.Worktree, sess.WorkDir,
			sess.LastMessage, sess.ConversationID,
			sess.CreatedAt.UnixNano(), sess.LastActivity.UnixNano(),
		); err != nil {
			return errors.E(op, errors.KindIO, fmt.Sprintf("insert %s", sess.ID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.E(op, errors.KindIO, "commit", err)
	}
	return nil
}

// Load reads the snapshot. Every record is returned idle.
func (s *Snapshot) Load(ctx context.Context) ([]session.Session, error) {
	const op errors.Op = "store.Load"

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, project, worktree, work_dir,
		last_message, conversation_id, created_at_ns, last_activity_ns
		FROM sessions ORDER BY created_at_ns, id`)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		var (
			sess              session.Session
			created, activity int64
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Project, &sess.Worktree, &sess.WorkDir,
			&sess.LastMessage, &sess.ConversationID, &created, &activity); err != nil {
			return nil, errors.E(op, errors.KindIO, "scan", err)
		}
		sess.CreatedAt = time.Unix(0, created)
		sess.LastActivity = time.Unix(0, activity)
		sess.Status = session.StatusIdle
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	return out, nil
}

// Close closes the database.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
