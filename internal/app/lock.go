package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/superclaude/superclaude/internal/errors"
)

// LockFile is created next to the snapshot so that two instances never
// long-poll the same bot token.
const LockFile = "superclaude.lock"

// Lock is an exclusive PID file.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock creates path exclusively and writes the current PID into it.
func AcquireLock(path string) (*Lock, error) {
	op := errors.Op("app.AcquireLock")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.E(op, errors.KindIO, "create lock directory", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if data, readErr := os.ReadFile(path); readErr == nil {
				return nil, errors.E(op, errors.KindBusy, fmt.Sprintf(
					"another instance holds the lock (PID %s); run `superclaude clean` if it is not running",
					strings.TrimSpace(string(data))))
			}
			return nil, errors.E(op, errors.KindBusy, "lock already held at "+path)
		}
		return nil, errors.E(op, errors.KindIO, "create lock file", err)
	}

	fmt.Fprintf(f, "%d", os.Getpid())
	return &Lock{path: path, file: f}, nil
}

// Release closes and removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if l.file != nil {
		l.file.Close()
	}
	return os.Remove(l.path)
}
