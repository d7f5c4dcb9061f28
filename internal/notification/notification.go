// Package notification mirrors session alerts to the host desktop through
// beeep (notification center on macOS, D-Bus on Linux, toast on Windows).
package notification

import (
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// Title heads every desktop alert.
const Title = "SuperClaude"

// NotifyFunc matches beeep.Notify.
type NotifyFunc func(title, message string, icon any) error

// Desktop sends alerts to the local desktop. A nil *Desktop is a disabled mirror.
type Desktop struct {
	notify NotifyFunc
	log    *zap.Logger
}

// New returns a mirror backed by beeep, or nil when disabled.
func New(enabled bool) *Desktop {
	if !enabled {
		return nil
	}
	return NewWithNotifier(beeep.Notify)
}

// NewWithNotifier returns a mirror that sends through fn.
func NewWithNotifier(fn NotifyFunc) *Desktop {
	return &Desktop{notify: fn, log: logger.ComponentLogger("notification")}
}

// Send shows one desktop notification. Platform defaults pick the icon.
func (d *Desktop) Send(title, message string) error {
	if d == nil {
		return nil
	}
	d.log.Debug("sending desktop notification", zap.String("title", title))
	if err := d.notify(title, message, ""); err != nil {
		d.log.Warn("desktop notification failed", zap.Error(err))
		return err
	}
	return nil
}

// Alert mirrors a session event.
func (d *Desktop) Alert(event, sessionID, message string) error {
	return d.Send(fmt.Sprintf("%s: %s", Title, event), fmt.Sprintf("[%s] %s", sessionID, message))
}
