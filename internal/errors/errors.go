// Package errors provides structured error types for superclaude.
// These errors carry the operation that failed and a Kind that handler
// boundaries use to decide how a failure is shown to the user or caller.
package errors

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindUnauthorized
	KindBusy
	KindTranscription
	KindInvocation
	KindDelivery
	KindCanceled
	KindTimeout
	KindConfig
	KindIO
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindUnauthorized:
		return "unauthorized"
	case KindBusy:
		return "busy"
	case KindTranscription:
		return "transcription error"
	case KindInvocation:
		return "assistant error"
	case KindDelivery:
		return "delivery error"
	case KindCanceled:
		return "canceled"
	case KindTimeout:
		return "timeout"
	case KindConfig:
		return "configuration error"
	case KindIO:
		return "I/O error"
	case KindNetwork:
		return "network error"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for superclaude.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Detail returns the innermost human-readable message of err: the context
// string if one was given, otherwise the wrapped error's text. Used when
// showing diagnostics to a chat user without the Op prefix.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Context != "" {
			return e.Context
		}
		if e.Err != nil {
			return Detail(e.Err)
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Session errors
func SessionNotFound(id string) error {
	return E(Op("session.Get"), KindNotFound, fmt.Sprintf("session %s not found", id))
}

func SessionBusy(id string) error {
	return E(Op("session.BeginWork"), KindBusy, fmt.Sprintf("session %s is busy", id))
}

// Catalog errors
func ProjectNotFound(name string) error {
	return E(Op("catalog.Resolve"), KindNotFound, fmt.Sprintf("project %s not found", name))
}

// Config errors
func ConfigLoadFailed(path string, err error) error {
	return E(Op("config.Load"), KindConfig, fmt.Sprintf("failed to load config from %s", path), err)
}

func ConfigInvalid(reason string) error {
	return E(Op("config.Validate"), KindInvalid, reason)
}

// Access errors
func Unauthorized(userID int64) error {
	return E(Op("auth.Check"), KindUnauthorized, fmt.Sprintf("user %d is not allowed", userID))
}

// Relay errors
func TranscriptionFailed(reason string, err error) error {
	if err == nil {
		return E(Op("relay.Transcribe"), KindTranscription, reason)
	}
	return E(Op("relay.Transcribe"), KindTranscription, reason, err)
}

// Claude errors
func InvocationFailed(sessionID, detail string) error {
	return E(Op("claude.Invoke"), KindInvocation, detail, fmt.Errorf("invocation for session %s failed", sessionID))
}

func InvocationCanceled(sessionID string) error {
	return E(Op("claude.Invoke"), KindCanceled, fmt.Sprintf("invocation for session %s was canceled", sessionID))
}

func InvocationTimeout(sessionID string) error {
	return E(Op("claude.Invoke"), KindTimeout, fmt.Sprintf("invocation for session %s timed out", sessionID))
}

// Delivery errors
func DeliveryFailed(chatID int64, err error) error {
	return E(Op("bot.Deliver"), KindDelivery, fmt.Sprintf("failed to deliver to chat %d", chatID), err)
}
