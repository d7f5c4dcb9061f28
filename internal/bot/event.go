// Package bot routes chat events to sessions and the assistant. It knows
// nothing about any particular messaging API: adapters turn their updates
// into Events and implement Messenger for replies.
package bot

import "context"

// EventKind classifies an inbound event.
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventVoice
	EventImage
	EventDocument
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventCommand:
		return "command"
	case EventVoice:
		return "voice"
	case EventImage:
		return "image"
	case EventDocument:
		return "document"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Event is one inbound action from a chat identity.
type Event struct {
	UserID int64
	ChatID int64
	Kind   EventKind

	Text    string   // Message text, or the caption of a media message
	Command string   // Command name without the leading slash
	Args    []string // Command arguments

	MediaURL string // Fetchable URL for voice, image and document events
	FileName string // Original document name

	CallbackID   string
	CallbackData string
}

// Button is an inline control attached to a message.
type Button struct {
	Text string
	Data string
}

// OutboundMessage is a reply with optional rows of inline buttons.
type OutboundMessage struct {
	Text    string
	Buttons [][]Button
}

// Messenger delivers replies to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg OutboundMessage) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
