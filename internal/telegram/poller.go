package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/superclaude/superclaude/internal/bot"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

const (
	// DefaultPollTimeout is the long-poll timeout passed to getUpdates, in seconds.
	DefaultPollTimeout = 30

	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Handler consumes converted events. *bot.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event)
}

// Poller long-polls getUpdates and dispatches each update on its own goroutine.
type Poller struct {
	client  *Client
	handler Handler
	timeout int
	log     *zap.Logger

	offset int64
	wg     sync.WaitGroup
}

// NewPoller creates a poller. timeoutSec <= 0 uses DefaultPollTimeout.
func NewPoller(client *Client, handler Handler, timeoutSec int) *Poller {
	if timeoutSec <= 0 {
		timeoutSec = DefaultPollTimeout
	}
	return &Poller{
		client:  client,
		handler: handler,
		timeout: timeoutSec,
		log:     logger.ComponentLogger("telegram"),
	}
}

// Run polls until ctx is done, then waits for in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	defer p.wg.Wait()

	backoff := minBackoff
	p.log.Info("polling started", zap.Int("timeout", p.timeout))
	for {
		if ctx.Err() != nil {
			p.log.Info("polling stopped")
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.Warn("getUpdates failed", zap.Error(err), zap.Duration("retryIn", backoff))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
}

// Offset is the next update id that will be requested.
func (p *Poller) Offset() int64 {
	return p.offset
}

func (p *Poller) dispatch(ctx context.Context, u Update) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ev, ok := p.convert(ctx, u)
		if !ok {
			p.log.Debug("ignoring update", zap.Int64("updateID", u.UpdateID))
			return
		}
		p.handler.Handle(ctx, ev)
	}()
}

// convert maps an update onto a bot event, resolving media to download URLs.
func (p *Poller) convert(ctx context.Context, u Update) (bot.Event, bool) {
	if cq := u.CallbackQuery; cq != nil {
		ev := bot.Event{
			UserID:       cq.From.ID,
			ChatID:       cq.From.ID,
			Kind:         bot.EventCallback,
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}
		if cq.Message != nil {
			ev.ChatID = cq.Message.Chat.ID
		}
		return ev, true
	}

	m := u.Message
	if m == nil || m.From == nil {
		return bot.Event{}, false
	}
	ev := bot.Event{UserID: m.From.ID, ChatID: m.Chat.ID, Text: m.Caption}

	var fileID string
	switch {
	case m.Voice != nil:
		ev.Kind, fileID = bot.EventVoice, m.Voice.FileID
	case m.Audio != nil:
		ev.Kind, fileID = bot.EventVoice, m.Audio.FileID
	case len(m.Photo) > 0:
		ev.Kind, fileID = bot.EventImage, largestPhoto(m.Photo).FileID
	case m.Document != nil:
		ev.Kind, fileID = bot.EventDocument, m.Document.FileID
		ev.FileName = m.Document.FileName
	case strings.HasPrefix(m.Text, "/"):
		ev.Kind = bot.EventCommand
		ev.Command, ev.Args = ParseCommand(m.Text)
		ev.Text = m.Text
		return ev, true
	case strings.TrimSpace(m.Text) != "":
		ev.Kind = bot.EventText
		ev.Text = m.Text
		return ev, true
	default:
		return bot.Event{}, false
	}

	f, err := p.client.GetFile(ctx, fileID)
	if err != nil {
		// The router reports the empty URL as a failed fetch.
		p.log.Warn("getFile failed", zap.String("fileID", fileID), zap.Error(err))
		return ev, true
	}
	ev.MediaURL = p.client.FileURL(f.FilePath)
	return ev, true
}

func largestPhoto(sizes []PhotoSize) PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

// ParseCommand splits "/cmd@botname arg1 arg2" into "cmd" and its arguments.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}
