package bot

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// Deliver sends text to chatID in order as bounded chunks. A failed chunk is
// logged and skipped; the remaining chunks are still sent and the failures
// are returned together as a delivery error.
func (r *Router) Deliver(ctx context.Context, chatID int64, text string) error {
	chunks := Chunk(text, r.cfg.MaxMessageLen)
	if len(chunks) == 0 {
		chunks = []string{"(no output)"}
	}

	var result *multierror.Error
	for i, chunk := range chunks {
		if err := r.messenger.Send(ctx, chatID, OutboundMessage{Text: chunk}); err != nil {
			logger.ComponentLogger("bot").Warn("chunk delivery failed",
				zap.Int64("chatID", chatID), zap.Int("chunk", i+1), zap.Int("of", len(chunks)), zap.Error(err))
			r.metrics.ObserveDeliveryError()
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.DeliveryFailed(chatID, err)
	}
	return nil
}

// reply sends a single short message, logging instead of failing.
func (r *Router) reply(ctx context.Context, chatID int64, text string, buttons ...[]Button) {
	if err := r.messenger.Send(ctx, chatID, OutboundMessage{Text: text, Buttons: buttons}); err != nil {
		r.metrics.ObserveDeliveryError()
		logger.ComponentLogger("bot").Warn("reply failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}
