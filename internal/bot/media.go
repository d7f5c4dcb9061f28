package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

const defaultImagePrompt = "What's in this image?"

// Every media kind is reduced to a prompt (plus attachments) before it
// reaches run, so text, voice, image and document share one path.

func (r *Router) handleText(ctx context.Context, ev Event) {
	sess, ok := r.admit(ctx, ev)
	if !ok {
		return
	}
	r.run(ctx, ev, sess, ev.Text, nil)
}

func (r *Router) handleVoice(ctx context.Context, ev Event) {
	sess, ok := r.admit(ctx, ev)
	if !ok {
		return
	}
	text, err := r.transcriber.Transcribe(ctx, ev.MediaURL)
	if err != nil {
		logger.WithSession(sess.ID).Warn("transcription failed", zap.Error(err))
		r.reply(ctx, ev.ChatID, "❌ Transcription failed: "+errors.Detail(err))
		return
	}
	r.reply(ctx, ev.ChatID, "🎤 "+text)
	r.run(ctx, ev, sess, text, nil)
}

func (r *Router) handleImage(ctx context.Context, ev Event) {
	sess, ok := r.admit(ctx, ev)
	if !ok {
		return
	}
	path, err := r.downloader.FetchImage(ctx, ev.MediaURL)
	if err != nil {
		logger.WithSession(sess.ID).Warn("image download failed", zap.Error(err))
		r.reply(ctx, ev.ChatID, "❌ Could not download the image: "+errors.Detail(err))
		return
	}
	defer r.downloader.Cleanup(path)

	prompt := strings.TrimSpace(ev.Text)
	if prompt == "" {
		prompt = defaultImagePrompt
	}
	r.run(ctx, ev, sess, prompt, []string{path})
}

func (r *Router) handleDocument(ctx context.Context, ev Event) {
	sess, ok := r.admit(ctx, ev)
	if !ok {
		return
	}
	path, err := r.downloader.SaveDocument(ctx, ev.MediaURL, sess.WorkDir, ev.FileName)
	if err != nil {
		logger.WithSession(sess.ID).Warn("document download failed", zap.Error(err))
		r.reply(ctx, ev.ChatID, "❌ Could not save the file: "+errors.Detail(err))
		return
	}
	r.run(ctx, ev, sess, documentPrompt(filepath.Base(path), ev.Text), nil)
}

func documentPrompt(name, caption string) string {
	prompt := fmt.Sprintf("I've uploaded a file named %s to the working directory.", name)
	if caption = strings.TrimSpace(caption); caption != "" {
		prompt += "\n\n" + caption
	}
	return prompt
}
