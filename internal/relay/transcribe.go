// Package relay turns voice, image and document messages into input the
// assistant can use: text from the speech-to-text service, or files on disk.
package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

type transcribeRequest struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

type transcribeResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcriber calls the speech-to-text service.
type Transcriber struct {
	client   *resty.Client
	baseURL  string
	language string
}

// NewTranscriber creates a transcriber for the service at baseURL. language
// may be empty to let the service detect it.
func NewTranscriber(client *resty.Client, baseURL, language string) *Transcriber {
	return &Transcriber{client: client, baseURL: strings.TrimRight(baseURL, "/"), language: language}
}

// Transcribe asks the service to fetch mediaURL and return its text. Any
// non-200 status, transport failure or empty result is a transcription error.
func (t *Transcriber) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	log := logger.ComponentLogger("relay")

	var out transcribeResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(transcribeRequest{URL: mediaURL, Language: t.language}).
		SetResult(&out).
		Post(t.baseURL + "/transcribe/url")
	if err != nil {
		return "", errors.TranscriptionFailed("transcription service unreachable", err)
	}
	if resp.StatusCode() != 200 {
		log.Warn("transcription failed", zap.Int("status", resp.StatusCode()), zap.String("body", truncate(resp.String(), 200)))
		return "", errors.TranscriptionFailed(fmt.Sprintf("transcription service returned %d", resp.StatusCode()), nil)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", errors.TranscriptionFailed("no speech recognized", nil)
	}
	log.Debug("transcribed", zap.String("language", out.Language), zap.Float64("duration", out.Duration))
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
