// Package telegram adapts the Telegram Bot API to the bot package: a small
// HTTP client, a Messenger implementation and a long-polling loop that turns
// updates into bot events.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/superclaude/superclaude/internal/bot"
	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/httpclient"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Client calls Bot API methods.
type Client struct {
	http    *resty.Client
	token   string
	apiBase string
	redact  *httpclient.Redactor
}

// NewClient creates a client for token. apiBase defaults to DefaultAPIBase.
func NewClient(http *resty.Client, token, apiBase string) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		http:    http,
		token:   token,
		apiBase: strings.TrimRight(apiBase, "/"),
		redact:  httpclient.NewRedactor(token),
	}
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	op := errors.Op("telegram." + method)

	var env apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(params).
		Post(fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method))
	if err != nil {
		// Transport errors quote the request URL, which carries the token.
		return errors.E(op, errors.KindNetwork, c.redact.Error(err))
	}
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return errors.E(op, errors.KindNetwork, fmt.Sprintf("HTTP %d with unreadable body", resp.StatusCode()), err)
	}
	if !env.OK {
		return errors.E(op, errors.KindNetwork, fmt.Sprintf("api error %d: %s", env.ErrorCode, env.Description))
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return errors.E(op, errors.KindNetwork, "decode result", err)
		}
	}
	return nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]interface{}{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}, &updates)
	return updates, err
}

// SendMessage sends text with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard [][]InlineKeyboardButton) error {
	params := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if len(keyboard) > 0 {
		params["reply_markup"] = InlineKeyboardMarkup{InlineKeyboard: keyboard}
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	params := map[string]interface{}{"callback_query_id": id}
	if text != "" {
		params["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

// GetFile resolves a file id to its server-side path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]string{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// FileURL is the download URL for a path returned by GetFile.
func (c *Client) FileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, strings.TrimLeft(filePath, "/"))
}

// Send implements bot.Messenger.
func (c *Client) Send(ctx context.Context, chatID int64, msg bot.OutboundMessage) error {
	var keyboard [][]InlineKeyboardButton
	for _, row := range msg.Buttons {
		kr := make([]InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			kr = append(kr, InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		keyboard = append(keyboard, kr)
	}
	return c.SendMessage(ctx, chatID, msg.Text, keyboard)
}

// AnswerCallback implements bot.Messenger.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return c.AnswerCallbackQuery(ctx, callbackID, text)
}
