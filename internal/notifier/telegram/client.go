// Package telegram implements message delivery over the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/storebotdev/storebot-go/internal/broadcast"
	"github.com/storebotdev/storebot-go/internal/config"
	"github.com/storebotdev/storebot-go/internal/httpclient"
	"github.com/storebotdev/storebot-go/internal/logutil"
	"github.com/storebotdev/storebot-go/internal/store"
)

// Client talks to the Telegram Bot API. It implements broadcast.Notifier
// and the message deletion used by session cleanup.
type Client struct {
	http    *httpclient.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

// New creates a Client against cfg.APIBaseURL using the given outbound
// HTTP client.
func New(cfg *config.TelegramConfig, hc *httpclient.Client, logger *slog.Logger) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		token:   cfg.Token,
		logger:  logutil.NoopIfNil(logger),
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// sentMessage is the subset of the Message object we consume.
type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	data, _, err := c.http.PostJSON(ctx, url, body)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("%s rejected: %s (code %d)", method, resp.Description, resp.ErrorCode)
	}
	return resp.Result, nil
}

func (c *Client) callForMessageID(ctx context.Context, method string, payload any) (int64, error) {
	result, err := c.call(ctx, method, payload)
	if err != nil {
		return 0, err
	}
	var msg sentMessage
	if err := json.Unmarshal(result, &msg); err != nil {
		return 0, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return msg.MessageID, nil
}

// Send delivers msg to the recipient chat and returns the new message id.
// Media attachments use sendPhoto or sendVideo with the stored file
// reference; plain content uses sendMessage.
func (c *Client) Send(ctx context.Context, recipient string, msg broadcast.OutgoingMessage) (int64, error) {
	if msg.Media != nil {
		payload := map[string]any{
			"chat_id": recipient,
			"caption": captionFor(msg),
		}
		if len(msg.Entities) > 0 {
			payload["caption_entities"] = msg.Entities
		}
		switch msg.Media.Type {
		case store.MediaPhoto:
			payload["photo"] = msg.Media.FileRef
			return c.callForMessageID(ctx, "sendPhoto", payload)
		case store.MediaVideo:
			payload["video"] = msg.Media.FileRef
			return c.callForMessageID(ctx, "sendVideo", payload)
		default:
			return 0, fmt.Errorf("unsupported media type %q", msg.Media.Type)
		}
	}

	payload := map[string]any{
		"chat_id": recipient,
		"text":    msg.Content,
	}
	if len(msg.Entities) > 0 {
		payload["entities"] = msg.Entities
	}
	return c.callForMessageID(ctx, "sendMessage", payload)
}

// Edit rewrites a previously delivered message in place. Media messages get
// their caption edited; text messages get their text edited.
func (c *Client) Edit(ctx context.Context, recipient string, messageID int64, msg broadcast.OutgoingMessage) error {
	if msg.Media != nil {
		payload := map[string]any{
			"chat_id":    recipient,
			"message_id": messageID,
			"caption":    captionFor(msg),
		}
		if len(msg.Entities) > 0 {
			payload["caption_entities"] = msg.Entities
		}
		_, err := c.call(ctx, "editMessageCaption", payload)
		return err
	}

	payload := map[string]any{
		"chat_id":    recipient,
		"message_id": messageID,
		"text":       msg.Content,
	}
	if len(msg.Entities) > 0 {
		payload["entities"] = msg.Entities
	}
	_, err := c.call(ctx, "editMessageText", payload)
	return err
}

// captionFor picks the caption for a media message. The attachment's own
// caption wins; the message content is the fallback.
func captionFor(msg broadcast.OutgoingMessage) string {
	if msg.Media.Caption != "" {
		return msg.Media.Caption
	}
	return msg.Content
}

// DeleteMessage removes a message from the recipient chat.
func (c *Client) DeleteMessage(ctx context.Context, recipient string, messageID int64) error {
	_, err := c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    recipient,
		"message_id": messageID,
	})
	return err
}

var _ broadcast.Notifier = (*Client)(nil)
