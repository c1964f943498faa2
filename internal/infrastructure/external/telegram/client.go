// Package telegram implements a thin Telegram Bot API client: sending and
// editing messages, callback answers and long-poll updates.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maktab/baho-bot/pkg/retry"
)

const defaultBaseURL = "https://api.telegram.org"

// ClientConfig configures a Client.
type ClientConfig struct {
	Token   string
	BaseURL string

	// Timeout bounds one HTTP request and must exceed the long-poll timeout.
	Timeout time.Duration

	// RetryAttempts counts the first attempt too.
	RetryAttempts int
	RetryDelay    time.Duration

	// HTTPClient and RetryOptions are test seams.
	HTTPClient   *http.Client
	RetryOptions []retry.Option

	Logger *slog.Logger
}

func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:         token,
		BaseURL:       defaultBaseURL,
		Timeout:       60 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    200 * time.Millisecond,
	}
}

// Client calls the Bot API over HTTPS with JSON bodies.
type Client struct {
	endpoint string
	http     *http.Client
	retrier  *retry.Retrier
	log      *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	log := cfg.Logger.With(slog.String("component", "telegram"))

	opts := append([]retry.Option{
		retry.WithMaxAttempts(cfg.RetryAttempts),
		retry.WithInitialDelay(cfg.RetryDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("bot api call failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
		}),
	}, cfg.RetryOptions...)

	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/bot" + cfg.Token + "/",
		http:     hc,
		retrier:  retry.TelegramRetrier(opts...),
		log:      log,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// METHODS
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageParams is the sendMessage request body.
type SendMessageParams struct {
	ChatID              int64  `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
	DisablePreview      bool   `json:"disable_web_page_preview,omitempty"`

	// ReplyMarkup is one of *InlineKeyboardMarkup, *ReplyKeyboardMarkup
	// or *ReplyKeyboardRemove.
	ReplyMarkup any `json:"reply_markup,omitempty"`
}

// SendMessage posts a message. Link previews are always suppressed.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	p.DisablePreview = true

	var msg Message
	if err := c.call(ctx, "sendMessage", p, &msg); err != nil {
		return nil, fmt.Errorf("send message to %d: %w", p.ChatID, err)
	}
	return &msg, nil
}

// SendMarkdown posts a Markdown message with an optional keyboard.
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, text string, markup any) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   ParseModeMarkdown,
		ReplyMarkup: markup,
	})
}

// Send delivers a Markdown report. It satisfies the dispatcher's Sender.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	_, err := c.SendMarkdown(ctx, chatID, text, nil)
	if IsBlocked(err) {
		c.log.InfoContext(ctx, "chat unreachable", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
	return err
}

type editMessageText struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text and inline keyboard of a message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *InlineKeyboardMarkup) error {
	req := editMessageText{ChatID: chatID, MessageID: messageID, Text: text, ParseMode: ParseModeMarkdown, ReplyMarkup: keyboard}
	if err := c.call(ctx, "editMessageText", req, nil); err != nil {
		return fmt.Errorf("edit message %d: %w", messageID, err)
	}
	return nil
}

type messageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if err := c.call(ctx, "deleteMessage", messageRef{chatID, messageID}, nil); err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return nil
}

type answerCallback struct {
	ID   string `json:"callback_query_id"`
	Text string `json:"text,omitempty"`
}

// AnswerCallbackQuery stops the spinner on a pressed inline button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	if err := c.call(ctx, "answerCallbackQuery", answerCallback{callbackQueryID, text}, nil); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

type getUpdates struct {
	Offset         int64    `json:"offset"`
	Limit          int      `json:"limit"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// GetUpdates long-polls for updates at or after offset; timeout is in
// seconds. It is sent once without retries so the poller owns the backoff.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit, timeout int) ([]Update, error) {
	req := getUpdates{Offset: offset, Limit: limit, Timeout: timeout, AllowedUpdates: []string{"message", "callback_query"}}

	var updates []Update
	if err := c.post(ctx, "getUpdates", req, &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// GetMe returns the bot account; it doubles as a token check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &me, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// call is post with transport retries: 429 waits retry_after, 5xx and
// network failures back off, blocked chats and other API errors are final.
func (c *Client) call(ctx context.Context, method string, req, out any) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		err := c.post(ctx, method, req, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		switch {
		case IsBlocked(err):
			return err
		case errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests:
			return retry.RetryAfter(err, time.Duration(apiErr.RetryAfter)*time.Second)
		case errors.As(err, &apiErr) && apiErr.Code >= http.StatusInternalServerError:
			return retry.Retryable(err)
		case apiErr != nil, ctx.Err() != nil:
			return err
		default:
			return retry.Retryable(err)
		}
	})
}

// post performs one request and decodes the result field into out.
func (c *Client) post(ctx context.Context, method string, req, out any) error {
	var body io.Reader
	if req != nil {
		raw, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode %s: %w", method, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+method, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", method, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Proxies in front of the API answer 5xx with HTML.
		if resp.StatusCode >= http.StatusInternalServerError {
			return &APIError{Code: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode %s: %w", method, err)
	}

	if !env.OK {
		apiErr := &APIError{Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}

	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-ok Bot API response.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// IsBlocked reports that the chat can no longer receive messages: the user
// blocked the bot or deleted the account.
func IsBlocked(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	d := apiErr.Description
	return apiErr.Code == http.StatusForbidden ||
		strings.Contains(d, "bot was blocked") ||
		strings.Contains(d, "user is deactivated")
}

// IsMessageNotModified reports an edit rejected for identical content.
func IsMessageNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}
