// Package telegram is the guardian bot entry point: it receives updates by
// long polling and routes them to the conversation handlers.
package telegram

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
	"github.com/maktab/baho-bot/internal/interface/telegram/handler"
	"github.com/maktab/baho-bot/internal/interface/telegram/presenter"
)

// MessageFunc handles a text message.
type MessageFunc func(ctx context.Context, req handler.Request) error

// CallbackFunc handles an inline button press.
type CallbackFunc func(ctx context.Context, cb handler.CallbackRequest) error

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

// Router routes updates: commands first, then reply keyboard buttons, then
// free text. Callbacks match exact data before prefixes.
type Router struct {
	logger *slog.Logger

	commands        map[string]MessageFunc
	buttons         map[string]MessageFunc
	text            MessageFunc
	callbacks       map[string]CallbackFunc
	callbackPrefix  map[string]CallbackFunc
	unknownCallback CallbackFunc
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:         logger,
		commands:       make(map[string]MessageFunc),
		buttons:        make(map[string]MessageFunc),
		callbacks:      make(map[string]CallbackFunc),
		callbackPrefix: make(map[string]CallbackFunc),
	}
}

// NewGuardianRouter wires the guardian conversation.
func NewGuardianRouter(g *handler.Guardian, logger *slog.Logger) *Router {
	r := NewRouter(logger)

	r.Command("start", g.Start)
	r.Command("help", g.Help)

	r.Button(presenter.BtnStart, g.StartButton)
	r.Button(presenter.BtnMyGrades, g.TodayGrades)
	r.Button(presenter.BtnSettings, g.Settings)
	r.Button(presenter.BtnHelp, g.Help)

	r.Text(g.Text)

	r.CallbackPrefix(presenter.CallbackTogglePrefix, g.Toggle)
	r.Callback(presenter.CallbackUnlink, g.Unlink)
	r.Callback(presenter.CallbackConfirmUnlink, g.ConfirmUnlink)
	r.Callback(presenter.CallbackCancelUnlink, g.CancelUnlink)
	r.UnknownCallback(g.UnknownCallback)

	return r
}

// Command registers a handler for /name.
func (r *Router) Command(name string, fn MessageFunc) { r.commands[name] = fn }

// Button registers a handler for a reply keyboard button text.
func (r *Router) Button(text string, fn MessageFunc) { r.buttons[text] = fn }

// Text registers the free text handler.
func (r *Router) Text(fn MessageFunc) { r.text = fn }

// Callback registers a handler for exact callback data.
func (r *Router) Callback(data string, fn CallbackFunc) { r.callbacks[data] = fn }

// CallbackPrefix registers a handler for callback data with a prefix.
func (r *Router) CallbackPrefix(prefix string, fn CallbackFunc) { r.callbackPrefix[prefix] = fn }

// UnknownCallback registers the fallback for unmatched callbacks.
func (r *Router) UnknownCallback(fn CallbackFunc) { r.unknownCallback = fn }

// Handle routes one update. Updates without text or callback data are ignored.
func (r *Router) Handle(ctx context.Context, update *telegram.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return r.handleMessage(ctx, update.Message)
	default:
		return nil
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.Chat == nil || msg.From == nil || msg.Text == "" {
		return nil
	}

	req := handler.Request{
		TelegramID: msg.From.ID,
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		Text:       msg.Text,
		From:       msg.From,
	}

	if cmd := telegram.ExtractCommand(msg); cmd != "" {
		if fn, ok := r.commands[cmd]; ok {
			return fn(ctx, req)
		}
		r.logger.Debug("unknown command", slog.String("command", cmd), slog.Int64("chat_id", req.ChatID))
		return nil
	}
	if strings.HasPrefix(msg.Text, "/") {
		return nil
	}

	if fn, ok := r.buttons[strings.TrimSpace(msg.Text)]; ok {
		return fn(ctx, req)
	}
	if r.text != nil {
		return r.text(ctx, req)
	}
	return nil
}

func (r *Router) handleCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return nil
	}

	cb := handler.CallbackRequest{
		QueryID:    q.ID,
		TelegramID: q.From.ID,
		ChatID:     q.Message.Chat.ID,
		MessageID:  q.Message.MessageID,
		Data:       q.Data,
	}

	if fn, ok := r.callbacks[q.Data]; ok {
		return fn(ctx, cb)
	}

	var matched string
	for prefix := range r.callbackPrefix {
		if strings.HasPrefix(q.Data, prefix) && len(prefix) > len(matched) {
			matched = prefix
		}
	}
	if matched != "" {
		return r.callbackPrefix[matched](ctx, cb)
	}

	if r.unknownCallback != nil {
		return r.unknownCallback(ctx, cb)
	}
	return nil
}
