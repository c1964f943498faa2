package telegram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
	"github.com/maktab/baho-bot/internal/interface/telegram/handler"
	"github.com/maktab/baho-bot/pkg/logger"
)

func messageUpdate(text string, command bool) *telegram.Update {
	msg := &telegram.Message{
		MessageID: 3,
		From:      &telegram.User{ID: 7},
		Chat:      &telegram.Chat{ID: 8},
		Text:      text,
	}
	if command {
		end := len(text)
		for i, r := range text {
			if r == ' ' {
				end = i
				break
			}
		}
		msg.Entities = []telegram.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return &telegram.Update{UpdateID: 1, Message: msg}
}

func callbackUpdate(data string) *telegram.Update {
	return &telegram.Update{UpdateID: 2, CallbackQuery: &telegram.CallbackQuery{
		ID:      "q",
		From:    &telegram.User{ID: 7},
		Message: &telegram.Message{MessageID: 4, Chat: &telegram.Chat{ID: 8}},
		Data:    data,
	}}
}

type recorder struct{ hits []string }

func (r *recorder) msg(name string) MessageFunc {
	return func(_ context.Context, req handler.Request) error {
		r.hits = append(r.hits, name+":"+req.Text)
		return nil
	}
}

func (r *recorder) cb(name string) CallbackFunc {
	return func(_ context.Context, cb handler.CallbackRequest) error {
		r.hits = append(r.hits, name+":"+cb.Data)
		return nil
	}
}

func newTestRouter(rec *recorder) *Router {
	r := NewRouter(logger.Discard())
	r.Command("start", rec.msg("start"))
	r.Button("📊 Bugungi baholar", rec.msg("grades"))
	r.Text(rec.msg("text"))
	r.Callback("unlink", rec.cb("unlink"))
	r.CallbackPrefix("toggle_", rec.cb("toggle"))
	r.CallbackPrefix("toggle_notif_", rec.cb("toggle_notif"))
	r.UnknownCallback(rec.cb("unknown"))
	return r
}

func TestRouter_Messages(t *testing.T) {
	tests := []struct {
		name   string
		update *telegram.Update
		want   []string
	}{
		{"command", messageUpdate("/start", true), []string{"start:/start"}},
		{"command with bot name", messageUpdate("/start@baho_bot", true), []string{"start:/start@baho_bot"}},
		{"unknown command ignored", messageUpdate("/stats", true), nil},
		{"slash text without entity ignored", messageUpdate("/start", false), nil},
		{"button", messageUpdate(" 📊 Bugungi baholar ", false), []string{"grades: 📊 Bugungi baholar "}},
		{"free text", messageUpdate("ali.v", false), []string{"text:ali.v"}},
		{"empty text ignored", messageUpdate("", false), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			require.NoError(t, newTestRouter(rec).Handle(context.Background(), tt.update))
			assert.Equal(t, tt.want, rec.hits)
		})
	}
}

func TestRouter_Callbacks(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{"unlink", "unlink:unlink"},
		{"toggle_notif_true", "toggle_notif:toggle_notif_true"},
		{"toggle_other", "toggle:toggle_other"},
		{"stale_button", "unknown:stale_button"},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			rec := &recorder{}
			require.NoError(t, newTestRouter(rec).Handle(context.Background(), callbackUpdate(tt.data)))
			assert.Equal(t, []string{tt.want}, rec.hits)
		})
	}
}

func TestRouter_RequestFields(t *testing.T) {
	var got handler.Request
	r := NewRouter(logger.Discard())
	r.Text(func(_ context.Context, req handler.Request) error {
		got = req
		return nil
	})

	require.NoError(t, r.Handle(context.Background(), messageUpdate("salom", false)))
	assert.Equal(t, int64(7), got.TelegramID)
	assert.Equal(t, int64(8), got.ChatID)
	assert.Equal(t, int64(3), got.MessageID)
	require.NotNil(t, got.From)
}

func TestRouter_IgnoresOtherUpdates(t *testing.T) {
	rec := &recorder{}
	r := newTestRouter(rec)

	require.NoError(t, r.Handle(context.Background(), &telegram.Update{UpdateID: 9}))
	require.NoError(t, r.Handle(context.Background(), &telegram.Update{
		UpdateID:      10,
		CallbackQuery: &telegram.CallbackQuery{ID: "q", From: &telegram.User{ID: 1}, Data: "unlink"},
	}))
	assert.Empty(t, rec.hits)
}
