package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maktab/baho-bot/internal/application/command"
	"github.com/maktab/baho-bot/internal/application/query"
	"github.com/maktab/baho-bot/internal/domain/recipient"
	"github.com/maktab/baho-bot/internal/domain/shared"
	"github.com/maktab/baho-bot/internal/domain/student"
	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
	"github.com/maktab/baho-bot/internal/interface/telegram/presenter"
	"github.com/maktab/baho-bot/pkg/clock"
	"github.com/maktab/baho-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Messenger is the part of the Bot API the conversation uses.
// *telegram.Client satisfies it.
type Messenger interface {
	SendMarkdown(ctx context.Context, chatID int64, text string, markup any) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

// Linker links a chat to a student.
type Linker interface {
	Handle(ctx context.Context, cmd command.LinkGuardianCommand) (*command.LinkGuardianResult, error)
}

// Unlinker removes a chat's link.
type Unlinker interface {
	Handle(ctx context.Context, telegramID int64) error
}

// Toggler switches the daily report.
type Toggler interface {
	Handle(ctx context.Context, cmd command.ToggleNotificationsCommand) error
}

// TodayReporter renders today's report for a chat.
type TodayReporter interface {
	Handle(ctx context.Context, telegramID int64) (*query.TodayReport, error)
}

// LinkFinder looks up a chat's link.
type LinkFinder interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*recipient.Link, error)
}

// Dependencies of the Guardian handler.
type Dependencies struct {
	Messenger Messenger
	Sessions  SessionStore
	Links     LinkFinder
	Link      Linker
	Unlink    Unlinker
	Toggle    Toggler
	Today     TodayReporter
	Clock     clock.Clock
	Logger    *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

// Request is an incoming text message.
type Request struct {
	TelegramID int64
	ChatID     int64
	MessageID  int64
	Text       string
	From       *telegram.User
}

// CallbackRequest is an inline button press.
type CallbackRequest struct {
	QueryID    string
	TelegramID int64
	ChatID     int64
	MessageID  int64
	Data       string
}

// ══════════════════════════════════════════════════════════════════════════════
// GUARDIAN HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// Guardian drives the conversation with one guardian chat at a time.
type Guardian struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewGuardian creates a Guardian handler.
func NewGuardian(deps Dependencies) *Guardian {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &Guardian{deps: deps, logger: deps.Logger.With(logger.Component("guardian"))}
}

// Start handles /start: greets a linked chat or offers the login flow.
// Any pending login is abandoned.
func (g *Guardian) Start(ctx context.Context, req Request) error {
	if err := g.deps.Sessions.Clear(ctx, req.ChatID); err != nil {
		g.logger.Warn("failed to clear session", logger.ChatID(req.ChatID), logger.Err(err))
	}

	link, err := g.deps.Links.GetByTelegramID(ctx, req.TelegramID)
	switch {
	case errors.Is(err, shared.ErrNotLinked):
		return g.send(ctx, req.ChatID, presenter.Welcome, presenter.StartKeyboard())
	case err != nil:
		return g.fail(ctx, req.ChatID, fmt.Errorf("start: %w", err))
	}

	return g.send(ctx, req.ChatID, presenter.WelcomeBack(linkedStudent(link)), presenter.MainKeyboard())
}

// StartButton begins the login flow.
func (g *Guardian) StartButton(ctx context.Context, req Request) error {
	if err := g.saveState(ctx, req.ChatID, Session{State: StateWaitingUsername}); err != nil {
		return g.fail(ctx, req.ChatID, err)
	}
	return g.send(ctx, req.ChatID, presenter.EnterUsername, presenter.RemoveKeyboard())
}

// Text handles free text according to the chat's session state.
func (g *Guardian) Text(ctx context.Context, req Request) error {
	session, ok, err := g.deps.Sessions.Load(ctx, req.ChatID)
	if err != nil {
		return g.fail(ctx, req.ChatID, fmt.Errorf("load session: %w", err))
	}
	if !ok {
		session = Session{State: StateIdle}
	}

	switch session.State {
	case StateWaitingUsername:
		return g.username(ctx, req)
	case StateWaitingPassword:
		return g.password(ctx, req, session)
	default:
		return g.idleText(ctx, req)
	}
}

func (g *Guardian) username(ctx context.Context, req Request) error {
	username := student.NormalizeUsername(req.Text)
	if username == "" {
		return g.send(ctx, req.ChatID, presenter.EnterUsername, nil)
	}

	if err := g.saveState(ctx, req.ChatID, Session{State: StateWaitingPassword, Username: username}); err != nil {
		return g.fail(ctx, req.ChatID, err)
	}
	return g.send(ctx, req.ChatID, presenter.EnterPassword, nil)
}

func (g *Guardian) password(ctx context.Context, req Request, session Session) error {
	// Best effort: the password should not stay in the chat history.
	if err := g.deps.Messenger.DeleteMessage(ctx, req.ChatID, req.MessageID); err != nil {
		g.logger.Debug("failed to delete password message", logger.ChatID(req.ChatID), logger.Err(err))
	}

	if err := g.deps.Sessions.Clear(ctx, req.ChatID); err != nil {
		g.logger.Warn("failed to clear session", logger.ChatID(req.ChatID), logger.Err(err))
	}

	cmd := command.LinkGuardianCommand{
		TelegramID: req.TelegramID,
		ChatID:     req.ChatID,
		Login:      session.Username,
		Password:   req.Text,
	}
	if req.From != nil {
		cmd.FirstName = req.From.FirstName
		cmd.LastName = req.From.LastName
		cmd.TelegramUsername = req.From.Username
	}

	res, err := g.deps.Link.Handle(ctx, cmd)
	if err != nil {
		code := shared.Code(err)
		g.logger.Info("link attempt rejected",
			logger.ChatID(req.ChatID),
			slog.String("code", code),
		)
		if code == "" {
			g.logger.Error("link failed", logger.ChatID(req.ChatID), logger.Err(err))
		}

		keyboard := any(presenter.StartKeyboard())
		if errors.Is(err, shared.ErrAlreadyLinked) {
			keyboard = presenter.MainKeyboard()
		}
		return g.send(ctx, req.ChatID, presenter.AuthError(err), keyboard)
	}

	return g.send(ctx, req.ChatID, presenter.AuthSuccess(res.Student), presenter.MainKeyboard())
}

func (g *Guardian) idleText(ctx context.Context, req Request) error {
	_, err := g.deps.Links.GetByTelegramID(ctx, req.TelegramID)
	switch {
	case errors.Is(err, shared.ErrNotLinked):
		return g.send(ctx, req.ChatID, presenter.ErrorNotLinked, presenter.StartKeyboard())
	case err != nil:
		return g.fail(ctx, req.ChatID, fmt.Errorf("idle text: %w", err))
	}
	return nil
}

// TodayGrades sends today's report for the linked student.
func (g *Guardian) TodayGrades(ctx context.Context, req Request) error {
	rep, err := g.deps.Today.Handle(ctx, req.TelegramID)
	switch {
	case errors.Is(err, shared.ErrNotLinked):
		return g.send(ctx, req.ChatID, presenter.ErrorNotLinked, presenter.StartKeyboard())
	case err != nil:
		return g.fail(ctx, req.ChatID, fmt.Errorf("today grades: %w", err))
	}
	return g.send(ctx, req.ChatID, rep.Text, presenter.MainKeyboard())
}

// Settings shows the notification toggle and unlink buttons.
func (g *Guardian) Settings(ctx context.Context, req Request) error {
	link, err := g.deps.Links.GetByTelegramID(ctx, req.TelegramID)
	switch {
	case errors.Is(err, shared.ErrNotLinked):
		return g.send(ctx, req.ChatID, presenter.ErrorNotLinked, presenter.StartKeyboard())
	case err != nil:
		return g.fail(ctx, req.ChatID, fmt.Errorf("settings: %w", err))
	}

	enabled := link.NotificationsEnabled
	return g.send(ctx, req.ChatID, presenter.Settings(enabled), presenter.SettingsKeyboard(enabled))
}

// Help sends the help text.
func (g *Guardian) Help(ctx context.Context, req Request) error {
	return g.send(ctx, req.ChatID, presenter.HelpText, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACKS
// ══════════════════════════════════════════════════════════════════════════════

// Toggle handles toggle_notif_true|false.
func (g *Guardian) Toggle(ctx context.Context, cb CallbackRequest) error {
	g.answer(ctx, cb)

	enabled := cb.Data == presenter.CallbackToggleOn
	err := g.deps.Toggle.Handle(ctx, command.ToggleNotificationsCommand{TelegramID: cb.TelegramID, Enabled: enabled})
	switch {
	case errors.Is(err, shared.ErrNotLinked):
		return g.edit(ctx, cb, presenter.ErrorNotLinked, nil)
	case err != nil:
		return g.fail(ctx, cb.ChatID, fmt.Errorf("toggle: %w", err))
	}

	return g.edit(ctx, cb, presenter.Settings(enabled), presenter.SettingsKeyboard(enabled))
}

// Unlink asks for confirmation.
func (g *Guardian) Unlink(ctx context.Context, cb CallbackRequest) error {
	g.answer(ctx, cb)

	if err := g.saveState(ctx, cb.ChatID, Session{State: StateWaitingUnlinkConfirm}); err != nil {
		return g.fail(ctx, cb.ChatID, err)
	}
	return g.edit(ctx, cb, presenter.UnlinkConfirm, presenter.ConfirmUnlinkKeyboard())
}

// ConfirmUnlink removes the link. Unlinking an already unlinked chat
// reports success.
func (g *Guardian) ConfirmUnlink(ctx context.Context, cb CallbackRequest) error {
	g.answer(ctx, cb)

	if err := g.deps.Sessions.Clear(ctx, cb.ChatID); err != nil {
		g.logger.Warn("failed to clear session", logger.ChatID(cb.ChatID), logger.Err(err))
	}

	if err := g.deps.Unlink.Handle(ctx, cb.TelegramID); err != nil && !errors.Is(err, shared.ErrNotLinked) {
		return g.fail(ctx, cb.ChatID, fmt.Errorf("unlink: %w", err))
	}
	return g.edit(ctx, cb, presenter.UnlinkSuccess, nil)
}

// CancelUnlink drops the confirmation message.
func (g *Guardian) CancelUnlink(ctx context.Context, cb CallbackRequest) error {
	g.answer(ctx, cb)

	if err := g.deps.Sessions.Clear(ctx, cb.ChatID); err != nil {
		g.logger.Warn("failed to clear session", logger.ChatID(cb.ChatID), logger.Err(err))
	}
	if err := g.deps.Messenger.DeleteMessage(ctx, cb.ChatID, cb.MessageID); err != nil {
		g.logger.Debug("failed to delete confirmation", logger.ChatID(cb.ChatID), logger.Err(err))
	}
	return g.send(ctx, cb.ChatID, presenter.UnlinkCancelled, presenter.MainKeyboard())
}

// UnknownCallback acknowledges stale or foreign buttons.
func (g *Guardian) UnknownCallback(ctx context.Context, cb CallbackRequest) error {
	g.answer(ctx, cb)
	g.logger.Debug("unknown callback", slog.String("data", cb.Data), logger.ChatID(cb.ChatID))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (g *Guardian) saveState(ctx context.Context, chatID int64, s Session) error {
	s.UpdatedAt = g.deps.Clock.Now().UTC()
	if err := g.deps.Sessions.Save(ctx, chatID, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (g *Guardian) send(ctx context.Context, chatID int64, text string, markup any) error {
	if _, err := g.deps.Messenger.SendMarkdown(ctx, chatID, text, markup); err != nil {
		return fmt.Errorf("reply to %d: %w", chatID, err)
	}
	return nil
}

func (g *Guardian) edit(ctx context.Context, cb CallbackRequest, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	err := g.deps.Messenger.EditMessageText(ctx, cb.ChatID, cb.MessageID, text, keyboard)
	if err != nil && !telegram.IsMessageNotModified(err) {
		return fmt.Errorf("edit %d: %w", cb.MessageID, err)
	}
	return nil
}

func (g *Guardian) answer(ctx context.Context, cb CallbackRequest) {
	if cb.QueryID == "" {
		return
	}
	if err := g.deps.Messenger.AnswerCallbackQuery(ctx, cb.QueryID, ""); err != nil {
		g.logger.Debug("failed to answer callback", logger.Err(err))
	}
}

// fail replies with the generic error text and returns err for the caller
// to log.
func (g *Guardian) fail(ctx context.Context, chatID int64, err error) error {
	if sendErr := g.send(ctx, chatID, presenter.ErrorGeneral, nil); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return err
}

func linkedStudent(link *recipient.Link) student.Student {
	if link.Student == nil {
		return student.Student{ID: link.StudentID}
	}
	return *link.Student
}
