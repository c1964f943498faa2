package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

const (
	chatID     int64 = 500
	telegramID int64 = 500
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type sent struct {
	ChatID int64
	Text   string
	Markup any
}

type edited struct {
	MessageID int64
	Text      string
	Keyboard  *telegram.InlineKeyboardMarkup
}

type fakeMessenger struct {
	sent     []sent
	edited   []edited
	deleted  []int64
	answered []string
	sendErr  error
	editErr  error
}

func (m *fakeMessenger) SendMarkdown(_ context.Context, chatID int64, text string, markup any) (*telegram.Message, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sent{ChatID: chatID, Text: text, Markup: markup})
	return &telegram.Message{MessageID: int64(len(m.sent))}, nil
}

func (m *fakeMessenger) EditMessageText(_ context.Context, _, messageID int64, text string, kb *telegram.InlineKeyboardMarkup) error {
	if m.editErr != nil {
		return m.editErr
	}
	m.edited = append(m.edited, edited{MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, _, messageID int64) error {
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *fakeMessenger) AnswerCallbackQuery(_ context.Context, id, _ string) error {
	m.answered = append(m.answered, id)
	return nil
}

func (m *fakeMessenger) last() sent {
	if len(m.sent) == 0 {
		return sent{}
	}
	return m.sent[len(m.sent)-1]
}

type fakeLinks struct {
	link *recipient.Link
	err  error
}

func (f *fakeLinks) GetByTelegramID(context.Context, int64) (*recipient.Link, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.link == nil {
		return nil, shared.ErrNotLinked
	}
	return f.link, nil
}

type fakeLinker struct {
	got    []command.LinkGuardianCommand
	result *command.LinkGuardianResult
	err    error
}

func (f *fakeLinker) Handle(_ context.Context, cmd command.LinkGuardianCommand) (*command.LinkGuardianResult, error) {
	f.got = append(f.got, cmd)
	return f.result, f.err
}

type fakeUnlinker struct {
	calls int
	err   error
}

func (f *fakeUnlinker) Handle(context.Context, int64) error {
	f.calls++
	return f.err
}

type fakeToggler struct {
	got []command.ToggleNotificationsCommand
	err error
}

func (f *fakeToggler) Handle(_ context.Context, cmd command.ToggleNotificationsCommand) error {
	f.got = append(f.got, cmd)
	return f.err
}

type fakeToday struct {
	report *query.TodayReport
	err    error
}

func (f *fakeToday) Handle(context.Context, int64) (*query.TodayReport, error) {
	return f.report, f.err
}

type fixture struct {
	g        *Guardian
	msgr     *fakeMessenger
	sessions *MemorySessionStore
	links    *fakeLinks
	linker   *fakeLinker
	unlinker *fakeUnlinker
	toggler  *fakeToggler
	today    *fakeToday
	clock    *clock.Fake
}

func newFixture() *fixture {
	f := &fixture{
		msgr:     &fakeMessenger{},
		links:    &fakeLinks{},
		linker:   &fakeLinker{},
		unlinker: &fakeUnlinker{},
		toggler:  &fakeToggler{},
		today:    &fakeToday{},
		clock:    clock.NewFake(time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)),
	}
	f.sessions = NewMemorySessionStore(10*time.Minute, f.clock)
	f.g = NewGuardian(Dependencies{
		Messenger: f.msgr,
		Sessions:  f.sessions,
		Links:     f.links,
		Link:      f.linker,
		Unlink:    f.unlinker,
		Toggle:    f.toggler,
		Today:     f.today,
		Clock:     f.clock,
		Logger:    logger.Discard(),
	})
	return f
}

func (f *fixture) state(t *testing.T) State {
	t.Helper()
	s, ok, err := f.sessions.Load(context.Background(), chatID)
	require.NoError(t, err)
	if !ok {
		return StateIdle
	}
	return s.State
}

func text(msgID int64, s string) Request {
	return Request{
		TelegramID: telegramID,
		ChatID:     chatID,
		MessageID:  msgID,
		Text:       s,
		From:       &telegram.User{ID: telegramID, FirstName: "Dilnoza", Username: "dilnoza"},
	}
}

func callback(data string) CallbackRequest {
	return CallbackRequest{QueryID: "q1", TelegramID: telegramID, ChatID: chatID, MessageID: 77, Data: data}
}

var ali = student.Student{
	ID:        "s1",
	FirstName: "Ali",
	LastName:  "Valiyev",
	Classes:   []student.Class{{ID: "c1", Name: "5-A"}},
	Active:    true,
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN FLOW
// ══════════════════════════════════════════════════════════════════════════════

func TestGuardian_LoginFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.linker.result = &command.LinkGuardianResult{Student: ali}

	require.NoError(t, f.g.Start(ctx, text(1, "/start")))
	assert.Equal(t, presenter.Welcome, f.msgr.last().Text)
	assert.Equal(t, presenter.StartKeyboard(), f.msgr.last().Markup)

	require.NoError(t, f.g.StartButton(ctx, text(2, presenter.BtnStart)))
	assert.Equal(t, presenter.EnterUsername, f.msgr.last().Text)
	assert.Equal(t, StateWaitingUsername, f.state(t))

	require.NoError(t, f.g.Text(ctx, text(3, "  Ali.V ")))
	assert.Equal(t, presenter.EnterPassword, f.msgr.last().Text)
	assert.Equal(t, StateWaitingPassword, f.state(t))

	require.NoError(t, f.g.Text(ctx, text(4, "secret")))
	assert.Equal(t, []int64{4}, f.msgr.deleted, "password message is removed")
	assert.Equal(t, StateIdle, f.state(t))
	assert.Equal(t, presenter.AuthSuccess(ali), f.msgr.last().Text)
	assert.Equal(t, presenter.MainKeyboard(), f.msgr.last().Markup)

	require.Len(t, f.linker.got, 1)
	cmd := f.linker.got[0]
	assert.Equal(t, "ali.v", cmd.Login)
	assert.Equal(t, "secret", cmd.Password)
	assert.Equal(t, chatID, cmd.ChatID)
	assert.Equal(t, "Dilnoza", cmd.FirstName)
	assert.Equal(t, "dilnoza", cmd.TelegramUsername)
}

func TestGuardian_LoginRejected(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantText string
		wantKB   any
	}{
		{"unknown user", shared.ErrUserNotFound, presenter.AuthFailed, presenter.StartKeyboard()},
		{"wrong password", shared.ErrInvalidPassword, presenter.AuthFailed, presenter.StartKeyboard()},
		{"not a student", shared.ErrNotStudent, presenter.AuthStudentOnly, presenter.StartKeyboard()},
		{"inactive", shared.ErrInactiveUser, presenter.AuthInactiveUser, presenter.StartKeyboard()},
		{"already linked", shared.ErrAlreadyLinked, presenter.AuthAlreadyLinked, presenter.MainKeyboard()},
		{"storage failure", errors.New("db down"), presenter.ErrorGeneral, presenter.StartKeyboard()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			f.linker.err = tt.err

			require.NoError(t, f.sessions.Save(ctx, chatID, Session{State: StateWaitingPassword, Username: "ali"}))
			require.NoError(t, f.g.Text(ctx, text(9, "bad")))

			assert.Equal(t, tt.wantText, f.msgr.last().Text)
			assert.Equal(t, tt.wantKB, f.msgr.last().Markup)
			assert.Equal(t, StateIdle, f.state(t), "a failed attempt restarts the flow")
		})
	}
}

func TestGuardian_EmptyUsernameAsksAgain(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.sessions.Save(ctx, chatID, Session{State: StateWaitingUsername}))
	require.NoError(t, f.g.Text(ctx, text(3, "   ")))

	assert.Equal(t, presenter.EnterUsername, f.msgr.last().Text)
	assert.Equal(t, StateWaitingUsername, f.state(t))
}

func TestGuardian_StartClearsPendingLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.links.link = &recipient.Link{TelegramID: telegramID, StudentID: "s1", Student: &ali}

	require.NoError(t, f.sessions.Save(ctx, chatID, Session{State: StateWaitingPassword, Username: "ali"}))
	require.NoError(t, f.g.Start(ctx, text(1, "/start")))

	assert.Equal(t, StateIdle, f.state(t))
	assert.Equal(t, presenter.WelcomeBack(ali), f.msgr.last().Text)
	assert.Equal(t, presenter.MainKeyboard(), f.msgr.last().Markup)
}

func TestGuardian_SessionExpires(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.g.StartButton(ctx, text(2, presenter.BtnStart)))
	f.clock.Advance(11 * time.Minute)

	require.NoError(t, f.g.Text(ctx, text(3, "ali")))
	assert.Equal(t, presenter.ErrorNotLinked, f.msgr.last().Text)
	assert.Empty(t, f.linker.got)
}

func TestGuardian_IdleTextFromLinkedChatIsIgnored(t *testing.T) {
	f := newFixture()
	f.links.link = &recipient.Link{TelegramID: telegramID, Student: &ali}

	require.NoError(t, f.g.Text(context.Background(), text(3, "salom")))
	assert.Empty(t, f.msgr.sent)
}

// ══════════════════════════════════════════════════════════════════════════════
// MENU
// ══════════════════════════════════════════════════════════════════════════════

func TestGuardian_TodayGrades(t *testing.T) {
	f := newFixture()
	f.today.report = &query.TodayReport{Text: "📊 *Bugungi baholar*"}

	require.NoError(t, f.g.TodayGrades(context.Background(), text(5, presenter.BtnMyGrades)))
	assert.Equal(t, "📊 *Bugungi baholar*", f.msgr.last().Text)
	assert.Equal(t, presenter.MainKeyboard(), f.msgr.last().Markup)
}

func TestGuardian_TodayGrades_NotLinked(t *testing.T) {
	f := newFixture()
	f.today.err = shared.ErrNotLinked

	require.NoError(t, f.g.TodayGrades(context.Background(), text(5, presenter.BtnMyGrades)))
	assert.Equal(t, presenter.ErrorNotLinked, f.msgr.last().Text)
}

func TestGuardian_TodayGrades_FailureRepliesAndReturnsError(t *testing.T) {
	f := newFixture()
	f.today.err = errors.New("db down")

	err := f.g.TodayGrades(context.Background(), text(5, presenter.BtnMyGrades))
	require.Error(t, err)
	assert.Equal(t, presenter.ErrorGeneral, f.msgr.last().Text)
}

func TestGuardian_Settings(t *testing.T) {
	f := newFixture()
	f.links.link = &recipient.Link{TelegramID: telegramID, NotificationsEnabled: true}

	require.NoError(t, f.g.Settings(context.Background(), text(6, presenter.BtnSettings)))
	assert.Equal(t, presenter.Settings(true), f.msgr.last().Text)
	assert.Equal(t, presenter.SettingsKeyboard(true), f.msgr.last().Markup)
}

func TestGuardian_Help(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.g.Help(context.Background(), text(7, "/help")))
	assert.Equal(t, presenter.HelpText, f.msgr.last().Text)
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACKS
// ══════════════════════════════════════════════════════════════════════════════

func TestGuardian_Toggle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.g.Toggle(ctx, callback(presenter.CallbackToggleOff)))
	require.NoError(t, f.g.Toggle(ctx, callback(presenter.CallbackToggleOn)))

	assert.Equal(t, []command.ToggleNotificationsCommand{
		{TelegramID: telegramID, Enabled: false},
		{TelegramID: telegramID, Enabled: true},
	}, f.toggler.got)
	require.Len(t, f.msgr.edited, 2)
	assert.Equal(t, presenter.Settings(false), f.msgr.edited[0].Text)
	assert.Equal(t, presenter.SettingsKeyboard(true), f.msgr.edited[1].Keyboard)
	assert.Equal(t, []string{"q1", "q1"}, f.msgr.answered)
}

func TestGuardian_Toggle_IgnoresNotModified(t *testing.T) {
	f := newFixture()
	f.msgr.editErr = &telegram.APIError{Code: 400, Description: "Bad Request: message is not modified"}

	assert.NoError(t, f.g.Toggle(context.Background(), callback(presenter.CallbackToggleOn)))
}

func TestGuardian_UnlinkConfirmed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.g.Unlink(ctx, callback(presenter.CallbackUnlink)))
	assert.Equal(t, StateWaitingUnlinkConfirm, f.state(t))
	assert.Equal(t, presenter.UnlinkConfirm, f.msgr.edited[0].Text)
	assert.Equal(t, presenter.ConfirmUnlinkKeyboard(), f.msgr.edited[0].Keyboard)

	require.NoError(t, f.g.ConfirmUnlink(ctx, callback(presenter.CallbackConfirmUnlink)))
	assert.Equal(t, 1, f.unlinker.calls)
	assert.Equal(t, StateIdle, f.state(t))
	assert.Equal(t, presenter.UnlinkSuccess, f.msgr.edited[1].Text)
}

func TestGuardian_ConfirmUnlink_AlreadyUnlinked(t *testing.T) {
	f := newFixture()
	f.unlinker.err = shared.ErrNotLinked

	require.NoError(t, f.g.ConfirmUnlink(context.Background(), callback(presenter.CallbackConfirmUnlink)))
	assert.Equal(t, presenter.UnlinkSuccess, f.msgr.edited[0].Text)
}

func TestGuardian_CancelUnlink(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.g.Unlink(ctx, callback(presenter.CallbackUnlink)))
	require.NoError(t, f.g.CancelUnlink(ctx, callback(presenter.CallbackCancelUnlink)))

	assert.Equal(t, 0, f.unlinker.calls)
	assert.Equal(t, StateIdle, f.state(t))
	assert.Equal(t, []int64{77}, f.msgr.deleted)
	assert.Equal(t, presenter.UnlinkCancelled, f.msgr.last().Text)
}

func TestGuardian_UnknownCallbackIsAnswered(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.g.UnknownCallback(context.Background(), callback("stale")))
	assert.Equal(t, []string{"q1"}, f.msgr.answered)
	assert.Empty(t, f.msgr.sent)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestMemorySessionStore_TTL(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC))
	store := NewMemorySessionStore(time.Minute, clk)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 1, Session{State: StateWaitingPassword, Username: "ali"}))

	got, ok, err := store.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ali", got.Username)

	clk.Advance(time.Minute)
	_, ok, err = store.Load(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
