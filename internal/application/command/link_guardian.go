// Package command contains write operations of the guardian bot.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/maktab/baho-bot/internal/domain/recipient"
	"github.com/maktab/baho-bot/internal/domain/shared"
	"github.com/maktab/baho-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINK GUARDIAN COMMAND
// Binds a guardian's Telegram chat to a student after checking the student's
// school credentials.
// ══════════════════════════════════════════════════════════════════════════════

// LinkGuardianCommand contains the data to link a chat.
type LinkGuardianCommand struct {
	TelegramID int64
	ChatID     int64

	// Telegram profile of the guardian.
	FirstName        string
	LastName         string
	TelegramUsername string

	// Student credentials as typed by the guardian.
	Login    string
	Password string
}

// Validate validates the command.
func (c LinkGuardianCommand) Validate() error {
	if c.TelegramID == 0 {
		return errors.New("link_guardian: telegram_id is required")
	}
	if student.NormalizeUsername(c.Login) == "" {
		return errors.New("link_guardian: login is required")
	}
	if c.Password == "" {
		return errors.New("link_guardian: password is required")
	}
	return nil
}

// LinkGuardianResult contains the linked student.
type LinkGuardianResult struct {
	Link    *recipient.Link
	Student student.Student

	// Rebound is true when the chat was moved from another student.
	Rebound bool
}

// LinkGuardianHandler handles the LinkGuardianCommand.
type LinkGuardianHandler struct {
	accounts student.AccountRepository
	links    recipient.Repository
	logger   *slog.Logger
}

// NewLinkGuardianHandler creates a new LinkGuardianHandler.
func NewLinkGuardianHandler(accounts student.AccountRepository, links recipient.Repository, logger *slog.Logger) *LinkGuardianHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkGuardianHandler{accounts: accounts, links: links, logger: logger}
}

// Handle authenticates the student and links the chat.
//
// Errors carry shared codes: USER_NOT_FOUND, INVALID_PASSWORD, NOT_STUDENT,
// INACTIVE_USER and ALREADY_LINKED.
func (h *LinkGuardianHandler) Handle(ctx context.Context, cmd LinkGuardianCommand) (*LinkGuardianResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	account, err := h.Authenticate(ctx, cmd.Login, cmd.Password)
	if err != nil {
		return nil, err
	}

	existing, err := h.links.GetByTelegramID(ctx, cmd.TelegramID)
	switch {
	case errors.Is(err, shared.ErrNotLinked):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("link_guardian: load existing link: %w", err)
	}

	if existing != nil && existing.StudentID == account.ID {
		return nil, shared.ErrAlreadyLinked
	}

	link := &recipient.Link{
		TelegramID:           cmd.TelegramID,
		ChatID:               cmd.ChatID,
		StudentID:            account.ID,
		FirstName:            cmd.FirstName,
		LastName:             cmd.LastName,
		Username:             cmd.TelegramUsername,
		NotificationsEnabled: true,
		Active:               true,
	}
	if link.ChatID == 0 {
		link.ChatID = cmd.TelegramID
	}
	if existing != nil {
		link.ID = existing.ID
		link.CreatedAt = existing.CreatedAt
	}

	if err := h.links.Save(ctx, link); err != nil {
		return nil, fmt.Errorf("link_guardian: save link: %w", err)
	}

	st := account.Student
	link.Student = &st

	h.logger.Info("guardian linked",
		slog.Int64("telegram_id", cmd.TelegramID),
		slog.String("student_id", account.ID),
		slog.Bool("rebound", existing != nil),
	)

	return &LinkGuardianResult{Link: link, Student: st, Rebound: existing != nil}, nil
}

// Authenticate checks student credentials in the order the bot reports them:
// unknown login, wrong password, wrong role, inactive account.
func (h *LinkGuardianHandler) Authenticate(ctx context.Context, login, password string) (*student.Account, error) {
	account, err := h.accounts.FindByUsername(ctx, login)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidPassword
	}
	if account.Role != student.RoleStudent {
		return nil, shared.ErrNotStudent
	}
	if !account.Active {
		return nil, shared.ErrInactiveUser
	}
	return account, nil
}
