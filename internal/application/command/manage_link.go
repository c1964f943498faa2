package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maktab/baho-bot/internal/domain/recipient"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLINK GUARDIAN COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// UnlinkGuardianHandler removes a chat's link. Unlinking a chat that has no
// link returns shared.ErrNotLinked.
type UnlinkGuardianHandler struct {
	links  recipient.Repository
	logger *slog.Logger
}

// NewUnlinkGuardianHandler creates a new UnlinkGuardianHandler.
func NewUnlinkGuardianHandler(links recipient.Repository, logger *slog.Logger) *UnlinkGuardianHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnlinkGuardianHandler{links: links, logger: logger}
}

// Handle deletes the link of telegramID.
func (h *UnlinkGuardianHandler) Handle(ctx context.Context, telegramID int64) error {
	if telegramID == 0 {
		return errors.New("unlink_guardian: telegram_id is required")
	}
	if err := h.links.Delete(ctx, telegramID); err != nil {
		return fmt.Errorf("unlink_guardian: %w", err)
	}
	h.logger.Info("guardian unlinked", slog.Int64("telegram_id", telegramID))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE NOTIFICATIONS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ToggleNotificationsCommand switches the daily report for a chat.
type ToggleNotificationsCommand struct {
	TelegramID int64
	Enabled    bool
}

// ToggleNotificationsHandler handles the ToggleNotificationsCommand.
type ToggleNotificationsHandler struct {
	links  recipient.Repository
	logger *slog.Logger
}

// NewToggleNotificationsHandler creates a new ToggleNotificationsHandler.
func NewToggleNotificationsHandler(links recipient.Repository, logger *slog.Logger) *ToggleNotificationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToggleNotificationsHandler{links: links, logger: logger}
}

// Handle stores the new setting.
func (h *ToggleNotificationsHandler) Handle(ctx context.Context, cmd ToggleNotificationsCommand) error {
	if cmd.TelegramID == 0 {
		return errors.New("toggle_notifications: telegram_id is required")
	}
	if err := h.links.SetNotifications(ctx, cmd.TelegramID, cmd.Enabled); err != nil {
		return fmt.Errorf("toggle_notifications: %w", err)
	}
	h.logger.Info("notifications toggled",
		slog.Int64("telegram_id", cmd.TelegramID),
		slog.Bool("enabled", cmd.Enabled),
	)
	return nil
}
