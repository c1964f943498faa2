// Package recipient описывает привязку чата Telegram к ученику.
package recipient

import (
	"context"
	"time"

	"github.com/maktab/baho-bot/internal/domain/student"
)

// Link - привязка чата родителя к ученику.
// На один Telegram ID приходится не больше одной активной привязки.
type Link struct {
	ID         string
	TelegramID int64
	ChatID     int64
	StudentID  string

	// Student заполняется при чтении списков для рассылки.
	Student *student.Student

	FirstName string
	LastName  string
	Username  string

	NotificationsEnabled bool
	Active               bool
	LastActivity         time.Time
	CreatedAt            time.Time
}

// Eligible - получает ли привязка ежедневный отчёт.
func (l Link) Eligible() bool {
	return l.Active && l.NotificationsEnabled && l.Student != nil && l.Student.Active
}

// Repository хранит привязки.
type Repository interface {
	// ListEligible возвращает активные привязки с включёнными уведомлениями
	// и активным учеником, вместе с классами ученика.
	ListEligible(ctx context.Context) ([]Link, error)

	// GetByTelegramID возвращает привязку с учеником.
	// Возвращает shared.ErrNotLinked, если привязки нет.
	GetByTelegramID(ctx context.Context, telegramID int64) (*Link, error)

	// Save создаёт или перепривязывает запись по TelegramID.
	Save(ctx context.Context, link *Link) error

	// Delete удаляет привязку.
	Delete(ctx context.Context, telegramID int64) error

	// SetNotifications включает или выключает ежедневный отчёт.
	SetNotifications(ctx context.Context, telegramID int64, enabled bool) error
}
