package student

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository ищет учётные записи для входа.
type AccountRepository interface {
	// FindByUsername возвращает учётную запись вместе с классами.
	// Возвращает shared.ErrUserNotFound, если логин не найден.
	FindByUsername(ctx context.Context, username string) (*Account, error)
}
