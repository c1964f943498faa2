package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/maktab/baho-bot/internal/domain/recipient"
	"github.com/maktab/baho-bot/internal/domain/shared"
	"github.com/maktab/baho-bot/internal/domain/student"
)

// RecipientRepository implements recipient.Repository.
type RecipientRepository struct {
	db *sqlx.DB
}

// NewRecipientRepository creates a new RecipientRepository.
func NewRecipientRepository(db *sqlx.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

var _ recipient.Repository = (*RecipientRepository)(nil)

type linkRow struct {
	ID                   string    `db:"id"`
	TelegramID           int64     `db:"telegram_id"`
	ChatID               int64     `db:"chat_id"`
	StudentID            string    `db:"student_id"`
	FirstName            string    `db:"first_name"`
	LastName             string    `db:"last_name"`
	Username             string    `db:"username"`
	NotificationsEnabled bool      `db:"notifications_enabled"`
	Active               bool      `db:"active"`
	LastActivity         time.Time `db:"last_activity"`
	CreatedAt            time.Time `db:"created_at"`

	StudentFirstName string `db:"student_first_name"`
	StudentLastName  string `db:"student_last_name"`
	StudentActive    bool   `db:"student_active"`
}

func (r linkRow) toDomain(classes []student.Class) recipient.Link {
	return recipient.Link{
		ID:         r.ID,
		TelegramID: r.TelegramID,
		ChatID:     r.ChatID,
		StudentID:  r.StudentID,
		Student: &student.Student{
			ID:        r.StudentID,
			FirstName: r.StudentFirstName,
			LastName:  r.StudentLastName,
			Classes:   classes,
			Active:    r.StudentActive,
		},
		FirstName:            r.FirstName,
		LastName:             r.LastName,
		Username:             r.Username,
		NotificationsEnabled: r.NotificationsEnabled,
		Active:               r.Active,
		LastActivity:         r.LastActivity,
		CreatedAt:            r.CreatedAt,
	}
}

const linkColumns = `l.id, l.telegram_id, l.chat_id, l.student_id, l.first_name, l.last_name, l.username,
       l.notifications_enabled, l.active, l.last_activity, l.created_at,
       u.first_name AS student_first_name, u.last_name AS student_last_name, u.active AS student_active`

// ListEligible returns active, notification-enabled links of active students
// ordered by link creation.
func (r *RecipientRepository) ListEligible(ctx context.Context) ([]recipient.Link, error) {
	query := `SELECT ` + linkColumns + `
	FROM recipient_links l
	JOIN users u ON u.id = l.student_id
	WHERE l.active AND l.notifications_enabled AND u.active
	ORDER BY l.created_at, l.id`

	var rows []linkRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list eligible recipients: %w", err)
	}

	ids := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.StudentID]; !ok {
			seen[row.StudentID] = struct{}{}
			ids = append(ids, row.StudentID)
		}
	}

	classes, err := loadClasses(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	links := make([]recipient.Link, 0, len(rows))
	for _, row := range rows {
		links = append(links, row.toDomain(classes[row.StudentID]))
	}
	return links, nil
}

// GetByTelegramID returns the link of a Telegram user with its student.
func (r *RecipientRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*recipient.Link, error) {
	query := `SELECT ` + linkColumns + `
	FROM recipient_links l
	JOIN users u ON u.id = l.student_id
	WHERE l.telegram_id = $1 AND l.active`

	var row linkRow
	if err := r.db.GetContext(ctx, &row, query, telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotLinked
		}
		return nil, fmt.Errorf("get recipient link: %w", err)
	}

	classes, err := loadClasses(ctx, r.db, []string{row.StudentID})
	if err != nil {
		return nil, err
	}

	link := row.toDomain(classes[row.StudentID])
	return &link, nil
}

// Save inserts the link or rebinds the existing row of the same Telegram user.
func (r *RecipientRepository) Save(ctx context.Context, link *recipient.Link) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.LastActivity = now

	const query = `INSERT INTO recipient_links
	(id, telegram_id, chat_id, student_id, first_name, last_name, username, notifications_enabled, active, last_activity, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (telegram_id) DO UPDATE SET
		chat_id = EXCLUDED.chat_id,
		student_id = EXCLUDED.student_id,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		username = EXCLUDED.username,
		notifications_enabled = EXCLUDED.notifications_enabled,
		active = EXCLUDED.active,
		last_activity = EXCLUDED.last_activity
	RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		link.ID, link.TelegramID, link.ChatID, link.StudentID,
		link.FirstName, link.LastName, link.Username,
		link.NotificationsEnabled, link.Active, link.LastActivity, link.CreatedAt,
	).Scan(&link.ID, &link.CreatedAt)
	if IsForeignKeyViolation(err) {
		return shared.WrapError(shared.ErrUserNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("save recipient link: %w", err)
	}
	return nil
}

// Delete removes the link of a Telegram user.
func (r *RecipientRepository) Delete(ctx context.Context, telegramID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recipient_links WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("delete recipient link: %w", err)
	}
	return requireAffected(res, shared.ErrNotLinked)
}

// SetNotifications toggles the daily report for a Telegram user.
func (r *RecipientRepository) SetNotifications(ctx context.Context, telegramID int64, enabled bool) error {
	const query = `UPDATE recipient_links
	SET notifications_enabled = $2, last_activity = NOW()
	WHERE telegram_id = $1 AND active`

	res, err := r.db.ExecContext(ctx, query, telegramID, enabled)
	if err != nil {
		return fmt.Errorf("set notifications: %w", err)
	}
	return requireAffected(res, shared.ErrNotLinked)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
