package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/maktab/baho-bot/internal/domain/shared"
	"github.com/maktab/baho-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository implements student.AccountRepository.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ student.AccountRepository = (*AccountRepository)(nil)

type accountRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	Role         string `db:"role"`
	Active       bool   `db:"active"`
}

// FindByUsername returns the account with its classes in enrolment order.
func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*student.Account, error) {
	const query = `SELECT id, username, password_hash, first_name, last_name, role, active
	FROM users WHERE username = $1`

	var row accountRow
	if err := r.db.GetContext(ctx, &row, query, student.NormalizeUsername(username)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("find account by username: %w", err)
	}

	classes, err := loadClasses(ctx, r.db, []string{row.ID})
	if err != nil {
		return nil, err
	}

	return &student.Account{
		Student: student.Student{
			ID:        row.ID,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Classes:   classes[row.ID],
			Active:    row.Active,
		},
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		Role:         student.Role(row.Role),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type classRow struct {
	StudentID string `db:"student_id"`
	ClassID   string `db:"class_id"`
	Name      string `db:"name"`
}

// loadClasses returns the classes of every given student, keyed by student id,
// each list in enrolment order.
func loadClasses(ctx context.Context, q sqlx.QueryerContext, studentIDs []string) (map[string][]student.Class, error) {
	out := make(map[string][]student.Class, len(studentIDs))
	if len(studentIDs) == 0 {
		return out, nil
	}

	const query = `SELECT sc.student_id, c.id AS class_id, c.name
	FROM student_classes sc
	JOIN classes c ON c.id = sc.class_id
	WHERE sc.student_id = ANY($1::uuid[])
	ORDER BY sc.student_id, sc.position, c.name`

	var rows []classRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("load student classes: %w", err)
	}

	for _, row := range rows {
		out[row.StudentID] = append(out[row.StudentID], student.Class{ID: row.ClassID, Name: row.Name})
	}
	return out, nil
}
