// Package grade описывает оценки, выставленные ученику.
package grade

import (
	"context"
	"fmt"
	"time"

	"github.com/maktab/baho-bot/internal/domain/shared"
)

// Допустимый диапазон оценок.
const (
	MinValue = 2
	MaxValue = 5
)

// Grade - оценка ученика по предмету за день.
type Grade struct {
	ID          string
	StudentID   string
	SubjectID   string
	SubjectName string
	ClassID     string
	ClassName   string
	Value       int
	Comment     string

	// LessonOrder различает несколько оценок по одному предмету за день.
	// 0 - не указан.
	LessonOrder int

	Date      time.Time
	CreatedAt time.Time
}

// Order возвращает номер урока; по умолчанию 1.
func (g Grade) Order() int {
	if g.LessonOrder <= 0 {
		return 1
	}
	return g.LessonOrder
}

// Validate проверяет диапазон значения.
func (g Grade) Validate() error {
	if g.Value < MinValue || g.Value > MaxValue {
		return shared.WrapError(shared.ErrInvalidGrade, fmt.Errorf("grade %s has value %d", g.ID, g.Value))
	}
	return nil
}

// Repository - источник оценок.
type Repository interface {
	// ListForStudent возвращает оценки ученика с датой в [from, to],
	// по возрастанию времени создания.
	ListForStudent(ctx context.Context, studentID string, from, to time.Time) ([]Grade, error)
}
