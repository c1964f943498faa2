// Package schedule описывает расписание класса на день недели.
package schedule

import (
	"context"
	"fmt"

	"github.com/maktab/baho-bot/internal/domain/shared"
)

// Lesson - один урок в расписании класса.
type Lesson struct {
	SubjectID   string
	SubjectName string
	TeacherID   string
	Order       int
}

// ClassDay - расписание одного класса на один день недели.
// Пара (ClassID, Weekday) уникальна, Order уникален внутри дня.
type ClassDay struct {
	ClassID string
	Weekday string
	Lessons []Lesson
}

// Validate проверяет уникальность порядковых номеров.
func (d ClassDay) Validate() error {
	seen := make(map[int]struct{}, len(d.Lessons))
	for _, l := range d.Lessons {
		if _, dup := seen[l.Order]; dup {
			return fmt.Errorf("%w: duplicate order %d for class %s on %s", shared.ErrInvalidEntity, l.Order, d.ClassID, d.Weekday)
		}
		seen[l.Order] = struct{}{}
	}
	return nil
}

// Slot - урок, который должен пройти у ученика в конкретный день,
// с указанием класса, из которого он пришёл.
type Slot struct {
	ClassID     string
	ClassName   string
	SubjectID   string
	SubjectName string
	Order       int
}

// Repository - источник расписаний.
type Repository interface {
	// ListLessons возвращает уроки класса на день недели (uz: "dushanba" ...).
	// Пустой результат - расписания нет.
	ListLessons(ctx context.Context, classID, weekday string) ([]Lesson, error)
}
