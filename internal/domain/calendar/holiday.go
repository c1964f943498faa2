// Package calendar решает, является ли день отчётным.
// Выходной день недели и праздники (разовые, диапазоны, ежегодные) проверяются
// чистой функцией, без скрытого состояния.
package calendar

import (
	"context"
	"time"

	"github.com/maktab/baho-bot/internal/domain/shared"
	"github.com/maktab/baho-bot/pkg/timeutil"
)

// Kind определяет вариант праздника.
type Kind string

const (
	// KindSingle - один конкретный день.
	KindSingle Kind = "single"
	// KindRange - диапазон дат включительно.
	KindRange Kind = "range"
	// KindRecurring - ежегодный день или диапазон (месяц+день).
	KindRecurring Kind = "recurring"
)

// IsValid проверяет, что вариант известен.
func (k Kind) IsValid() bool {
	switch k {
	case KindSingle, KindRange, KindRecurring:
		return true
	default:
		return false
	}
}

// MonthDay - день в году без привязки к году.
type MonthDay struct {
	Month time.Month
	Day   int
}

// IsValid проверяет границы месяца и дня.
func (md MonthDay) IsValid() bool {
	return md.Month >= time.January && md.Month <= time.December && md.Day >= 1 && md.Day <= 31
}

// onOrAfter: (month, day) не раньше md.
func (md MonthDay) onOrAfter(month time.Month, day int) bool {
	return month > md.Month || (month == md.Month && day >= md.Day)
}

// onOrBefore: (month, day) не позже md.
func (md MonthDay) onOrBefore(month time.Month, day int) bool {
	return month < md.Month || (month == md.Month && day <= md.Day)
}

// Holiday - запись о нерабочем дне.
// Заполнен ровно один вариант полей в зависимости от Kind.
type Holiday struct {
	ID          string
	Name        string
	Description string
	Kind        Kind

	// KindSingle
	Date *time.Time

	// KindRange
	Start *time.Time
	End   *time.Time

	// KindRecurring: либо RecurringDate, либо пара RecurringStart/RecurringEnd.
	RecurringDate  *MonthDay
	RecurringStart *MonthDay
	RecurringEnd   *MonthDay

	Active bool
}

// Validate проверяет, что заполнен ровно один вариант.
func (h Holiday) Validate() error {
	single := h.Date != nil
	ranged := h.Start != nil || h.End != nil
	recSingle := h.RecurringDate != nil
	recRange := h.RecurringStart != nil || h.RecurringEnd != nil

	switch h.Kind {
	case KindSingle:
		if single && !ranged && !recSingle && !recRange {
			return nil
		}
	case KindRange:
		if h.Start != nil && h.End != nil && !single && !recSingle && !recRange && !h.End.Before(*h.Start) {
			return nil
		}
	case KindRecurring:
		if single || ranged {
			break
		}
		if recSingle && !recRange && h.RecurringDate.IsValid() {
			return nil
		}
		if !recSingle && h.RecurringStart != nil && h.RecurringEnd != nil &&
			h.RecurringStart.IsValid() && h.RecurringEnd.IsValid() &&
			!(h.RecurringStart.Month == h.RecurringEnd.Month && h.RecurringStart.Day > h.RecurringEnd.Day) {
			return nil
		}
	}
	return shared.ErrInvalidHoliday
}

// Covers проверяет, попадает ли день (уже нормализованный к полуночи в loc) в праздник.
func (h Holiday) Covers(day time.Time, loc *time.Location) bool {
	switch h.Kind {
	case KindSingle:
		if h.Date == nil {
			return false
		}
		return timeutil.StartOfDay(*h.Date, loc).Equal(day)

	case KindRange:
		if h.Start == nil || h.End == nil {
			return false
		}
		start := timeutil.StartOfDay(*h.Start, loc)
		end := timeutil.EndOfDay(*h.End, loc)
		return !day.Before(start) && !day.After(end)

	case KindRecurring:
		month, d := day.Month(), day.Day()

		if h.RecurringDate != nil && h.RecurringDate.Month == month && h.RecurringDate.Day == d {
			return true
		}

		if h.RecurringStart != nil && h.RecurringEnd != nil {
			s, e := *h.RecurringStart, *h.RecurringEnd
			if s.Month > e.Month {
				// Окно переходит через конец года (например, 20 декабря - 5 января).
				return month > s.Month || month < e.Month ||
					(month == s.Month && d >= s.Day) ||
					(month == e.Month && d <= e.Day)
			}
			return s.onOrAfter(month, d) && e.onOrBefore(month, d)
		}
	}
	return false
}

// Repository - источник активных праздников.
type Repository interface {
	// ListActive возвращает все праздники с Active = true.
	ListActive(ctx context.Context) ([]Holiday, error)
}
