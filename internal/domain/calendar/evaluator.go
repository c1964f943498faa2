package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/maktab/baho-bot/pkg/timeutil"
)

// Reason объясняет, почему день не отчётный.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonRestDay Reason = "rest_day"
	ReasonHoliday Reason = "holiday"
)

// Verdict - результат проверки дня.
type Verdict struct {
	NonReporting bool
	Reason       Reason
	Holiday      *Holiday // заполнен при ReasonHoliday
}

// Evaluator проверяет даты против фиксированного набора праздников.
// Результат зависит только от (праздники, выходной день, дата).
type Evaluator struct {
	holidays []Holiday
	restDay  time.Weekday
	loc      *time.Location
}

// NewEvaluator создаёт Evaluator. Неактивные праздники отбрасываются сразу.
func NewEvaluator(holidays []Holiday, restDay time.Weekday, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = timeutil.TashkentTZ
	}
	active := make([]Holiday, 0, len(holidays))
	for _, h := range holidays {
		if h.Active {
			active = append(active, h)
		}
	}
	return &Evaluator{holidays: active, restDay: restDay, loc: loc}
}

// Check возвращает вердикт для даты. Первый совпавший праздник завершает поиск.
func (e *Evaluator) Check(date time.Time) Verdict {
	day := timeutil.StartOfDay(date, e.loc)

	if day.Weekday() == e.restDay {
		return Verdict{NonReporting: true, Reason: ReasonRestDay}
	}

	if h, ok := e.Match(day); ok {
		return Verdict{NonReporting: true, Reason: ReasonHoliday, Holiday: &h}
	}

	return Verdict{}
}

// Match возвращает совпавший праздник, если он есть. Выходной день недели не учитывается.
func (e *Evaluator) Match(date time.Time) (Holiday, bool) {
	day := timeutil.StartOfDay(date, e.loc)
	for i := range e.holidays {
		if e.holidays[i].Covers(day, e.loc) {
			return e.holidays[i], true
		}
	}
	return Holiday{}, false
}

// IsNonReportingDay - true для выходного дня недели или праздника.
func (e *Evaluator) IsNonReportingDay(date time.Time) bool {
	return e.Check(date).NonReporting
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service загружает праздники из хранилища при каждой проверке,
// чтобы изменения в календаре учитывались без перезапуска.
type Service struct {
	repo    Repository
	restDay time.Weekday
	loc     *time.Location
}

// NewService создаёт сервис календаря.
func NewService(repo Repository, restDay time.Weekday, loc *time.Location) *Service {
	if loc == nil {
		loc = timeutil.TashkentTZ
	}
	return &Service{repo: repo, restDay: restDay, loc: loc}
}

// Check загружает активные праздники и проверяет дату.
// Выходной день недели проверяется до обращения к хранилищу.
func (s *Service) Check(ctx context.Context, date time.Time) (Verdict, error) {
	if timeutil.StartOfDay(date, s.loc).Weekday() == s.restDay {
		return Verdict{NonReporting: true, Reason: ReasonRestDay}, nil
	}

	holidays, err := s.repo.ListActive(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("list active holidays: %w", err)
	}

	return NewEvaluator(holidays, s.restDay, s.loc).Check(date), nil
}
