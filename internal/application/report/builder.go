package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/maktab/baho-bot/internal/domain/grade"
	"github.com/maktab/baho-bot/internal/domain/schedule"
	"github.com/maktab/baho-bot/internal/domain/student"
	"github.com/maktab/baho-bot/pkg/timeutil"
)

// Data is everything needed to render one report. It lives only for the
// duration of a cycle and is never persisted.
type Data struct {
	Student student.Student
	Date    time.Time
	Slots   []schedule.Slot
	Grades  []grade.Grade

	// ChatID is the recipient; the builder does not use it.
	ChatID int64
}

// Builder renders report texts.
type Builder struct {
	loc *time.Location
}

// NewBuilder creates a Builder that formats dates in loc.
func NewBuilder(loc *time.Location) *Builder {
	if loc == nil {
		loc = timeutil.TashkentTZ
	}
	return &Builder{loc: loc}
}

// Build renders the report. It fails only on malformed grades.
func (b *Builder) Build(d Data) (string, error) {
	for _, g := range d.Grades {
		if err := g.Validate(); err != nil {
			return "", err
		}
	}

	name := d.Student.DisplayName()
	date := timeutil.FormatReportDate(d.Date, b.loc)

	if len(d.Slots) == 0 && len(d.Grades) == 0 {
		return NoGradesTodayText(name, date), nil
	}

	var sb strings.Builder
	sb.WriteString(HeaderText(name, date))
	sb.WriteString("\n")

	if len(d.Slots) > 0 {
		b.writeSchedule(&sb, d)
	} else {
		b.writeGradesOnly(&sb, d)
	}

	return sb.String(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Schedule-driven report
// ─────────────────────────────────────────────────────────────────────────────

type gradeKey struct {
	subjectID string
	order     int
}

// gradeQueues holds unconsumed grades per (subject, lesson order) in
// creation order.
type gradeQueues map[gradeKey][]grade.Grade

func newGradeQueues(grades []grade.Grade) gradeQueues {
	q := make(gradeQueues, len(grades))
	for _, g := range grades {
		k := gradeKey{subjectID: g.SubjectID, order: g.Order()}
		q[k] = append(q[k], g)
	}
	return q
}

// pop removes and returns the oldest grade for the key.
func (q gradeQueues) pop(k gradeKey) (grade.Grade, bool) {
	list := q[k]
	if len(list) == 0 {
		return grade.Grade{}, false
	}
	g := list[0]
	if len(list) == 1 {
		delete(q, k)
	} else {
		q[k] = list[1:]
	}
	return g, true
}

type renderedSlot struct {
	slot    schedule.Slot
	grade   grade.Grade
	matched bool
}

func (b *Builder) writeSchedule(sb *strings.Builder, d Data) {
	queues := newGradeQueues(d.Grades)

	// Match in global slot order so the first slot of a subject gets the
	// first grade, independent of how the lines are grouped below.
	rendered := make([]renderedSlot, len(d.Slots))
	var avg mean
	for i, s := range d.Slots {
		order := s.Order
		if order <= 0 {
			order = 1
		}
		g, ok := queues.pop(gradeKey{subjectID: s.SubjectID, order: order})
		rendered[i] = renderedSlot{slot: s, grade: g, matched: ok}
		if ok {
			avg.add(g.Value)
		}
	}

	if d.Student.HasMultipleClasses() {
		order, groups := groupBy(rendered, func(r renderedSlot) string { return r.slot.ClassName })
		for _, className := range order {
			sb.WriteString(ClassHeader(className))
			for _, r := range groups[className] {
				writeSlotLine(sb, r, fmt.Sprintf("%s (%s)", r.slot.SubjectName, className))
			}
		}
	} else {
		for _, r := range rendered {
			writeSlotLine(sb, r, r.slot.SubjectName)
		}
	}

	if avg.count > 0 {
		sb.WriteString(AverageLine(avg.String()))
	}
}

func writeSlotLine(sb *strings.Builder, r renderedSlot, subject string) {
	if r.matched {
		sb.WriteString(GradeLine(subject, r.grade.Value, r.grade.Comment))
	} else {
		sb.WriteString(NoGradeLine(subject))
	}
	sb.WriteString("\n")
}

// ─────────────────────────────────────────────────────────────────────────────
// Grade-only fallback (no schedule data)
// ─────────────────────────────────────────────────────────────────────────────

func (b *Builder) writeGradesOnly(sb *strings.Builder, d Data) {
	var avg mean
	for _, g := range d.Grades {
		avg.add(g.Value)
	}

	bySubject := func(list []grade.Grade) {
		order, groups := groupBy(list, func(g grade.Grade) string { return g.SubjectID })
		for _, subjectID := range order {
			for _, g := range groups[subjectID] {
				sb.WriteString(GradeLine(g.SubjectName, g.Value, g.Comment))
				sb.WriteString("\n")
			}
		}
	}

	if d.Student.HasMultipleClasses() {
		order, groups := groupBy(d.Grades, func(g grade.Grade) string {
			if g.ClassName == "" {
				return FallbackClassName
			}
			return g.ClassName
		})
		for _, className := range order {
			sb.WriteString(ClassHeader(className))
			bySubject(groups[className])
		}
	} else {
		bySubject(d.Grades)
	}

	sb.WriteString(AverageLine(avg.String()))
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// groupBy groups items by key, keeping first-appearance order of keys and
// input order within a group.
func groupBy[T any](items []T, key func(T) string) ([]string, map[string][]T) {
	var order []string
	groups := make(map[string][]T)
	for _, it := range items {
		k := key(it)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}
	return order, groups
}

// mean accumulates integer grades and renders the average with one decimal,
// rounding halves up.
type mean struct {
	sum   int
	count int
}

func (m *mean) add(v int) {
	m.sum += v
	m.count++
}

// String rounds sum/count to tenths using integer arithmetic.
func (m mean) String() string {
	if m.count == 0 {
		return "0.0"
	}
	tenths := (20*m.sum + m.count) / (2 * m.count)
	return fmt.Sprintf("%d.%d", tenths/10, tenths%10)
}
