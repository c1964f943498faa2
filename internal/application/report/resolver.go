// Package report turns a student's schedule and grades into the daily
// guardian message.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/maktab/baho-bot/internal/domain/schedule"
	"github.com/maktab/baho-bot/internal/domain/student"
	"github.com/maktab/baho-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// Resolver merges the weekday schedules of every class a student belongs to.
type Resolver struct {
	lessons schedule.Repository
	restDay time.Weekday
	loc     *time.Location
}

// NewResolver creates a Resolver.
func NewResolver(lessons schedule.Repository, restDay time.Weekday, loc *time.Location) *Resolver {
	if loc == nil {
		loc = timeutil.TashkentTZ
	}
	return &Resolver{lessons: lessons, restDay: restDay, loc: loc}
}

// Resolve returns the lesson slots that should exist on date, ordered by
// lesson order. Slots with equal order keep class enumeration order.
// An empty result means no scheduled lessons.
func (r *Resolver) Resolve(ctx context.Context, classes []student.Class, date time.Time) ([]schedule.Slot, error) {
	weekday := date.In(r.loc).Weekday()
	if weekday == r.restDay || len(classes) == 0 {
		return nil, nil
	}
	dayName := timeutil.WeekdayNameUz(weekday)

	var slots []schedule.Slot
	for _, class := range classes {
		lessons, err := r.lessons.ListLessons(ctx, class.ID, dayName)
		if err != nil {
			return nil, fmt.Errorf("list lessons for class %s on %s: %w", class.ID, dayName, err)
		}

		sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })

		name := class.Name
		if name == "" {
			name = UnnamedClassName
		}
		for _, l := range lessons {
			slots = append(slots, schedule.Slot{
				ClassID:     class.ID,
				ClassName:   name,
				SubjectID:   l.SubjectID,
				SubjectName: l.SubjectName,
				Order:       l.Order,
			})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Order < slots[j].Order })
	return slots, nil
}
