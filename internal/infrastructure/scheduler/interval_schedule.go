package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires on Interval boundaries of the wall clock, so a
// one-minute schedule fires at hh:mm:00 regardless of when it was registered.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewAlignedSchedule returns a boundary-aligned schedule.
func NewAlignedSchedule(every time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: every}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if s.Interval <= 0 {
		return t.Add(s.Interval)
	}
	return t.Truncate(s.Interval).Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("every %s aligned", s.Interval)
}
