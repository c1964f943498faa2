package report

import (
	"context"
	"fmt"
	"time"

	"github.com/maktab/baho-bot/internal/domain/grade"
	"github.com/maktab/baho-bot/internal/domain/student"
	"github.com/maktab/baho-bot/pkg/timeutil"
)

// Service gathers report data for one student and renders it.
// It is shared by the daily cycle and the on-demand "today" button.
type Service struct {
	resolver *Resolver
	grades   grade.Repository
	builder  *Builder
	loc      *time.Location
}

// NewService creates a report Service.
func NewService(resolver *Resolver, grades grade.Repository, builder *Builder, loc *time.Location) *Service {
	if loc == nil {
		loc = timeutil.TashkentTZ
	}
	return &Service{resolver: resolver, grades: grades, builder: builder, loc: loc}
}

// Prepare resolves the student's slots for date and loads the day's grades.
func (s *Service) Prepare(ctx context.Context, st student.Student, date time.Time) (Data, error) {
	slots, err := s.resolver.Resolve(ctx, st.Classes, date)
	if err != nil {
		return Data{}, fmt.Errorf("resolve schedule: %w", err)
	}

	from, to := timeutil.DayBounds(date, s.loc)
	grades, err := s.grades.ListForStudent(ctx, st.ID, from, to)
	if err != nil {
		return Data{}, fmt.Errorf("list grades: %w", err)
	}

	return Data{
		Student: st,
		Date:    date,
		Slots:   slots,
		Grades:  grades,
	}, nil
}

// Render prepares and builds the report text in one step.
func (s *Service) Render(ctx context.Context, st student.Student, date time.Time) (string, error) {
	data, err := s.Prepare(ctx, st, date)
	if err != nil {
		return "", err
	}
	text, err := s.builder.Build(data)
	if err != nil {
		return "", fmt.Errorf("build report: %w", err)
	}
	return text, nil
}
