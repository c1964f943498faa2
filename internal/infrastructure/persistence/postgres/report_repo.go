package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/maktab/baho-bot/internal/domain/calendar"
	"github.com/maktab/baho-bot/internal/domain/grade"
	"github.com/maktab/baho-bot/internal/domain/schedule"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADES
// ══════════════════════════════════════════════════════════════════════════════

// GradeRepository implements grade.Repository.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

var _ grade.Repository = (*GradeRepository)(nil)

type gradeRow struct {
	ID          string         `db:"id"`
	StudentID   string         `db:"student_id"`
	SubjectID   string         `db:"subject_id"`
	SubjectName string         `db:"subject_name"`
	ClassID     sql.NullString `db:"class_id"`
	ClassName   sql.NullString `db:"class_name"`
	Value       int            `db:"value"`
	Comment     string         `db:"comment"`
	LessonOrder sql.NullInt64  `db:"lesson_order"`
	GradedAt    time.Time      `db:"graded_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

// ListForStudent returns the grades of a student graded within [from, to],
// oldest first.
func (r *GradeRepository) ListForStudent(ctx context.Context, studentID string, from, to time.Time) ([]grade.Grade, error) {
	const query = `SELECT g.id, g.student_id, g.subject_id, s.name AS subject_name,
       g.class_id, c.name AS class_name, g.value, g.comment, g.lesson_order, g.graded_at, g.created_at
	FROM grades g
	JOIN subjects s ON s.id = g.subject_id
	LEFT JOIN classes c ON c.id = g.class_id
	WHERE g.student_id = $1 AND g.graded_at BETWEEN $2 AND $3
	ORDER BY g.created_at, g.id`

	var rows []gradeRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("list grades for student %s: %w", studentID, err)
	}

	grades := make([]grade.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, grade.Grade{
			ID:          row.ID,
			StudentID:   row.StudentID,
			SubjectID:   row.SubjectID,
			SubjectName: row.SubjectName,
			ClassID:     row.ClassID.String,
			ClassName:   row.ClassName.String,
			Value:       row.Value,
			Comment:     row.Comment,
			LessonOrder: int(row.LessonOrder.Int64),
			Date:        row.GradedAt,
			CreatedAt:   row.CreatedAt,
		})
	}
	return grades, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleRepository implements schedule.Repository.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

var _ schedule.Repository = (*ScheduleRepository)(nil)

type lessonRow struct {
	SubjectID   string         `db:"subject_id"`
	SubjectName string         `db:"subject_name"`
	TeacherID   sql.NullString `db:"teacher_id"`
	Order       int            `db:"lesson_order"`
}

// ListLessons returns the lessons of a class on a weekday ordered by lesson number.
func (r *ScheduleRepository) ListLessons(ctx context.Context, classID, weekday string) ([]schedule.Lesson, error) {
	const query = `SELECT i.subject_id, s.name AS subject_name, i.teacher_id, i.lesson_order
	FROM schedules sch
	JOIN schedule_items i ON i.schedule_id = sch.id
	JOIN subjects s ON s.id = i.subject_id
	WHERE sch.class_id = $1 AND sch.weekday = $2
	ORDER BY i.lesson_order`

	var rows []lessonRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, weekday); err != nil {
		return nil, fmt.Errorf("list lessons for class %s on %s: %w", classID, weekday, err)
	}

	lessons := make([]schedule.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, schedule.Lesson{
			SubjectID:   row.SubjectID,
			SubjectName: row.SubjectName,
			TeacherID:   row.TeacherID.String,
			Order:       row.Order,
		})
	}
	return lessons, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HOLIDAYS
// ══════════════════════════════════════════════════════════════════════════════

// HolidayRepository implements calendar.Repository.
type HolidayRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewHolidayRepository creates a new HolidayRepository.
func NewHolidayRepository(db *sqlx.DB, log *slog.Logger) *HolidayRepository {
	if log == nil {
		log = slog.Default()
	}
	return &HolidayRepository{db: db, log: log.With("component", "holiday_repo")}
}

var _ calendar.Repository = (*HolidayRepository)(nil)

type holidayRow struct {
	ID          string        `db:"id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	Kind        string        `db:"kind"`
	Date        sql.NullTime  `db:"holiday_date"`
	StartDate   sql.NullTime  `db:"start_date"`
	EndDate     sql.NullTime  `db:"end_date"`
	Month       sql.NullInt16 `db:"recurring_month"`
	Day         sql.NullInt16 `db:"recurring_day"`
	StartMonth  sql.NullInt16 `db:"recurring_start_month"`
	StartDay    sql.NullInt16 `db:"recurring_start_day"`
	EndMonth    sql.NullInt16 `db:"recurring_end_month"`
	EndDay      sql.NullInt16 `db:"recurring_end_day"`
	Active      bool          `db:"active"`
}

func (r holidayRow) toDomain() calendar.Holiday {
	h := calendar.Holiday{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Kind:        calendar.Kind(r.Kind),
		Active:      r.Active,
		Date:        nullTime(r.Date),
		Start:       nullTime(r.StartDate),
		End:         nullTime(r.EndDate),
	}
	h.RecurringDate = monthDay(r.Month, r.Day)
	h.RecurringStart = monthDay(r.StartMonth, r.StartDay)
	h.RecurringEnd = monthDay(r.EndMonth, r.EndDay)
	return h
}

// ListActive returns every active holiday. Rows that fail validation are
// dropped so one bad record cannot block the calendar.
func (r *HolidayRepository) ListActive(ctx context.Context) ([]calendar.Holiday, error) {
	const query = `SELECT id, name, description, kind, holiday_date, start_date, end_date,
       recurring_month, recurring_day, recurring_start_month, recurring_start_day,
       recurring_end_month, recurring_end_day, active
	FROM holidays WHERE active
	ORDER BY created_at, id`

	var rows []holidayRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list active holidays: %w", err)
	}

	holidays := make([]calendar.Holiday, 0, len(rows))
	for _, row := range rows {
		h := row.toDomain()
		if err := h.Validate(); err != nil {
			r.log.WarnContext(ctx, "skipping invalid holiday",
				"holiday_id", row.ID,
				"kind", row.Kind,
				"error", err,
			)
			continue
		}
		holidays = append(holidays, h)
	}
	return holidays, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func monthDay(month, day sql.NullInt16) *calendar.MonthDay {
	if !month.Valid || !day.Valid {
		return nil
	}
	return &calendar.MonthDay{Month: time.Month(month.Int16), Day: int(day.Int16)}
}
