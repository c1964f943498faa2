// Package query contains read operations of the guardian bot.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maktab/baho-bot/internal/domain/recipient"
	"github.com/maktab/baho-bot/internal/domain/student"
	"github.com/maktab/baho-bot/pkg/clock"
	"github.com/maktab/baho-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TODAY REPORT QUERY
// The on-demand version of the daily report, for one linked chat.
// ══════════════════════════════════════════════════════════════════════════════

// Renderer renders a student's report for a date.
type Renderer interface {
	Render(ctx context.Context, st student.Student, date time.Time) (string, error)
}

// TodayReport is the rendered report with the link it was built for.
type TodayReport struct {
	Link *recipient.Link
	Date time.Time
	Text string
}

// TodayReportHandler handles the today report query.
type TodayReportHandler struct {
	links    recipient.Repository
	renderer Renderer
	clock    clock.Clock
	loc      *time.Location
}

// NewTodayReportHandler creates a new TodayReportHandler.
func NewTodayReportHandler(links recipient.Repository, renderer Renderer, clk clock.Clock, loc *time.Location) *TodayReportHandler {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = timeutil.TashkentTZ
	}
	return &TodayReportHandler{links: links, renderer: renderer, clock: clk, loc: loc}
}

// Handle renders today's report for the chat's linked student.
// Returns shared.ErrNotLinked for chats without a link.
func (h *TodayReportHandler) Handle(ctx context.Context, telegramID int64) (*TodayReport, error) {
	link, err := h.links.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if link.Student == nil {
		return nil, errors.New("today_report: link has no student")
	}

	date := h.clock.Now().In(h.loc)
	text, err := h.renderer.Render(ctx, *link.Student, date)
	if err != nil {
		return nil, fmt.Errorf("today_report: %w", err)
	}

	return &TodayReport{Link: link, Date: date, Text: text}, nil
}
