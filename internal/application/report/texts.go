package report

import (
	"fmt"
	"strings"
)

// Guardian-facing report templates (Uzbek, Telegram Markdown).
const (
	averageLineFormat = "\n📈 *O'rtacha baho:* %s"

	// FallbackClassName heads grades whose class is unknown.
	FallbackClassName = "Boshqa"

	// UnnamedClassName is used for a class membership without a name.
	UnnamedClassName = "Sinf"
)

var gradeEmoji = map[int]string{
	5: "⭐",
	4: "👍",
	3: "😐",
	2: "😟",
}

// HeaderText opens every report that has content.
func HeaderText(studentName, date string) string {
	return fmt.Sprintf("📊 *Kunlik baho hisoboti*\n\n👤 O'quvchi: *%s*\n📅 Sana: *%s*\n", studentName, date)
}

// NoGradesTodayText is sent when there are neither lessons nor grades.
func NoGradesTodayText(studentName, date string) string {
	return fmt.Sprintf("📭 *Kunlik hisobot*\n\n👤 O'quvchi: *%s*\n📅 Sana: *%s*\n\n"+
		"⚠️ Bugun o'quvchiga baho qo'yilmadi.\n\n"+
		"_Bu o'quvchi bugun maktabga kelmagan bo'lishi mumkin yoki darslar o'tkazilmagan._",
		studentName, date)
}

// GradeLine renders one graded lesson.
func GradeLine(subject string, value int, comment string) string {
	emoji, ok := gradeEmoji[value]
	if !ok {
		emoji = "📝"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*: %d", emoji, subject, value)
	if comment = strings.TrimSpace(comment); comment != "" {
		fmt.Fprintf(&b, " _(%s)_", comment)
	}
	return b.String()
}

// NoGradeLine renders a scheduled lesson without a grade.
func NoGradeLine(subject string) string {
	return fmt.Sprintf("➖ *%s*: baho qo'yilmagan", subject)
}

// ClassHeader opens a class group in multi-class reports.
func ClassHeader(className string) string {
	return fmt.Sprintf("\n*%s*\n", className)
}

// AverageLine closes a report with at least one grade.
func AverageLine(mean string) string {
	return fmt.Sprintf(averageLineFormat, mean)
}
