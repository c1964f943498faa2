package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maktab/baho-bot/internal/domain/shared"
)

func TestClassDay_Validate(t *testing.T) {
	ok := ClassDay{ClassID: "c1", Weekday: "dushanba", Lessons: []Lesson{{Order: 1}, {Order: 2}}}
	assert.NoError(t, ok.Validate())

	dup := ClassDay{ClassID: "c1", Weekday: "dushanba", Lessons: []Lesson{{Order: 1}, {Order: 1}}}
	assert.ErrorIs(t, dup.Validate(), shared.ErrInvalidEntity)
}
