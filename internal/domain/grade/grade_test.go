package grade

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktab/baho-bot/internal/domain/shared"
)

func TestGrade_Order(t *testing.T) {
	assert.Equal(t, 1, Grade{}.Order())
	assert.Equal(t, 1, Grade{LessonOrder: -3}.Order())
	assert.Equal(t, 4, Grade{LessonOrder: 4}.Order())
}

func TestGrade_Validate(t *testing.T) {
	for v := MinValue; v <= MaxValue; v++ {
		assert.NoError(t, Grade{ID: "g", Value: v}.Validate())
	}

	for _, v := range []int{0, 1, 6} {
		err := Grade{ID: "g", Value: v}.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidGrade))
	}
}
