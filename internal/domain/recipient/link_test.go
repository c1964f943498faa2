package recipient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maktab/baho-bot/internal/domain/student"
)

func TestLink_Eligible(t *testing.T) {
	active := &student.Student{ID: "s1", Active: true}

	tests := []struct {
		name string
		link Link
		want bool
	}{
		{"all set", Link{Active: true, NotificationsEnabled: true, Student: active}, true},
		{"notifications off", Link{Active: true, Student: active}, false},
		{"link inactive", Link{NotificationsEnabled: true, Student: active}, false},
		{"student missing", Link{Active: true, NotificationsEnabled: true}, false},
		{"student inactive", Link{Active: true, NotificationsEnabled: true, Student: &student.Student{ID: "s1"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.link.Eligible())
		})
	}
}
