package telegram

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sorakado/offkai/store"
)

func TestSplitFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty arguments",
			input: "   ",
			want:  nil,
		},
		{
			name:  "single field",
			input: "Summer Offkai",
			want:  []string{"Summer Offkai"},
		},
		{
			name:  "fields keep interior spaces",
			input: "Summer Offkai | Warabiya | Shinjuku 2-chome",
			want:  []string{"Summer Offkai", "Warabiya", "Shinjuku 2-chome"},
		},
		{
			name:  "empty optional fields survive",
			input: "Summer Offkai || 30",
			want:  []string{"Summer Offkai", "", "30"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitFields(tt.input))
		})
	}
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"beer", "oolong tea"}, splitCSV(" beer , oolong tea ,"))
	assert.Nil(t, splitCSV("  "))
}

func TestUserFacing(t *testing.T) {
	assert.Equal(t, "No event by that name.",
		userFacing(fmt.Errorf("handling command: %w", store.ErrEventNotFound)))
	assert.Contains(t, userFacing(store.ErrEventNotFound), "No event")
	assert.Contains(t, userFacing(store.ErrDuplicateResponse), "already registered")
	assert.Contains(t, userFacing(errors.New("boom")), "boom")
}
