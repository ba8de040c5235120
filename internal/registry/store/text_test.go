package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGroupText_Timestamps(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"whole seconds", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02 03:04:05+00"},
		{"fraction trims trailing zeros", time.Date(2024, 1, 2, 3, 4, 5, 120_000_000, time.UTC), "2024-01-02 03:04:05.12+00"},
		{"converted to utc", time.Date(2024, 1, 2, 5, 4, 5, 0, time.FixedZone("EET", 2*3600)), "2024-01-02 03:04:05+00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := groupText(tt.in)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := groupText(time.Time{})
	assert.False(t, ok, "zero time is NULL")
}
