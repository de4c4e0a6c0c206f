package logger

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		body string
		max  int
		want string
	}{
		{"unlimited", "héllo", 0, "héllo"},
		{"fits", "héllo", 6, "héllo"},
		{"ascii cut", "hello", 3, "hel... (truncated)"},
		{"cut inside rune backs off", "héllo", 2, "h... (truncated)"},
		{"cut after rune", "héllo", 3, "hé... (truncated)"},
		{"first rune too long", "日本", 2, "... (truncated)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.body, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
