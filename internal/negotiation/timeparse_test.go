package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   float64
		wantOK bool
	}{
		{"minutes with unit", "give me 10 minutes", 600, true},
		{"short min unit", "5 min please", 300, true},
		{"single letter m", "15m", 900, true},
		{"seconds", "90 seconds", 90, true},
		{"hours", "2 hours", 7200, true},
		{"bare number is minutes", "15", 900, true},
		{"bare number in sentence", "ok, 20 then", 1200, true},
		{"fractional hours", "0.5 h", 1800, true},
		{"first mention wins", "10 minutes, actually 20 minutes", 600, true},
		{"colloquial half an hour", "just half an hour", 1800, true},
		{"colloquial couple of minutes", "a couple of minutes?", 120, true},
		{"colloquial few minutes", "a few minutes more", 180, true},
		{"colloquial a bit", "a bit longer", 120, true},
		{"colloquial quick", "one quick look", 60, true},
		{"colloquial before number", "a few minutes, like 50", 180, true},
		{"zero", "0 minutes", 0, false},
		{"negative", "-5 minutes", 0, false},
		{"no number at all", "come on, let me scroll", 0, false},
		{"empty", "", 0, false},
		{"whitespace only", "   ", 0, false},
		{"rejection no", "no", 0, false},
		{"rejection dont know", "i don't know", 0, false},
		{"rejection stop now", "just stop now", 0, false},
		{"no inside now does not reject", "now give me 5 minutes", 300, true},
		{"case insensitive", "GIVE ME 10 MINUTES", 600, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDuration(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
