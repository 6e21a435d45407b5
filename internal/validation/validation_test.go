package validation

import (
	"errors"
	"strings"
	"testing"
)

const fallback = "Lomé, Togo"

func TestLocationLabel(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		maxLen int
		want   string
	}{
		{"empty uses fallback", "", 0, fallback},
		{"empty uses fallback with limit", "", 3, fallback},
		{"verbatim", "Kara", 0, "Kara"},
		{"whitespace preserved", "  Sokodé ", 0, "  Sokodé "},
		{"whitespace only kept", "   ", 0, "   "},
		{"any text accepted", "Atakpamé; <b>x</b>", 0, "Atakpamé; <b>x</b>"},
		{"at limit in runes", "Lomé", 4, "Lomé"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LocationLabel(tc.raw, fallback, tc.maxLen)
			if err != nil {
				t.Fatalf("LocationLabel() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("LocationLabel() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocationLabel_TooLong(t *testing.T) {
	_, err := LocationLabel(strings.Repeat("é", 11), fallback, 10)
	if !errors.Is(err, ErrLocationTooLong) {
		t.Errorf("error = %v, want ErrLocationTooLong", err)
	}
}

func TestLocationLabel_NoLimit(t *testing.T) {
	long := strings.Repeat("a", 5000)
	got, err := LocationLabel(long, fallback, 0)
	if err != nil || got != long {
		t.Errorf("LocationLabel() with maxLen 0 should accept any length, err = %v", err)
	}
}
