package chunk

import (
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"empty input", "", 10, nil},
		{"shorter than limit", "abc", 10, []string{"abc"}},
		{"exact limit", "abcd", 4, []string{"abcd"}},
		{"one over limit", "abcde", 4, []string{"abcd", "e"}},
		{"several pieces", "aaaabbbbcc", 4, []string{"aaaa", "bbbb", "cc"}},
		{"cyrillic counted as runes", "привет", 3, []string{"при", "вет"}},
		{"non-positive limit", "abc", 0, []string{"abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("Split(%q, %d) = %d pieces, want %d", tt.text, tt.limit, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("piece %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitCoversInput(t *testing.T) {
	text := strings.Repeat("Выручка выросла, но маржа просела из-за логистики. ", 300)
	limit := TelegramMessageLimit

	parts := Split(text, limit)

	runeLen := len([]rune(text))
	wantParts := (runeLen + limit - 1) / limit
	if len(parts) != wantParts {
		t.Fatalf("got %d pieces, want %d for %d runes at limit %d", len(parts), wantParts, runeLen, limit)
	}
	for i, p := range parts {
		if n := len([]rune(p)); n > limit {
			t.Errorf("piece %d is %d runes, exceeds limit %d", i, n, limit)
		}
	}
	if strings.Join(parts, "") != text {
		t.Error("concatenated pieces do not reproduce the input")
	}
}
