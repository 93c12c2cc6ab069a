package telegram

import (
	"strings"
	"testing"
)

func TestSplitPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := SplitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := len([]rune(part)); n > MessageLimit {
			t.Fatalf("часть %d длиннее предела: %d", i, n)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданная первая часть")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("неожиданная вторая часть")
	}
}

func TestSplitHardCutWithoutNewlines(t *testing.T) {
	parts := Split(strings.Repeat("é", 25), 10)
	if len(parts) != 3 || len([]rune(parts[2])) != 5 {
		t.Fatalf("ожидали части 10/10/5, получили %d частей", len(parts))
	}
}

func TestSplitShortAndEmpty(t *testing.T) {
	if parts := SplitMessage("  alerte  "); len(parts) != 1 || parts[0] != "alerte" {
		t.Fatalf("неожиданный результат: %q", parts)
	}
	if parts := SplitMessage("\n \n"); parts != nil {
		t.Fatalf("пустой текст должен давать nil, получили %q", parts)
	}
}
