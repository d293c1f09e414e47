package ident

import (
	"strings"
	"testing"
)

func TestNewFormat(t *testing.T) {
	id := New("wm")
	if !strings.HasPrefix(id, "wm_") {
		t.Fatalf("id %q missing prefix", id)
	}
	suffix := strings.TrimPrefix(id, "wm_")
	if len(suffix) != 8 {
		t.Fatalf("suffix %q has length %d, want 8", suffix, len(suffix))
	}
	for _, r := range suffix {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("suffix %q contains non-hex rune %q", suffix, r)
		}
	}
}

func TestNewWideFormat(t *testing.T) {
	id := NewWide("se")
	suffix := strings.TrimPrefix(id, "se_")
	if len(suffix) != 16 {
		t.Fatalf("suffix %q has length %d, want 16", suffix, len(suffix))
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New("wm")
		if seen[id] {
			t.Fatalf("duplicate id %q after %d iterations", id, i)
		}
		seen[id] = true
	}
}
