package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIDIsUUID(t *testing.T) {
	if _, err := uuid.Parse(NewID()); err != nil {
		t.Fatalf("expected uuid: %v", err)
	}
}

func TestNewShortIDAlphabet(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id := NewShortID()
		if len(id) != 16 {
			t.Fatalf("unexpected length %d for %q", len(id), id)
		}
		if strings.Trim(id, shortIDAlphabet) != "" {
			t.Fatalf("unexpected characters in %q", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != 50 {
		t.Fatalf("expected unique ids")
	}
}
