package utils

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewOriginIDIsUniqueUUID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id := NewOriginID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("expected uuid, got %q: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate origin id %q", id)
		}
		seen[id] = struct{}{}
	}
}
