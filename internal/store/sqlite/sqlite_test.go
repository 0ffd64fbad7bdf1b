package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat/internal/store"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRememberAndListRooms(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := []store.KnownRoom{
		{CanonicalID: "abc123", DisplayID: "ABC123", User: "alice", LastJoinedAt: base},
		{CanonicalID: "lobby", DisplayID: "lobby", User: "alice", LastJoinedAt: base.Add(time.Hour)},
		{CanonicalID: "dev", DisplayID: "Dev", User: "bob", LastJoinedAt: base.Add(30 * time.Minute)},
	}
	for _, r := range seed {
		if err := s.RememberRoom(ctx, r); err != nil {
			t.Fatalf("remember %s: %v", r.CanonicalID, err)
		}
	}

	tests := []struct {
		name     string
		limit    int
		expected []string
	}{
		{name: "all", limit: 0, expected: []string{"lobby", "dev", "abc123"}},
		{name: "limited", limit: 2, expected: []string{"lobby", "dev"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms, err := s.ListRooms(ctx, tt.limit)
			if err != nil {
				t.Fatalf("list rooms: %v", err)
			}
			if len(rooms) != len(tt.expected) {
				t.Fatalf("expected %d rooms, got %d", len(tt.expected), len(rooms))
			}
			for i, r := range rooms {
				if r.CanonicalID != tt.expected[i] {
					t.Errorf("room %d: expected %s, got %s", i, tt.expected[i], r.CanonicalID)
				}
			}
		})
	}
}

func TestRememberRoomRefreshes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := s.RememberRoom(ctx, store.KnownRoom{CanonicalID: "abc123", DisplayID: "abc123", User: "alice", LastJoinedAt: base}); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if err := s.RememberRoom(ctx, store.KnownRoom{CanonicalID: "other", DisplayID: "other", User: "alice", LastJoinedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if err := s.RememberRoom(ctx, store.KnownRoom{CanonicalID: "abc123", DisplayID: "ABC123", User: "carol", LastJoinedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("remember again: %v", err)
	}

	last, err := s.LastRoom(ctx)
	if err != nil {
		t.Fatalf("last room: %v", err)
	}
	if last.CanonicalID != "abc123" || last.DisplayID != "ABC123" || last.User != "carol" {
		t.Fatalf("unexpected last room: %+v", last)
	}
	if !last.LastJoinedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected join time %v, got %v", base.Add(time.Hour), last.LastJoinedAt)
	}

	rooms, err := s.ListRooms(ctx, 0)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected upsert to keep 2 rooms, got %d", len(rooms))
	}
}

func TestLastRoomEmpty(t *testing.T) {
	s := newStore(t)
	_, err := s.LastRoom(context.Background())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForgetRoom(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.RememberRoom(ctx, store.KnownRoom{CanonicalID: "abc123", DisplayID: "abc123"}); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if err := s.ForgetRoom(ctx, "abc123"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if err := s.ForgetRoom(ctx, "abc123"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second forget, got %v", err)
	}
	if err := s.RememberRoom(ctx, store.KnownRoom{}); err == nil {
		t.Fatal("expected error for empty canonical id")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rooms.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	if err := s.RememberRoom(context.Background(), store.KnownRoom{CanonicalID: "x", DisplayID: "x"}); err != nil {
		t.Fatalf("remember: %v", err)
	}
}
