package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// KnownRoom is a room this client has resolved before.
type KnownRoom struct {
	CanonicalID  string
	DisplayID    string
	User         string
	LastJoinedAt time.Time
}

// RoomStore remembers rooms the user created or joined.
type RoomStore interface {
	// RememberRoom inserts the room or refreshes its display id, user and join time.
	RememberRoom(ctx context.Context, room KnownRoom) error

	// ListRooms returns known rooms, most recently joined first. limit <= 0 means all.
	ListRooms(ctx context.Context, limit int) ([]*KnownRoom, error)

	// LastRoom returns the most recently joined room or ErrNotFound.
	LastRoom(ctx context.Context) (*KnownRoom, error)

	// ForgetRoom deletes a known room. Forgetting an unknown room returns ErrNotFound.
	ForgetRoom(ctx context.Context, canonicalID string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore

	// Close closes the underlying database connection.
	Close() error
}
