package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roomchat/internal/store"
)

// Schema is applied by New.
const Schema = `
CREATE TABLE IF NOT EXISTS known_rooms (
	canonical_id   TEXT PRIMARY KEY,
	display_id     TEXT NOT NULL,
	user_name      TEXT NOT NULL DEFAULT '',
	last_joined_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS known_rooms_last_joined ON known_rooms (last_joined_at DESC);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath, creating its directory and schema.
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup opens the database and runs setup before first use.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single connection; also keeps one :memory: database per store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RememberRoom upserts a known room.
func (s *SQLiteStore) RememberRoom(ctx context.Context, room store.KnownRoom) error {
	if room.CanonicalID == "" {
		return errors.New("remember room: canonical id is required")
	}
	if room.LastJoinedAt.IsZero() {
		room.LastJoinedAt = time.Now()
	}
	query := `
		INSERT INTO known_rooms (canonical_id, display_id, user_name, last_joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (canonical_id) DO UPDATE SET
			display_id = excluded.display_id,
			user_name = excluded.user_name,
			last_joined_at = excluded.last_joined_at
	`
	_, err := s.db.ExecContext(ctx, query, room.CanonicalID, room.DisplayID, room.User, room.LastJoinedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

// ListRooms lists known rooms, most recent first.
func (s *SQLiteStore) ListRooms(ctx context.Context, limit int) ([]*store.KnownRoom, error) {
	query := `
		SELECT canonical_id, display_id, user_name, last_joined_at
		FROM known_rooms
		ORDER BY last_joined_at DESC, canonical_id
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.KnownRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	return rooms, nil
}

// LastRoom returns the most recently joined room.
func (s *SQLiteStore) LastRoom(ctx context.Context) (*store.KnownRoom, error) {
	query := `
		SELECT canonical_id, display_id, user_name, last_joined_at
		FROM known_rooms
		ORDER BY last_joined_at DESC, canonical_id
		LIMIT 1
	`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("last room: %w", store.ErrNotFound)
		}
		return nil, err
	}
	return room, nil
}

// ForgetRoom deletes a known room.
func (s *SQLiteStore) ForgetRoom(ctx context.Context, canonicalID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM known_rooms WHERE canonical_id = ?`, canonicalID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("room %q: %w", canonicalID, store.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*store.KnownRoom, error) {
	var (
		room   store.KnownRoom
		joined int64
	)
	if err := row.Scan(&room.CanonicalID, &room.DisplayID, &room.User, &joined); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan room: %w", err)
	}
	room.LastJoinedAt = time.UnixMilli(joined)
	return &room, nil
}
