package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomchat/internal/api/apitest"
	"github.com/vovakirdan/roomchat/internal/core"
)

func TestCreateThenJoinReturnsSameCanonicalRoom(t *testing.T) {
	_, ts := apitest.NewBackend(t)
	dir := NewDirectory(NewClient(ts.URL, time.Second, nil))
	ctx := context.Background()

	pairs := []struct{ user, room string }{
		{"alice", "abc123"},
		{"bob", "Team-Room"},
		{"carol", "  Spaced  "},
	}

	for _, p := range pairs {
		created, err := dir.CreateRoom(ctx, p.room, p.user)
		require.NoError(t, err, "create %q", p.room)

		joined, err := dir.JoinRoom(ctx, created.CanonicalID, p.user)
		require.NoError(t, err, "join %q", created.CanonicalID)
		assert.Equal(t, created.CanonicalID, joined.CanonicalID)
	}
}

func TestCreateRoomUsesCanonicalID(t *testing.T) {
	_, ts := apitest.NewBackend(t)
	dir := NewDirectory(NewClient(ts.URL, time.Second, nil))

	room, err := dir.CreateRoom(context.Background(), "ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "abc123", room.CanonicalID)
	assert.Equal(t, "ABC123", room.DisplayID)
}

func TestCreateRoomAlreadyExists(t *testing.T) {
	_, ts := apitest.NewBackend(t)
	dir := NewDirectory(NewClient(ts.URL, time.Second, nil))
	ctx := context.Background()

	_, err := dir.CreateRoom(ctx, "abc123", "alice")
	require.NoError(t, err)

	_, err = dir.CreateRoom(ctx, "abc123", "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAlreadyExists), "got %v", err)
	assert.Contains(t, err.Error(), "Room already exists!")
}

func TestJoinRoomNotFound(t *testing.T) {
	_, ts := apitest.NewBackend(t)
	dir := NewDirectory(NewClient(ts.URL, time.Second, nil))

	_, err := dir.JoinRoom(context.Background(), "ghost", "alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
}

func TestResolveRejectsEmptyFieldsBeforeAnyRequest(t *testing.T) {
	fb, ts := apitest.NewBackend(t)
	dir := NewDirectory(NewClient(ts.URL, time.Second, nil))
	ctx := context.Background()

	cases := []struct{ room, user string }{
		{"", "alice"},
		{"abc123", ""},
		{"   ", "alice"},
		{"abc123", "\t"},
	}
	for _, c := range cases {
		_, err := dir.CreateRoom(ctx, c.room, c.user)
		assert.True(t, errors.Is(err, core.ErrInvalidInput), "create %q/%q: %v", c.room, c.user, err)

		_, err = dir.JoinRoom(ctx, c.room, c.user)
		assert.True(t, errors.Is(err, core.ErrInvalidInput), "join %q/%q: %v", c.room, c.user, err)
	}

	assert.Zero(t, fb.Hits(), "validation must happen before any remote call")
}

func TestDirectoryServerErrorIsFetchFailure(t *testing.T) {
	fb, ts := apitest.NewBackend(t)
	fb.SetFailing(true)
	dir := NewDirectory(NewClient(ts.URL, time.Second, nil))

	_, err := dir.JoinRoom(context.Background(), "abc123", "alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransientFetch), "got %v", err)
}

func TestDirectoryUnreachable(t *testing.T) {
	dir := NewDirectory(NewClient("http://127.0.0.1:1", 200*time.Millisecond, nil))

	_, err := dir.CreateRoom(context.Background(), "abc123", "alice")
	require.Error(t, err)
	assert.Equal(t, core.ErrCodeFetchFailed, core.Code(err))
}
