package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

var testRoom = core.Room{CanonicalID: "abc123", DisplayID: "ABC123"}

type recorder struct {
	mu     sync.Mutex
	msgs   []core.Message
	states []State
	drops  []error
}

func (r *recorder) handle(msg core.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) options() Options {
	return Options{
		HandshakeTimeout: time.Second,
		OnStateChange: func(s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnDrop: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.drops = append(r.drops, err)
		},
	}
}

func (r *recorder) messages() []core.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Message(nil), r.msgs...)
}

func (r *recorder) transitions() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) dropped() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.drops...)
}

func TestOpenSubscribesAndDelivers(t *testing.T) {
	backbone := newFakeBackbone()
	rec := &recorder{}
	ch := NewChannel(backbone, rec.options(), nil)

	require.Equal(t, StateDisconnected, ch.State())
	require.NoError(t, ch.Open(context.Background(), testRoom, rec.handle))
	require.Equal(t, StateConnected, ch.State())

	sub := backbone.lastConn().sub(proto.RoomTopic("abc123"))
	require.NotNil(t, sub, "expected subscription on room topic")

	sub.deliver(`{"sender":"alice","content":"one","timestamp":"2024-01-01T00:00:00Z"}`)
	sub.deliver(`not json`)
	sub.deliver(`{"sender":"bob","content":"two","timeStamp":"2024-01-01T00:00:01"}`)

	require.Eventually(t, func() bool { return len(rec.messages()) == 2 }, time.Second, 5*time.Millisecond)
	msgs := rec.messages()
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), msgs[1].Timestamp.UTC())

	require.NoError(t, ch.Close())
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnecting, StateDisconnected}, rec.transitions())
}

func TestLiveMessageWithoutTimestampIsStamped(t *testing.T) {
	backbone := newFakeBackbone()
	rec := &recorder{}
	opts := rec.options()
	stamp := time.Date(2024, 5, 5, 5, 5, 5, 0, time.UTC)
	opts.Now = func() time.Time { return stamp }
	ch := NewChannel(backbone, opts, nil)
	require.NoError(t, ch.Open(context.Background(), testRoom, rec.handle))
	defer ch.Close()

	backbone.lastConn().sub(proto.RoomTopic("abc123")).deliver(`{"sender":"alice","content":"hi"}`)
	require.Eventually(t, func() bool { return len(rec.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, stamp, rec.messages()[0].Timestamp)
}

func TestOpenFailureStaysDisconnected(t *testing.T) {
	backbone := newFakeBackbone()
	backbone.err = errors.New("refused")
	rec := &recorder{}
	ch := NewChannel(backbone, rec.options(), nil)

	err := ch.Open(context.Background(), testRoom, rec.handle)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.Equal(t, StateDisconnected, ch.State())
	assert.Equal(t, []State{StateConnecting, StateDisconnected}, rec.transitions())

	// A failed open does not poison the channel.
	backbone.err = nil
	require.NoError(t, ch.Open(context.Background(), testRoom, rec.handle))
	require.NoError(t, ch.Close())
}

func TestOpenHandshakeTimeout(t *testing.T) {
	backbone := newFakeBackbone()
	backbone.block = true
	rec := &recorder{}
	opts := rec.options()
	opts.HandshakeTimeout = 30 * time.Millisecond
	ch := NewChannel(backbone, opts, nil)

	start := time.Now()
	err := ch.Open(context.Background(), testRoom, rec.handle)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestOpenRejectedUnlessDisconnected(t *testing.T) {
	backbone := newFakeBackbone()
	ch := NewChannel(backbone, Options{}, nil)
	require.NoError(t, ch.Open(context.Background(), testRoom, func(core.Message) {}))
	defer ch.Close()

	err := ch.Open(context.Background(), testRoom, func(core.Message) {})
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, 1, backbone.connects)
}

func TestPublishWhileDisconnectedIsIgnored(t *testing.T) {
	backbone := newFakeBackbone()
	ch := NewChannel(backbone, Options{}, nil)

	err := ch.Publish(testRoom, core.Message{Sender: "alice", Content: "hi"})
	assert.ErrorIs(t, err, core.ErrPublishIgnored)
	assert.Equal(t, 0, backbone.connects)
}

func TestPublishSendsBody(t *testing.T) {
	backbone := newFakeBackbone()
	ch := NewChannel(backbone, Options{}, nil)
	require.NoError(t, ch.Open(context.Background(), testRoom, func(core.Message) {}))
	defer ch.Close()

	msg := core.Message{Sender: "alice", Content: "hello", OriginID: "o-1"}
	require.NoError(t, ch.Publish(testRoom, msg))

	frames := backbone.lastConn().sentFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, "/app/sendMessage/abc123", frames[0].dest)

	var body proto.SendBody
	require.NoError(t, json.Unmarshal(frames[0].body, &body))
	assert.Equal(t, proto.SendBody{Sender: "alice", Content: "hello", OriginID: "o-1"}, body)

	err := ch.Publish(core.Room{CanonicalID: "other"}, msg)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestCloseIsIdempotent(t *testing.T) {
	backbone := newFakeBackbone()
	rec := &recorder{}
	ch := NewChannel(backbone, rec.options(), nil)
	require.NoError(t, ch.Open(context.Background(), testRoom, rec.handle))

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, StateDisconnected, ch.State())
	assert.Equal(t, 1, backbone.lastConn().closeCount())
	assert.Empty(t, rec.dropped(), "orderly close must not report a drop")

	err := ch.Publish(testRoom, core.Message{Sender: "alice", Content: "late"})
	assert.ErrorIs(t, err, core.ErrPublishIgnored)
}

func TestCloseNeverOpened(t *testing.T) {
	ch := NewChannel(newFakeBackbone(), Options{}, nil)
	assert.NoError(t, ch.Close())
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestCloseDuringConnecting(t *testing.T) {
	backbone := newFakeBackbone()
	backbone.block = true
	ch := NewChannel(backbone, Options{HandshakeTimeout: 5 * time.Second}, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.Open(context.Background(), testRoom, func(core.Message) {})
	}()
	<-backbone.dialed
	require.Equal(t, StateConnecting, ch.State())

	require.NoError(t, ch.Close())
	assert.Equal(t, StateDisconnected, ch.State())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, core.ErrConnectionFailed)
	case <-time.After(time.Second):
		t.Fatal("open did not return after close")
	}
}

func TestTransportDropReportsConnectionFailed(t *testing.T) {
	backbone := newFakeBackbone()
	rec := &recorder{}
	ch := NewChannel(backbone, rec.options(), nil)
	require.NoError(t, ch.Open(context.Background(), testRoom, rec.handle))

	backbone.lastConn().sub(proto.RoomTopic("abc123")).fail(errors.New("socket reset"))

	require.Eventually(t, func() bool { return len(rec.dropped()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rec.dropped()[0], core.ErrConnectionFailed)
	assert.Equal(t, StateDisconnected, ch.State())

	err := ch.Publish(testRoom, core.Message{Sender: "alice", Content: "hi"})
	assert.ErrorIs(t, err, core.ErrPublishIgnored)
	assert.NoError(t, ch.Close())
}

func TestDropIsReportedAfterConnected(t *testing.T) {
	backbone := newFakeBackbone()
	backbone.subErr = errors.New("socket reset")
	rec := &recorder{}
	opts := rec.options()
	record := opts.OnStateChange
	opts.OnStateChange = func(s State) {
		record(s)
		if s == StateConnected {
			// Widen the window in which an early drop could overtake Connected.
			time.Sleep(20 * time.Millisecond)
		}
	}
	ch := NewChannel(backbone, opts, nil)
	require.NoError(t, ch.Open(context.Background(), testRoom, rec.handle))

	require.Eventually(t, func() bool { return len(rec.dropped()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnecting, StateDisconnected}, rec.transitions())
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnecting", StateDisconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
