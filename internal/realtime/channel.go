package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

// DefaultHandshakeTimeout bounds Open when Options leaves it unset.
const DefaultHandshakeTimeout = 10 * time.Second

var errSubscriptionClosed = errors.New("subscription closed by backbone")

// Handler receives room messages in backbone delivery order.
type Handler func(core.Message)

// Options tunes a Channel.
type Options struct {
	HandshakeTimeout time.Duration
	// OnStateChange is called after every transition, outside the channel lock.
	OnStateChange func(State)
	// OnDrop is called when the transport ends a Connected channel.
	OnDrop func(error)
	// Now stamps live messages that arrive without a timestamp.
	Now func() time.Time
}

// Channel is the realtime connection for exactly one room.
type Channel struct {
	backbone Backbone
	opts     Options
	log      *zerolog.Logger

	mu       sync.Mutex
	state    State
	room     core.Room
	conn     Conn
	cancel   context.CancelFunc
	openDone chan struct{}
	pumpDone chan struct{}
}

// NewChannel creates a disconnected channel over backbone.
func NewChannel(backbone Backbone, opts Options, logger *zerolog.Logger) *Channel {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Channel{
		backbone: backbone,
		opts:     opts,
		log:      logger,
		state:    StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open connects to the backbone and subscribes to room's topic, delivering
// every message to handler. Valid only from StateDisconnected. On failure the
// channel stays Disconnected and a connection_failed error is returned.
func (c *Channel) Open(ctx context.Context, room core.Room, handler Handler) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return core.NewError(core.ErrCodeInvalidState, fmt.Sprintf("open: channel is %s", state), nil)
	}
	openCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	done := make(chan struct{})
	c.state = StateConnecting
	c.room = room
	c.cancel = cancel
	c.openDone = done
	c.mu.Unlock()

	defer close(done)
	defer cancel()
	c.notify(StateConnecting)

	logger := c.log.With().Str("room", room.CanonicalID).Logger()
	logger.Debug().Msg("opening realtime channel")

	conn, err := c.backbone.Connect(openCtx)
	if err == nil {
		var sub Subscription
		sub, err = conn.Subscribe(proto.RoomTopic(room.CanonicalID))
		if err != nil {
			_ = conn.Close()
		} else if pumpDone, ok := c.commit(conn); ok {
			logger.Info().Msg("realtime channel connected")
			c.notify(StateConnected)
			// The pump starts only after Connected is reported, so a drop is
			// always observed after it.
			go c.pump(sub, handler, pumpDone)
			return nil
		} else {
			// Close ran while the handshake was in flight.
			_ = conn.Close()
			err = context.Canceled
		}
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.cancel = nil
	c.mu.Unlock()
	c.notify(StateDisconnected)

	msg := fmt.Sprintf("connection failed: %v", err)
	if errors.Is(openCtx.Err(), context.DeadlineExceeded) {
		msg = fmt.Sprintf("connection failed: handshake timed out after %s", c.opts.HandshakeTimeout)
	}
	logger.Warn().Err(err).Msg("realtime channel open failed")
	return core.NewError(core.ErrCodeConnectionFailed, msg, err)
}

// commit installs an established connection unless Close intervened. The
// caller must start the pump on the returned channel.
func (c *Channel) commit(conn Conn) (chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return nil, false
	}
	c.conn = conn
	c.cancel = nil
	c.pumpDone = make(chan struct{})
	c.state = StateConnected
	return c.pumpDone, true
}

func (c *Channel) pump(sub Subscription, handler Handler, done chan struct{}) {
	defer close(done)

	for frame := range sub.Frames() {
		if frame.Err != nil {
			c.drop(frame.Err)
			return
		}

		var rec proto.MessageRecord
		if err := json.Unmarshal(frame.Body, &rec); err != nil {
			c.log.Warn().Err(err).Msg("discarding undecodable room message")
			continue
		}
		msg := rec.ToCore()
		if msg.Timestamp.IsZero() {
			msg.Timestamp = c.opts.Now()
		}
		handler(msg)
	}
	c.drop(errSubscriptionClosed)
}

// drop tears down a Connected channel whose transport went away.
func (c *Channel) drop(cause error) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnecting
	conn := c.conn
	c.mu.Unlock()
	c.notify(StateDisconnecting)

	if err := conn.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close dropped connection")
	}

	c.mu.Lock()
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	c.notify(StateDisconnected)

	c.log.Warn().Err(cause).Msg("realtime channel dropped")
	if c.opts.OnDrop != nil {
		c.opts.OnDrop(core.NewError(core.ErrCodeConnectionFailed, fmt.Sprintf("connection lost: %v", cause), cause))
	}
}

// Publish sends msg to room's send destination. It is fire-and-forget: the
// message is only seen locally once the backbone echoes it back. Outside
// StateConnected it returns a publish_ignored error and sends nothing.
func (c *Channel) Publish(room core.Room, msg core.Message) error {
	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		return core.NewError(core.ErrCodePublishIgnored, fmt.Sprintf("publish ignored: channel is %s", state), nil)
	}
	if room.CanonicalID != c.room.CanonicalID {
		c.mu.Unlock()
		return core.NewError(core.ErrCodeInvalidState, fmt.Sprintf("publish: channel is bound to room %q", c.room.CanonicalID), nil)
	}
	conn := c.conn
	c.mu.Unlock()

	body, err := json.Marshal(proto.SendBody{
		Sender:   msg.Sender,
		Content:  msg.Content,
		OriginID: msg.OriginID,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := conn.Send(proto.SendDestination(room.CanonicalID), body); err != nil {
		return core.NewError(core.ErrCodeConnectionFailed, fmt.Sprintf("publish: %v", err), err)
	}
	c.log.Debug().Str("room", room.CanonicalID).Str("origin_id", msg.OriginID).Msg("message published")
	return nil
}

// Close tears down the transport, which ends the subscription, and returns
// once the channel is Disconnected. Closing a Disconnected channel is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.state = StateDisconnecting
		cancel, openDone := c.cancel, c.openDone
		c.mu.Unlock()
		c.notify(StateDisconnecting)
		if cancel != nil {
			cancel()
		}
		<-openDone
		return nil
	case StateDisconnecting:
		openDone, pumpDone := c.openDone, c.pumpDone
		c.mu.Unlock()
		c.wait(openDone)
		c.wait(pumpDone)
		return nil
	}

	c.state = StateDisconnecting
	conn, pumpDone := c.conn, c.pumpDone
	room := c.room
	c.mu.Unlock()
	c.notify(StateDisconnecting)

	// Closing the connection ends the subscription; no separate UNSUBSCRIBE
	// round trip is awaited.
	if err := conn.Close(); err != nil {
		c.log.Debug().Err(err).Str("room", room.CanonicalID).Msg("close connection")
	}
	<-pumpDone

	c.mu.Lock()
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	c.notify(StateDisconnected)

	c.log.Info().Str("room", room.CanonicalID).Msg("realtime channel closed")
	return nil
}

func (c *Channel) wait(ch chan struct{}) {
	if ch != nil {
		<-ch
	}
}

func (c *Channel) notify(state State) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state)
	}
}
