// Package memory is an in-process realtime backbone on a watermill GoChannel.
// Messages sent to a room's send destination are stamped and relayed to the
// room topic, the way the chat server echoes them.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/realtime"
)

const frameBuffer = 64

var errConnClosed = errors.New("memory: connection closed")

// Option configures a Backbone.
type Option func(*Backbone)

// WithClock sets the clock used to stamp relayed messages.
func WithClock(now func() time.Time) Option {
	return func(b *Backbone) { b.now = now }
}

// Backbone relays messages between connections of one process.
type Backbone struct {
	pubsub *gochannel.GoChannel
	now    func() time.Time
	log    *zerolog.Logger
}

// New creates a loopback backbone.
func New(logger *zerolog.Logger, opts ...Option) *Backbone {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	b := &Backbone{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: frameBuffer,
			// Keeps per-topic delivery in publish order.
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
		now: time.Now,
		log: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect implements realtime.Backbone.
func (b *Backbone) Connect(ctx context.Context) (realtime.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	connCtx, cancel := context.WithCancel(context.Background())
	return &conn{backbone: b, ctx: connCtx, cancel: cancel}, nil
}

// Publish delivers body to every subscriber of destination.
func (b *Backbone) Publish(destination string, body []byte) error {
	return b.pubsub.Publish(destination, message.NewMessage(watermill.NewUUID(), body))
}

// Close shuts the backbone down and ends every subscription.
func (b *Backbone) Close() error {
	return b.pubsub.Close()
}

// relay turns a send body into the room record subscribers see.
func (b *Backbone) relay(roomID string, body []byte) error {
	var in proto.SendBody
	if err := json.Unmarshal(body, &in); err != nil {
		return fmt.Errorf("memory: decode send body: %w", err)
	}
	out, err := json.Marshal(proto.MessageRecord{
		Sender:    in.Sender,
		Content:   in.Content,
		Timestamp: proto.Timestamp{Time: b.now().UTC()},
		OriginID:  in.OriginID,
		RoomID:    roomID,
	})
	if err != nil {
		return err
	}
	b.log.Debug().Str("room", roomID).Str("sender", in.Sender).Msg("relaying message")
	return b.Publish(proto.RoomTopic(roomID), out)
}

type conn struct {
	backbone *Backbone
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (c *conn) Subscribe(destination string) (realtime.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errConnClosed
	}

	subCtx, cancel := context.WithCancel(c.ctx)
	msgs, err := c.backbone.pubsub.Subscribe(subCtx, destination)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("memory: subscribe %s: %w", destination, err)
	}
	sub := &subscription{
		frames: make(chan realtime.Frame, frameBuffer),
		cancel: cancel,
	}
	go sub.forward(msgs)
	return sub, nil
}

func (c *conn) Send(destination string, body []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errConnClosed
	}

	if roomID, ok := strings.CutPrefix(destination, proto.SendPrefix); ok {
		return c.backbone.relay(roomID, body)
	}
	return c.backbone.Publish(destination, body)
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	return nil
}

type subscription struct {
	frames chan realtime.Frame
	cancel context.CancelFunc
}

func (s *subscription) forward(msgs <-chan *message.Message) {
	defer close(s.frames)
	for msg := range msgs {
		s.frames <- realtime.Frame{Body: msg.Payload}
		msg.Ack()
	}
}

func (s *subscription) Frames() <-chan realtime.Frame { return s.frames }

func (s *subscription) Unsubscribe() error {
	s.cancel()
	return nil
}
