// Package stomp is the realtime backbone used by the chat server: STOMP
// frames carried over a websocket.
package stomp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	gostomp "github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/realtime"
)

const (
	contentTypeJSON = "application/json"
	frameBuffer     = 64
	readLimit       = 1 << 20

	// DefaultTeardownTimeout bounds waiting for the DISCONNECT receipt.
	DefaultTeardownTimeout = 2 * time.Second
)

var subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// Config describes the broker endpoint.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/chat/websocket.
	URL string
	// HeartBeat is the requested send and receive heart-beat. Zero disables it.
	HeartBeat time.Duration
	// TeardownTimeout bounds waiting for the DISCONNECT receipt.
	TeardownTimeout time.Duration
}

// Backbone dials STOMP sessions over websockets.
type Backbone struct {
	cfg Config
	log *zerolog.Logger
}

// New creates a STOMP backbone for cfg.
func New(cfg Config, logger *zerolog.Logger) *Backbone {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}
	return &Backbone{cfg: cfg, log: logger}
}

// Connect opens the websocket and performs the STOMP CONNECT handshake.
// The handshake is abandoned as soon as ctx is done.
func (b *Backbone) Connect(ctx context.Context) (realtime.Conn, error) {
	ws, _, err := websocket.Dial(ctx, b.cfg.URL, &websocket.DialOptions{
		Subprotocols: subprotocols,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.cfg.URL, err)
	}
	ws.SetReadLimit(readLimit)
	netConn := websocket.NetConn(context.Background(), ws, websocket.MessageText)

	type result struct {
		conn *gostomp.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := gostomp.Connect(netConn, b.connectOptions()...)
		done <- result{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			_ = netConn.Close()
			return nil, fmt.Errorf("stomp handshake: %w", r.err)
		}
		b.log.Debug().Str("url", b.cfg.URL).Str("subprotocol", ws.Subprotocol()).Msg("stomp session established")
		return &conn{stomp: r.conn, net: netConn, log: b.log}, nil
	case <-ctx.Done():
		// Closing the socket unblocks the pending CONNECT.
		_ = netConn.Close()
		return nil, fmt.Errorf("stomp handshake: %w", ctx.Err())
	}
}

func (b *Backbone) connectOptions() []func(*gostomp.Conn) error {
	opts := []func(*gostomp.Conn) error{
		gostomp.ConnOpt.HeartBeat(b.cfg.HeartBeat, b.cfg.HeartBeat),
		gostomp.ConnOpt.DisconnectReceiptTimeout(b.cfg.TeardownTimeout),
	}
	if u, err := url.Parse(b.cfg.URL); err == nil && u.Hostname() != "" {
		opts = append(opts, gostomp.ConnOpt.Host(u.Hostname()))
	}
	return opts
}

type conn struct {
	stomp *gostomp.Conn
	net   net.Conn
	log   *zerolog.Logger

	closeOnce sync.Once
}

func (c *conn) Subscribe(destination string) (realtime.Subscription, error) {
	sub, err := c.stomp.Subscribe(destination, gostomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	s := &subscription{
		sub:    sub,
		frames: make(chan realtime.Frame, frameBuffer),
		log:    c.log,
	}
	go s.forward()
	return s, nil
}

func (c *conn) Send(destination string, body []byte) error {
	if err := c.stomp.Send(destination, contentTypeJSON, body); err != nil {
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

// Close sends DISCONNECT and drops the socket once the broker receipts it or
// the teardown timeout passes. Active subscriptions end with the connection.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if derr := c.stomp.Disconnect(); derr != nil {
			c.log.Debug().Err(derr).Msg("stomp disconnect, forcing close")
		}
		if cerr := c.net.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	return err
}

type subscription struct {
	sub    *gostomp.Subscription
	frames chan realtime.Frame
	log    *zerolog.Logger
}

func (s *subscription) forward() {
	defer close(s.frames)
	for msg := range s.sub.C {
		if msg.Err != nil {
			s.frames <- realtime.Frame{Err: msg.Err}
			return
		}
		s.frames <- realtime.Frame{Body: msg.Body}
	}
}

func (s *subscription) Frames() <-chan realtime.Frame { return s.frames }

// Unsubscribe sends UNSUBSCRIBE without waiting for its receipt. Brokers are
// not required to answer it; the pending wait ends on the receipt or when the
// connection closes.
func (s *subscription) Unsubscribe() error {
	if !s.sub.Active() {
		return nil
	}
	go func() {
		if err := s.sub.Unsubscribe(); err != nil {
			s.log.Debug().Err(err).Str("destination", s.sub.Destination()).Msg("stomp unsubscribe")
		}
	}()
	return nil
}
