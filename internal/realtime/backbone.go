package realtime

import "context"

// Frame is one message delivered on a subscription. A frame with Err set
// reports that the transport failed; no further frames follow it.
type Frame struct {
	Body []byte
	Err  error
}

// Backbone opens connections to the realtime message transport.
type Backbone interface {
	// Connect dials the transport and completes the protocol handshake.
	// It must return promptly once ctx is done.
	Connect(ctx context.Context) (Conn, error)
}

// Conn is one handshaken backbone connection.
type Conn interface {
	Subscribe(destination string) (Subscription, error)
	Send(destination string, body []byte) error
	// Close ends the connection and every subscription opened on it, closing
	// their Frames channels. It must not wait on the broker indefinitely.
	Close() error
}

// Subscription delivers frames for one destination in backbone order.
// Frames is closed once the subscription ends.
type Subscription interface {
	Frames() <-chan Frame
	Unsubscribe() error
}
