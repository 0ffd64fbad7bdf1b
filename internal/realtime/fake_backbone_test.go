package realtime

import (
	"context"
	"errors"
	"sync"
)

// fakeBackbone is a scriptable Backbone for state machine tests.
type fakeBackbone struct {
	mu       sync.Mutex
	err      error
	block    bool
	conns    []*fakeConn
	// subErr, when set, makes every new subscription start out failed.
	subErr   error
	dialed   chan struct{}
	connects int
}

func newFakeBackbone() *fakeBackbone {
	return &fakeBackbone{dialed: make(chan struct{}, 8)}
}

func (b *fakeBackbone) Connect(ctx context.Context) (Conn, error) {
	b.mu.Lock()
	b.connects++
	err, block, subErr := b.err, b.block, b.subErr
	b.mu.Unlock()
	b.dialed <- struct{}{}

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	conn := &fakeConn{failWith: subErr}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()
	return conn, nil
}

func (b *fakeBackbone) lastConn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

type sent struct {
	dest string
	body []byte
}

type fakeConn struct {
	mu       sync.Mutex
	subs     map[string]*fakeSub
	sent     []sent
	closed   int
	failWith error
}

func (c *fakeConn) Subscribe(dest string) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[string]*fakeSub)
	}
	sub := &fakeSub{frames: make(chan Frame, 16)}
	if c.failWith != nil {
		sub.fail(c.failWith)
	}
	c.subs[dest] = sub
	return sub, nil
}

func (c *fakeConn) Send(dest string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed > 0 {
		return errors.New("send on closed connection")
	}
	c.sent = append(c.sent, sent{dest: dest, body: body})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	for _, sub := range c.subs {
		sub.end()
	}
	return nil
}

func (c *fakeConn) sub(dest string) *fakeSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[dest]
}

func (c *fakeConn) sentFrames() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sent...)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeSub struct {
	frames chan Frame
	once   sync.Once
}

func (s *fakeSub) Frames() <-chan Frame { return s.frames }

func (s *fakeSub) Unsubscribe() error {
	s.end()
	return nil
}

func (s *fakeSub) end() {
	s.once.Do(func() { close(s.frames) })
}

func (s *fakeSub) deliver(body string) {
	s.frames <- Frame{Body: []byte(body)}
}

// fail reports a transport error and ends the subscription, as a backbone
// does when the connection is lost.
func (s *fakeSub) fail(err error) {
	s.once.Do(func() {
		s.frames <- Frame{Err: err}
		close(s.frames)
	})
}
