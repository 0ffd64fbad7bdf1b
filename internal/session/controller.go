// Package session runs one chat session: it opens the realtime channel and
// loads history concurrently, merges both into a single timeline and exposes
// send and leave to the presentation layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/realtime"
	"github.com/vovakirdan/roomchat/internal/utils"
)

const (
	inboxSize  = 64
	eventsSize = 1024
)

var errAlreadyRunning = errors.New("session: already running")

// HistorySource loads persisted messages for a room, oldest first.
type HistorySource interface {
	LoadPage(ctx context.Context, room core.Room, page, pageSize int) ([]core.Message, error)
}

// Config describes one session.
type Config struct {
	Room     core.Room
	User     string
	History  HistorySource
	Backbone realtime.Backbone

	PageSize         int
	HandshakeTimeout time.Duration
	// DedupTolerance defaults to core.DefaultDedupTolerance when not positive.
	DedupTolerance time.Duration
	// NewOriginID generates ids for outgoing messages. Defaults to uuids.
	NewOriginID func() string
}

// Controller owns the timeline and connection state of a session. All
// mutation happens on the goroutine running Run; readers get snapshots.
type Controller struct {
	cfg     Config
	log     *zerolog.Logger
	channel *realtime.Channel

	inbox   chan command
	events  chan Event
	leave   chan struct{}
	stopped chan struct{}
	done    chan struct{}

	leaveOnce sync.Once
	started   atomic.Bool

	mu       sync.RWMutex
	state    realtime.State
	timeline []core.Message
}

// New creates a controller for cfg. Nothing happens until Run.
func New(cfg Config, logger *zerolog.Logger) *Controller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.DedupTolerance <= 0 {
		cfg.DedupTolerance = core.DefaultDedupTolerance
	}
	if cfg.NewOriginID == nil {
		cfg.NewOriginID = utils.NewOriginID
	}
	sessionLog := logger.With().Str("room", cfg.Room.CanonicalID).Str("user", cfg.User).Logger()

	c := &Controller{
		cfg:     cfg,
		log:     &sessionLog,
		inbox:   make(chan command, inboxSize),
		events:  make(chan Event, eventsSize),
		leave:   make(chan struct{}),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
		state:   realtime.StateDisconnected,
	}
	c.channel = realtime.NewChannel(cfg.Backbone, realtime.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		OnStateChange: func(s realtime.State) {
			c.post(command{kind: commandState, state: s})
		},
		OnDrop: func(err error) {
			c.post(command{kind: commandDropped, err: err})
		},
	}, &sessionLog)
	return c
}

// Session returns who is chatting where.
func (c *Controller) Session() core.Session {
	return core.Session{Room: c.cfg.Room, User: c.cfg.User}
}

// Events streams presentation events. It is closed when the session ends.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Done is closed once the session has ended and the channel is closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current connection state.
func (c *Controller) State() realtime.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Timeline returns a copy of the ordered, de-duplicated timeline.
func (c *Controller) Timeline() []core.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]core.Message(nil), c.timeline...)
}

// Run starts the session and processes it until Leave is called or ctx is
// done. The realtime channel is closed on every exit path.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		close(c.stopped)
		wg.Wait()
		c.teardown()
	}()

	c.log.Info().Msg("session started")

	wg.Add(2)
	go func() {
		defer wg.Done()
		msgs, err := c.cfg.History.LoadPage(runCtx, c.cfg.Room, 0, c.cfg.PageSize)
		c.post(command{kind: commandHistory, messages: msgs, err: err})
	}()
	go func() {
		defer wg.Done()
		err := c.channel.Open(runCtx, c.cfg.Room, func(msg core.Message) {
			c.post(command{kind: commandLive, message: msg})
		})
		c.post(command{kind: commandOpened, err: err})
	}()

	for {
		select {
		case <-c.leave:
			return nil
		case <-runCtx.Done():
			return ctx.Err()
		case cmd := <-c.inbox:
			c.apply(cmd)
		}
	}
}

// SendMessage publishes content as the session user. The message only shows
// up in the timeline when the backbone echoes it back. Sending while not
// connected is a no-op.
func (c *Controller) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return core.NewError(core.ErrCodeInvalidInput, "message is empty", nil)
	}
	msg := core.Message{
		Sender:   c.cfg.User,
		Content:  content,
		OriginID: c.cfg.NewOriginID(),
	}
	err := c.channel.Publish(c.cfg.Room, msg)
	if errors.Is(err, core.ErrPublishIgnored) {
		c.log.Debug().Msg("send ignored, channel not connected")
		return nil
	}
	return err
}

// Leave ends the session and waits for the channel to close.
func (c *Controller) Leave(ctx context.Context) error {
	c.leaveOnce.Do(func() { close(c.leave) })
	if !c.started.Load() {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues cmd for the loop; it is dropped once the loop has stopped.
func (c *Controller) post(cmd command) {
	select {
	case c.inbox <- cmd:
	case <-c.stopped:
	}
}

func (c *Controller) apply(cmd command) {
	switch cmd.kind {
	case commandState:
		c.mu.Lock()
		c.state = cmd.state
		c.mu.Unlock()
		c.emit(Event{Kind: EventStateChanged, State: cmd.state})

	case commandLive:
		c.appendLive(cmd.message)

	case commandHistory:
		c.resolveHistory(cmd.messages, cmd.err)

	case commandOpened:
		if cmd.err != nil {
			c.notice(NoticeError, cmd.err.Error(), cmd.err)
			return
		}
		c.notice(NoticeSuccess, fmt.Sprintf("Connected to room %s", c.cfg.Room.DisplayID), nil)

	case commandDropped:
		c.notice(NoticeError, cmd.err.Error(), cmd.err)
	}
}

func (c *Controller) appendLive(msg core.Message) {
	c.mu.Lock()
	if containsMessage(c.timeline, msg, c.cfg.DedupTolerance) {
		c.mu.Unlock()
		c.log.Debug().Str("origin_id", msg.OriginID).Msg("dropping duplicate message")
		return
	}
	c.timeline = append(c.timeline, msg)
	c.mu.Unlock()
	c.emit(Event{Kind: EventMessageAppended, Message: msg})
}

func (c *Controller) resolveHistory(history []core.Message, err error) {
	if err != nil {
		c.log.Warn().Err(err).Msg("history load failed")
		c.notice(NoticeError, fmt.Sprintf("Could not load messages: %v", err), err)
		return
	}

	c.mu.Lock()
	c.timeline = mergeHistory(history, c.timeline, c.cfg.DedupTolerance)
	snapshot := append([]core.Message(nil), c.timeline...)
	c.mu.Unlock()

	c.log.Debug().Int("history", len(history)).Int("timeline", len(snapshot)).Msg("history merged")
	c.emit(Event{Kind: EventTimelineReset, Messages: snapshot})
}

func (c *Controller) notice(level NoticeLevel, text string, err error) {
	c.emit(Event{Kind: EventNotice, Level: level, Text: text, Err: err})
}

// emit never blocks the loop; a consumer that stops reading loses events.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Str("event", ev.Kind.String()).Msg("event dropped, slow consumer")
	}
}

// teardown runs after the loop and the start-up goroutines have stopped.
func (c *Controller) teardown() {
	if err := c.channel.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close channel")
	}

	c.mu.Lock()
	changed := c.state != realtime.StateDisconnected
	c.state = realtime.StateDisconnected
	c.timeline = nil
	c.mu.Unlock()

	if changed {
		c.emit(Event{Kind: EventStateChanged, State: realtime.StateDisconnected})
	}
	c.emit(Event{Kind: EventLeft})
	close(c.events)
	close(c.done)
	c.log.Info().Msg("session ended")
}
