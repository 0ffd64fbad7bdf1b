package session

import (
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/realtime"
)

// EventKind is a notification the session emits to the presentation layer.
type EventKind int

const (
	// EventStateChanged reports a new connection state.
	EventStateChanged EventKind = iota
	// EventTimelineReset replaces the whole timeline after history is merged.
	EventTimelineReset
	// EventMessageAppended adds one live message at the end of the timeline.
	EventMessageAppended
	// EventNotice is a dismissable notification for the user.
	EventNotice
	// EventLeft tells the presentation layer to navigate away.
	EventLeft
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventTimelineReset:
		return "timeline_reset"
	case EventMessageAppended:
		return "message_appended"
	case EventNotice:
		return "notice"
	case EventLeft:
		return "left"
	default:
		return "unknown"
	}
}

// NoticeLevel classifies a notice.
type NoticeLevel int

const (
	NoticeSuccess NoticeLevel = iota
	NoticeError
)

// Event describes what happened in the session.
type Event struct {
	Kind     EventKind
	State    realtime.State
	Message  core.Message
	Messages []core.Message // For EventTimelineReset
	Level    NoticeLevel
	Text     string
	Err      error
}

// commandKind is work queued for the session loop.
type commandKind int

const (
	commandLive commandKind = iota
	commandHistory
	commandOpened
	commandState
	commandDropped
)

type command struct {
	kind     commandKind
	message  core.Message
	messages []core.Message
	state    realtime.State
	err      error
}
