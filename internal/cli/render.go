package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/session"
)

var senderColors = []string{
	"\033[36m", // Cyan
	"\033[32m", // Green
	"\033[33m", // Yellow
	"\033[35m", // Magenta
	"\033[34m", // Blue
	"\033[31m", // Red
	"\033[96m", // Bright Cyan
	"\033[92m", // Bright Green
}

const ansiReset = "\033[0m"

// senderColor returns a deterministic ANSI color for a sender name.
func senderColor(name string) string {
	var h uint32
	for _, c := range name {
		h = h*31 + uint32(c)
	}
	return senderColors[h%uint32(len(senderColors))]
}

func formatPlain(msg core.Message) string {
	ts := msg.Timestamp.Local().Format("15:04:05")
	return fmt.Sprintf("[%s] %s: %s", ts, msg.Sender, msg.Content)
}

// formatColor wraps formatPlain with ANSI color on the sender name.
func formatColor(msg core.Message) string {
	plain := formatPlain(msg)
	return strings.Replace(plain, "] "+msg.Sender, "] "+senderColor(msg.Sender)+msg.Sender+ansiReset, 1)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// view prints session events: messages to out, notices to errOut.
type view struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	color  bool
}

func newView(out, errOut io.Writer) *view {
	return &view{out: out, errOut: errOut, color: isTerminal(out)}
}

func (v *view) message(msg core.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.color {
		fmt.Fprintln(v.out, formatColor(msg))
		return
	}
	fmt.Fprintln(v.out, formatPlain(msg))
}

func (v *view) notice(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.errOut, "* "+format+"\n", args...)
}

func (v *view) render(room core.Room, ev session.Event) {
	switch ev.Kind {
	case session.EventTimelineReset:
		v.notice("%d messages in %s", len(ev.Messages), room.DisplayID)
		for _, msg := range ev.Messages {
			v.message(msg)
		}
	case session.EventMessageAppended:
		v.message(ev.Message)
	case session.EventNotice:
		if ev.Level == session.NoticeError {
			v.notice("error: %s", ev.Text)
			return
		}
		v.notice("%s", ev.Text)
	case session.EventLeft:
		v.notice("left room %s", room.DisplayID)
	}
}
