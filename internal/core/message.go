package core

import "time"

// DefaultDedupTolerance is the timestamp window within which two messages
// with equal sender and content are the same message.
const DefaultDedupTolerance = time.Millisecond

// Message is the domain model for a chat message.
type Message struct {
	Sender    string
	Content   string
	Timestamp time.Time
	// OriginID is set by the sending client; empty for messages that never carried one.
	OriginID string
}

// SameMessage reports whether a and b are the same logical message: matching
// non-empty origin ids, or equal sender and content with timestamps no more
// than tolerance apart.
func SameMessage(a, b Message, tolerance time.Duration) bool {
	if a.OriginID != "" && a.OriginID == b.OriginID {
		return true
	}
	if a.Sender != b.Sender || a.Content != b.Content {
		return false
	}
	diff := a.Timestamp.Sub(b.Timestamp)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
