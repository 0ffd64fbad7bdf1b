package session

import (
	"slices"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
)

func containsMessage(list []core.Message, msg core.Message, tolerance time.Duration) bool {
	for _, m := range list {
		if core.SameMessage(m, msg, tolerance) {
			return true
		}
	}
	return false
}

// mergeHistory builds the timeline from a history page and the live messages
// that arrived before it. Live messages that duplicate a history entry are
// dropped; the rest are ordered by timestamp, history first on ties.
func mergeHistory(history, live []core.Message, tolerance time.Duration) []core.Message {
	merged := make([]core.Message, 0, len(history)+len(live))
	for _, m := range history {
		if !containsMessage(merged, m, tolerance) {
			merged = append(merged, m)
		}
	}
	fromHistory := len(merged)
	for _, m := range live {
		if !containsMessage(merged[:fromHistory], m, tolerance) {
			merged = append(merged, m)
		}
	}
	slices.SortStableFunc(merged, func(a, b core.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return merged
}
