package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 20

// HistoryLoader fetches persisted messages for a room, oldest first.
type HistoryLoader struct {
	client *Client
}

// NewHistoryLoader creates a loader backed by client.
func NewHistoryLoader(client *Client) *HistoryLoader {
	return &HistoryLoader{client: client}
}

// LoadPage returns one page of messages. Pages are 0-indexed.
// GET /api/v1/rooms/{roomId}/messages?page={n}&size={m}
func (h *HistoryLoader) LoadPage(ctx context.Context, room core.Room, page, pageSize int) ([]core.Message, error) {
	if room.CanonicalID == "" {
		return nil, core.NewError(core.ErrCodeInvalidInput, "room is required", nil)
	}
	if page < 0 {
		return nil, core.NewError(core.ErrCodeInvalidInput, fmt.Sprintf("page must be >= 0, got %d", page), nil)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("size", fmt.Sprint(pageSize))
	path := "/api/v1/rooms/" + url.PathEscape(room.CanonicalID) + "/messages?" + q.Encode()

	status, body, err := h.client.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !isSuccess(status) {
		return nil, core.NewError(core.ErrCodeFetchFailed, errorText(body, fmt.Sprintf("load history: server returned %d", status)), nil)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.NewError(core.ErrCodeFetchFailed, "decode history", err)
	}

	// One malformed record costs only that record, not the page.
	messages := make([]core.Message, 0, len(raw))
	for i, item := range raw {
		var rec proto.MessageRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			h.client.log.Warn().Err(err).Str("room", room.CanonicalID).Int("index", i).Msg("skipping undecodable history record")
			continue
		}
		messages = append(messages, rec.ToCore())
	}

	h.client.log.Debug().
		Str("room", room.CanonicalID).
		Int("page", page).
		Int("size", pageSize).
		Int("count", len(messages)).
		Msg("history page loaded")
	return messages, nil
}
