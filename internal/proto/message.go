package proto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Backbone destinations.
const (
	TopicPrefix = "/topic/room/"
	SendPrefix  = "/app/sendMessage/"
)

// RoomTopic is the destination a client subscribes to for a room.
func RoomTopic(roomID string) string {
	return TopicPrefix + roomID
}

// SendDestination is the destination a client publishes to for a room.
func SendDestination(roomID string) string {
	return SendPrefix + roomID
}

// CreateRoomRequest is the body of POST /api/v1/rooms.
type CreateRoomRequest struct {
	RoomID string `json:"roomId"`
}

// RoomRecord is a room as returned by the directory.
type RoomRecord struct {
	RoomID string `json:"roomId"`
}

// SendBody is published to the send destination.
type SendBody struct {
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	OriginID string `json:"originId,omitempty"`
}

// MessageRecord is a message as delivered by the history API and the room topic.
// Both "timestamp" and "timeStamp" spellings are accepted.
type MessageRecord struct {
	Sender    string
	Content   string
	Timestamp Timestamp
	OriginID  string
	RoomID    string
}

type messageRecordJSON struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
	TimeStamp Timestamp `json:"timeStamp"`
	OriginID  string    `json:"originId,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MessageRecord) UnmarshalJSON(data []byte) error {
	var raw messageRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = raw.TimeStamp
	}
	*m = MessageRecord{
		Sender:    raw.Sender,
		Content:   raw.Content,
		Timestamp: ts,
		OriginID:  raw.OriginID,
		RoomID:    raw.RoomID,
	}
	return nil
}

// MarshalJSON implements json.Marshaler using the "timestamp" spelling.
func (m MessageRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sender    string     `json:"sender"`
		Content   string     `json:"content"`
		Timestamp *Timestamp `json:"timestamp,omitempty"`
		OriginID  string     `json:"originId,omitempty"`
		RoomID    string     `json:"roomId,omitempty"`
	}{
		Sender:    m.Sender,
		Content:   m.Content,
		Timestamp: timestampPtr(m.Timestamp),
		OriginID:  m.OriginID,
		RoomID:    m.RoomID,
	})
}

func timestampPtr(ts Timestamp) *Timestamp {
	if ts.IsZero() {
		return nil
	}
	return &ts
}

// ToCore converts the record into a domain message.
func (m MessageRecord) ToCore() core.Message {
	return core.Message{
		Sender:    m.Sender,
		Content:   m.Content,
		Timestamp: m.Timestamp.Time,
		OriginID:  m.OriginID,
	}
}

// RecordFromCore converts a domain message into its wire record.
func RecordFromCore(msg core.Message, roomID string) MessageRecord {
	return MessageRecord{
		Sender:    msg.Sender,
		Content:   msg.Content,
		Timestamp: Timestamp{Time: msg.Timestamp},
		OriginID:  msg.OriginID,
		RoomID:    roomID,
	}
}

// Timestamp accepts RFC3339 with or without a zone (zone-less values are UTC)
// and epoch milliseconds.
type Timestamp struct {
	time.Time
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}

	if !strings.HasPrefix(s, `"`) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse timestamp %s: %w", s, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(str)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseTimestamp parses the textual timestamp forms servers are known to send.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range zonelessLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
