// Package apitest provides an in-process fake of the chat backend REST API.
package apitest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/roomchat/internal/proto"
)

// Backend mimics the chat backend's REST API. Room ids are canonicalized
// to lower case, the way a case-insensitive directory would.
type Backend struct {
	mu       sync.Mutex
	rooms    map[string]struct{}
	messages map[string][]proto.MessageRecord
	hits     atomic.Int64
	fail     atomic.Bool
}

// NewBackend starts the fake on an httptest server closed with the test.
func NewBackend(t testing.TB) (*Backend, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fb := &Backend{
		rooms:    make(map[string]struct{}),
		messages: make(map[string][]proto.MessageRecord),
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		fb.hits.Add(1)
		if fb.fail.Load() {
			c.String(http.StatusInternalServerError, "database unavailable")
			c.Abort()
			return
		}
		c.Next()
	})
	r.POST("/api/v1/rooms", fb.createRoom)
	r.GET("/api/v1/rooms/:roomId", fb.getRoom)
	r.GET("/api/v1/rooms/:roomId/messages", fb.listMessages)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return fb, ts
}

// Hits counts requests served.
func (fb *Backend) Hits() int64 {
	return fb.hits.Load()
}

// SetFailing makes every request answer 500.
func (fb *Backend) SetFailing(fail bool) {
	fb.fail.Store(fail)
}

// AddMessages creates roomID if needed and appends msgs to its history.
func (fb *Backend) AddMessages(roomID string, msgs ...proto.MessageRecord) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	id := strings.ToLower(roomID)
	fb.rooms[id] = struct{}{}
	fb.messages[id] = append(fb.messages[id], msgs...)
}

func (fb *Backend) createRoom(c *gin.Context) {
	var req proto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomID == "" {
		c.String(http.StatusBadRequest, "invalid request body")
		return
	}
	id := strings.ToLower(req.RoomID)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if _, exists := fb.rooms[id]; exists {
		c.String(http.StatusBadRequest, "Room already exists!")
		return
	}
	fb.rooms[id] = struct{}{}
	c.JSON(http.StatusCreated, gin.H{"id": "65f0c0ffee", "roomId": id, "messages": []any{}})
}

func (fb *Backend) getRoom(c *gin.Context) {
	id := strings.ToLower(c.Param("roomId"))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if _, exists := fb.rooms[id]; !exists {
		c.String(http.StatusNotFound, "Room not found!!")
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": id})
}

func (fb *Backend) listMessages(c *gin.Context) {
	id := strings.ToLower(c.Param("roomId"))
	page := c.DefaultQuery("page", "0")
	size := c.DefaultQuery("size", "20")

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if _, exists := fb.rooms[id]; !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	p, err := strconv.Atoi(page)
	if err != nil {
		c.String(http.StatusBadRequest, "bad page")
		return
	}
	s, err := strconv.Atoi(size)
	if err != nil {
		c.String(http.StatusBadRequest, "bad size")
		return
	}

	all := fb.messages[id]
	start := p * s
	if start > len(all) {
		start = len(all)
	}
	end := start + s
	if end > len(all) {
		end = len(all)
	}
	c.JSON(http.StatusOK, all[start:end])
}
