package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

// ResolveRequest is what the user supplies to create or join a room.
type ResolveRequest struct {
	RoomID string `validate:"required"`
	User   string `validate:"required"`
}

// Directory resolves user-supplied room ids into canonical rooms.
type Directory struct {
	client   *Client
	validate *validator.Validate
	log      *zerolog.Logger
}

// NewDirectory creates a directory backed by client.
func NewDirectory(client *Client) *Directory {
	return &Directory{
		client:   client,
		validate: validator.New(),
		log:      client.log,
	}
}

// CreateRoom asks the directory to create requestedID.
// POST /api/v1/rooms
func (d *Directory) CreateRoom(ctx context.Context, requestedID, user string) (core.Room, error) {
	req, err := d.check(requestedID, user)
	if err != nil {
		return core.Room{}, err
	}

	status, body, err := d.client.do(ctx, http.MethodPost, "/api/v1/rooms", proto.CreateRoomRequest{RoomID: req.RoomID})
	if err != nil {
		return core.Room{}, fmt.Errorf("create room: %w", err)
	}

	switch {
	case isSuccess(status):
		return d.decodeRoom(req.RoomID, body)
	case isClientError(status):
		msg := errorText(body, "Room already exists or error creating room")
		d.log.Debug().Str("room", req.RoomID).Int("status", status).Str("error", msg).Msg("create room rejected")
		return core.Room{}, core.NewError(core.ErrCodeAlreadyExists, msg, nil)
	default:
		return core.Room{}, core.NewError(core.ErrCodeFetchFailed, errorText(body, fmt.Sprintf("create room: server returned %d", status)), nil)
	}
}

// JoinRoom looks up an existing room.
// GET /api/v1/rooms/{roomId}
func (d *Directory) JoinRoom(ctx context.Context, requestedID, user string) (core.Room, error) {
	req, err := d.check(requestedID, user)
	if err != nil {
		return core.Room{}, err
	}

	status, body, err := d.client.do(ctx, http.MethodGet, "/api/v1/rooms/"+url.PathEscape(req.RoomID), nil)
	if err != nil {
		return core.Room{}, fmt.Errorf("join room: %w", err)
	}

	switch {
	case isSuccess(status):
		return d.decodeRoom(req.RoomID, body)
	case isClientError(status):
		msg := errorText(body, "Error in joining room")
		d.log.Debug().Str("room", req.RoomID).Int("status", status).Str("error", msg).Msg("join room rejected")
		return core.Room{}, core.NewError(core.ErrCodeNotFound, msg, nil)
	default:
		return core.Room{}, core.NewError(core.ErrCodeFetchFailed, errorText(body, fmt.Sprintf("join room: server returned %d", status)), nil)
	}
}

func (d *Directory) check(requestedID, user string) (ResolveRequest, error) {
	req := ResolveRequest{
		RoomID: strings.TrimSpace(requestedID),
		User:   strings.TrimSpace(user),
	}
	if err := d.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return req, core.NewError(core.ErrCodeInvalidInput, "Invalid Input !!", fmt.Errorf("%s is required", strings.ToLower(verrs[0].Field())))
		}
		return req, core.NewError(core.ErrCodeInvalidInput, "Invalid Input !!", err)
	}
	return req, nil
}

func (d *Directory) decodeRoom(requestedID string, body []byte) (core.Room, error) {
	var rec proto.RoomRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return core.Room{}, core.NewError(core.ErrCodeFetchFailed, "decode room record", err)
	}
	if rec.RoomID == "" {
		return core.Room{}, core.NewError(core.ErrCodeFetchFailed, "directory returned a room without roomId", nil)
	}
	return core.Room{CanonicalID: rec.RoomID, DisplayID: requestedID}, nil
}
