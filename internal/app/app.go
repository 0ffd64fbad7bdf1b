package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/api"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/realtime"
	"github.com/vovakirdan/roomchat/internal/realtime/memory"
	"github.com/vovakirdan/roomchat/internal/realtime/stomp"
	"github.com/vovakirdan/roomchat/internal/session"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
)

// Mode selects how a room id is resolved.
type Mode int

const (
	ModeJoin Mode = iota
	ModeCreate
)

// App wires the directory, history, backbone and local store into sessions.
type App struct {
	cfg       config.Config
	directory *api.Directory
	history   *api.HistoryLoader
	backbone  realtime.Backbone
	store     store.Store
	closers   []func() error
	log       *zerolog.Logger
}

// New constructs the application with provided configuration.
// A store that fails to open is logged and left out.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	client := api.NewClient(cfg.ServerURL, cfg.RequestTimeout, logger)
	a := &App{
		cfg:       *cfg,
		directory: api.NewDirectory(client),
		history:   api.NewHistoryLoader(client),
		log:       logger,
	}

	switch cfg.Backbone {
	case config.BackboneMemory:
		b := memory.New(logger)
		a.backbone = b
		a.closers = append(a.closers, b.Close)
	case config.BackboneStomp, "":
		a.backbone = stomp.New(stomp.Config{
			URL:       cfg.BackboneURL,
			HeartBeat: cfg.HeartBeat,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown backbone %q", cfg.Backbone)
	}

	if cfg.StorePath != "" {
		st, err := sqlite.New(cfg.StorePath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.StorePath).Msg("known rooms store unavailable")
		} else {
			logger.Debug().Str("path", cfg.StorePath).Msg("known rooms store opened")
			a.store = st
			a.closers = append(a.closers, st.Close)
		}
	}

	return a, nil
}

// Directory returns the room directory client.
func (a *App) Directory() *api.Directory {
	return a.directory
}

// History returns the history loader.
func (a *App) History() *api.HistoryLoader {
	return a.history
}

// Store returns the known rooms store, or nil when it could not be opened.
func (a *App) Store() store.Store {
	return a.store
}

// Resolve creates or joins roomID as user and records the room locally.
func (a *App) Resolve(ctx context.Context, mode Mode, roomID, user string) (core.Room, error) {
	var (
		room core.Room
		err  error
	)
	if mode == ModeCreate {
		room, err = a.directory.CreateRoom(ctx, roomID, user)
	} else {
		room, err = a.directory.JoinRoom(ctx, roomID, user)
	}
	if err != nil {
		return core.Room{}, err
	}

	a.remember(ctx, room, user)
	return room, nil
}

// LastRoom returns the most recently joined room from the local store.
func (a *App) LastRoom(ctx context.Context) (*store.KnownRoom, error) {
	if a.store == nil {
		return nil, errors.New("known rooms store unavailable")
	}
	return a.store.LastRoom(ctx)
}

// NewSession builds a session controller for room.
func (a *App) NewSession(room core.Room, user string) *session.Controller {
	return session.New(session.Config{
		Room:             room,
		User:             user,
		History:          a.history,
		Backbone:         a.backbone,
		PageSize:         a.cfg.PageSize,
		HandshakeTimeout: a.cfg.HandshakeTimeout,
		DedupTolerance:   a.cfg.DedupTolerance,
	}, a.log)
}

// Close releases the store and the backbone.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) remember(ctx context.Context, room core.Room, user string) {
	if a.store == nil {
		return
	}
	err := a.store.RememberRoom(ctx, store.KnownRoom{
		CanonicalID:  room.CanonicalID,
		DisplayID:    room.DisplayID,
		User:         user,
		LastJoinedAt: time.Now(),
	})
	if err != nil {
		a.log.Warn().Err(err).Str("room", room.CanonicalID).Msg("failed to remember room")
	}
}
