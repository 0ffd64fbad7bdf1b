package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/app"
	"github.com/vovakirdan/roomchat/internal/realtime"
)

const (
	leaveCommand = "/leave"
	leaveTimeout = 5 * time.Second
)

func newCreateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "create <room>",
		Short: "Create a room and start chatting in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.chat(cmd, app.ModeCreate, args[0], rt.cfg.User)
		},
	}
}

func newJoinCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "join [room]",
		Short: "Join an existing room (defaults to the last room joined)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := rt.cfg.User
			if len(args) == 1 {
				return rt.chat(cmd, app.ModeJoin, args[0], user)
			}

			last, err := rt.app.LastRoom(cmd.Context())
			if err != nil {
				return fmt.Errorf("no room given and no known room to rejoin: %w", err)
			}
			if user == "" {
				user = last.User
			}
			return rt.chat(cmd, app.ModeJoin, last.CanonicalID, user)
		},
	}
}

// chat resolves the room and runs the session until the user leaves, stdin
// ends or the process is interrupted.
func (rt *runtime) chat(cmd *cobra.Command, mode app.Mode, roomID, user string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	room, err := rt.app.Resolve(ctx, mode, roomID, user)
	if err != nil {
		return err
	}

	ctrl := rt.app.NewSession(room, user)
	v := newView(cmd.OutOrStdout(), cmd.ErrOrStderr())
	v.notice("joined %s as %s, type %s to leave", room.DisplayID, user, leaveCommand)

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for ev := range ctrl.Events() {
			v.render(room, ev)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	lines := readLines(cmd.InOrStdin(), done)

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == leaveCommand {
				break loop
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if ctrl.State() != realtime.StateConnected {
				v.notice("not connected, message not sent")
				continue
			}
			if err := ctrl.SendMessage(line); err != nil {
				v.notice("error: %v", err)
			}
		case <-ctrl.Done():
			break loop
		}
	}

	leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := ctrl.Leave(leaveCtx); err != nil {
		rt.log.Warn().Err(err).Msg("leave did not finish")
	}

	err = <-runErr
	<-rendered
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readLines(r io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}
