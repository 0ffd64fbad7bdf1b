package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/app"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/log"
)

type rootOptions struct {
	configPath  string
	server      string
	backbone    string
	backboneURL string
	name        string
	logLevel    string
}

// runtime carries what PersistentPreRunE builds for the subcommands.
type runtime struct {
	opts rootOptions
	cfg  config.Config
	log  *zerolog.Logger
	app  *app.App
}

func newRootCmd() (*cobra.Command, *runtime) {
	rt := &runtime{}
	root := &cobra.Command{
		Use:               "roomchat",
		Short:             "Chat in real-time rooms",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: rt.setup,
	}

	// Precedence: flags > env vars > config file > defaults.
	flags := root.PersistentFlags()
	flags.StringVarP(&rt.opts.configPath, "config", "c", "", "config file (default <user config dir>/roomchat/config.yaml)")
	flags.StringVarP(&rt.opts.server, "server", "s", "", "chat server URL")
	flags.StringVar(&rt.opts.backbone, "backbone", "", "realtime backbone: stomp or memory")
	flags.StringVar(&rt.opts.backboneURL, "backbone-url", "", "STOMP websocket endpoint")
	flags.StringVarP(&rt.opts.name, "name", "n", "", "your display name")
	flags.StringVar(&rt.opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCreateCmd(rt),
		newJoinCmd(rt),
		newHistoryCmd(rt),
		newRoomsCmd(rt),
	)

	return root, rt
}

func (rt *runtime) setup(cmd *cobra.Command, _ []string) error {
	bootLog := log.New(rt.opts.logLevel, cmd.ErrOrStderr())

	cfg, path, err := config.Load(bootLog, rt.opts.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(config.Config{
		ServerURL:   rt.opts.server,
		Backbone:    rt.opts.backbone,
		BackboneURL: rt.opts.backboneURL,
		User:        rt.opts.name,
		LogLevel:    rt.opts.logLevel,
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt.cfg = cfg
	rt.log = log.New(cfg.LogLevel, cmd.ErrOrStderr())
	rt.log.Debug().Str("config", path).Str("server", cfg.ServerURL).Str("backbone", cfg.Backbone).Msg("configuration loaded")

	a, err := app.New(&cfg, rt.log)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	rt.app = a
	return nil
}

func (rt *runtime) close() {
	if rt.app == nil {
		return
	}
	if err := rt.app.Close(); err != nil {
		rt.log.Warn().Err(err).Msg("failed to close app")
	}
	rt.app = nil
}

// Execute runs the CLI.
func Execute() {
	root, rt := newRootCmd()
	err := root.ExecuteContext(context.Background())
	rt.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
