// Package cli implements the anbu command tree: the gateway server and the
// command line client that keeps chat sessions in the local store.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anbuinfosec/anbu-ai/internal/client"
	"github.com/anbuinfosec/anbu-ai/internal/config"
	"github.com/anbuinfosec/anbu-ai/internal/logging"
	"github.com/anbuinfosec/anbu-ai/internal/store"
)

// app is the state shared by all commands of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *logging.Logger
	out        io.Writer
	errOut     io.Writer

	store *store.Store
}

// NewRootCommand builds the anbu command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	return newApp(out, errOut).rootCommand()
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		v:      config.New(),
		out:    out,
		errOut: errOut,
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "anbu",
		Short: "Anbu AI gateway and command line client",
		Long: `Anbu AI proxies chat and image generation requests to third-party AI
providers and keeps chat sessions in a local store.

Quick Start:
  anbu serve                       # Run the gateway
  anbu chat "Hello, how are you?"  # Chat in the current session
  anbu image "a red fox" --style anime
  anbu sessions                    # List saved sessions`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default: ./anbu.yaml or ~/.anbu/anbu.yaml)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("server", "", "Gateway URL used by client commands")
	flags.String("store", "", "Path of the local session store")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("client.server_url", flags.Lookup("server"))
	_ = a.v.BindPFlag("client.store_path", flags.Lookup("store"))

	root.AddCommand(
		newServeCommand(a),
		newChatCommand(a),
		newImageCommand(a),
		newResetCommand(a),
		newSessionsCommand(a),
		newImagesCommand(a),
		newClearCommand(a),
		newStatusCommand(a),
		newChangelogCommand(a),
		newPrefsCommand(a),
	)

	return root
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(args []string, out, errOut io.Writer) int {
	a := newApp(out, errOut)
	defer a.close()

	root := a.rootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewWithFormat(logging.ParseLevel(cfg.Log.Level), logging.Format(cfg.Log.Format), a.errOut)
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// openStore opens the local session store on first use.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	path, err := a.cfg.StorePath()
	if err != nil {
		return nil, err
	}

	medium, err := store.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Opened store at %s", path)

	a.store = store.New(medium)
	return a.store, nil
}

// gateway returns a client for the configured gateway.
func (a *app) gateway() *client.Client {
	return client.New(a.cfg.Client.ServerURL, client.DefaultTimeout)
}

// formatMillis renders an epoch-ms timestamp in local time.
func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
