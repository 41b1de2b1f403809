package cli

import (
	"github.com/spf13/cobra"

	"github.com/anbuinfosec/anbu-ai/internal/config"
	"github.com/anbuinfosec/anbu-ai/internal/startup"
)

func newServeCommand(a *app) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Run the HTTP gateway serving /api/chat, /api/image, /api/reset,
/api/status, /api/changelog and /api/changelog.atom.

The server stops gracefully on SIGINT or SIGTERM. Changing log.level in the
config file takes effect without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := a.cfg, a.logger
			ctx := cmd.Context()

			logger.Info("Starting anbu %s", config.Version)
			logger.Debug("Configuration: addr=%s, provider=%s, changelog=%s, rate limits chat=%d image=%d",
				cfg.Server.Addr(), cfg.Chat.Provider, cfg.Changelog.Source,
				cfg.RateLimit.ChatPerMinute, cfg.RateLimit.ImagePerMinute)

			if check {
				logger.Debug("Validating upstream dependencies...")
				if err := startup.ValidateAll(ctx, cfg); err != nil {
					return err
				}
				logger.Info("Upstream dependencies reachable")
			}

			components, err := startup.InitializeAll(cfg, logger)
			if err != nil {
				return err
			}
			defer startup.Cleanup(components, logger)

			startup.WatchConfig(a.v, logger)

			return startup.Run(ctx, components.WebServer, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "Listen host")
	flags.Int("port", 0, "Listen port")
	flags.String("provider", "", "Chat provider: deepenglish, openai, anthropic")
	flags.BoolVar(&check, "check", false, "Check that upstream endpoints are reachable before serving")
	_ = a.v.BindPFlag("server.host", flags.Lookup("host"))
	_ = a.v.BindPFlag("server.port", flags.Lookup("port"))
	_ = a.v.BindPFlag("chat.provider", flags.Lookup("provider"))

	return cmd
}
