package startup

import (
	"github.com/spf13/viper"

	"github.com/anbuinfosec/anbu-ai/internal/config"
	"github.com/anbuinfosec/anbu-ai/internal/logging"
)

// WatchConfig hot-reloads the log level when the config file changes.
// Other settings take effect on the next start.
func WatchConfig(v *viper.Viper, logger *logging.Logger) {
	config.Watch(v, func(cfg *config.Config) {
		applyReload(logger, cfg)
	}, func(err error) {
		logger.Warn("Ignoring config change: %v", err)
	})
}

// applyReload applies the reloadable parts of cfg.
func applyReload(logger *logging.Logger, cfg *config.Config) {
	level := logging.ParseLevel(cfg.Log.Level)
	if level == logger.GetLevel() {
		return
	}
	logger.Info("Log level changed: %s -> %s", logger.GetLevel(), level)
	logger.SetLevel(level)
}
