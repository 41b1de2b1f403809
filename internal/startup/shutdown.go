package startup

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anbuinfosec/anbu-ai/internal/logging"
)

// server is the part of web.Server that Run needs.
type server interface {
	ListenAndServe(ctx context.Context) error
}

// Cleanup releases background resources held by components: the session
// manager's cleanup goroutine. It is safe to call more than once.
//
// If components is nil, this is a no-op.
func Cleanup(components *Components, logger *logging.Logger) {
	if components == nil {
		return
	}

	if components.SessionManager != nil {
		logger.Debug("Stopping session manager (%d sessions)", components.SessionManager.Count())
		components.SessionManager.Shutdown()
	}

	logger.Debug("Cleanup complete")
}

// Run starts the web server and blocks until a shutdown signal is received.
// It handles SIGTERM and SIGINT signals for graceful shutdown.
//
// Parameters:
//   - ctx: Context for server lifecycle (cancellation triggers shutdown)
//   - srv: Web server to run
//   - logger: Logger for shutdown messages
//
// Returns nil on clean shutdown, error otherwise.
func Run(ctx context.Context, srv server, logger *logging.Logger) error {
	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The web.Server itself logs "Shutting down..." and "Web server stopped"
	err := srv.ListenAndServe(shutdownCtx)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Debug("Run finished")
	return nil
}
