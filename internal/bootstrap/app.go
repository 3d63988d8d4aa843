package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/formfiller/internal/infra/config"
	"github.com/yanqian/formfiller/internal/infra/jobqueue"
)

const shutdownTimeout = 10 * time.Second

// App runs the HTTP server and the background fill worker.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	server *http.Server
	jobs   jobqueue.HandlerQueue
}

// NewApp is used by Wire to build the runnable app.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, jobs jobqueue.HandlerQueue) *App {
	return &App{cfg: cfg, logger: logger.With("component", "bootstrap"), server: server, jobs: jobs}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On shutdown in-flight requests get shutdownTimeout to finish, then
// running fills are drained.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := a.server.Shutdown(shutdownCtx)
		a.drainJobs()
		return err
	case err := <-errCh:
		a.drainJobs()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) drainJobs() {
	if a.jobs == nil {
		return
	}
	a.logger.Info("waiting for running fills")
	a.jobs.Close()
}
