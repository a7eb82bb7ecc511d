// Package server initializes and runs the Lantern chat server: it loads
// configuration, restores the persisted state snapshots, starts the chat
// listener plus the optional metrics endpoint, and handles graceful
// shutdown on OS signals.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/lantern/internal/logging"
	"github.com/dmitrijs2005/lantern/internal/server/chat"
	"github.com/dmitrijs2005/lantern/internal/server/config"
	"github.com/dmitrijs2005/lantern/internal/server/metrics"
	"github.com/dmitrijs2005/lantern/internal/server/state"
)

type App struct {
	config *config.Config
	logger logging.Logger
	state  *state.ServerState
	chat   *chat.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	st, err := state.New(c.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("state init error: %w", err)
	}

	srv := chat.NewServer(c, logger, st)

	return &App{config: c, logger: logger, state: st, chat: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.Serve(ctx, app.config.MetricsAddr, app.logger)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.chat.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()
}
