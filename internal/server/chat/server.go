// Package chat is the protocol engine of the Lantern server: it accepts TCP
// connections, runs one worker per connection through the
// CONNECTED → PENDING_JOIN → JOINED state machine, dispatches typed
// requests, fans out broadcasts through the presence table, and enforces
// moderation behind the admin authorization pipeline.
package chat

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/lantern/internal/logging"
	"github.com/dmitrijs2005/lantern/internal/server/config"
	"github.com/dmitrijs2005/lantern/internal/server/metrics"
	"github.com/dmitrijs2005/lantern/internal/server/presence"
	"github.com/dmitrijs2005/lantern/internal/server/state"
)

type Server struct {
	cfg   *config.Config
	log   logging.Logger
	state *state.ServerState
	table *presence.Table
}

func NewServer(cfg *config.Config, log logging.Logger, st *state.ServerState) *Server {
	return &Server{
		cfg:   cfg,
		log:   log.With("module", "chat_server"),
		state: st,
		table: presence.NewTable(),
	}
}

// Run listens on the configured address and serves until ctx is canceled.
// A listen or accept failure is surfaced to the operator; the listener is
// not restarted.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is canceled. Split out
// so tests can serve on an ephemeral port.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		s.log.Info(ctx, "stopping chat server...")
		listener.Close()
	}()

	go s.reapLoop(ctx)

	s.log.Info(ctx, "chat server listening", "addr", s.cfg.Addr)

	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		metrics.ConnectionsTotal.Inc()
		go s.serveConn(ctx, nc)
	}
}
