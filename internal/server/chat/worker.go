package chat

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/lantern/internal/logging"
	"github.com/dmitrijs2005/lantern/internal/protocol"
	"github.com/dmitrijs2005/lantern/internal/server/metrics"
)

// connState is the explicit per-connection state machine. Transitions are
// checked structurally in dispatch, not inferred from map membership.
type connState int

const (
	stateConnected connState = iota
	statePendingJoin
	stateJoined
	stateClosed
)

// worker owns one connection's blocking receive loop. Everything it shares
// with other workers lives behind the state aggregate and the presence
// table; the worker itself is single-goroutine.
type worker struct {
	id   string
	conn *protocol.Conn
	nc   net.Conn
	srv  *Server
	log  logging.Logger

	state connState
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	w := &worker{
		id:   uuid.NewString(),
		conn: protocol.NewConn(nc),
		nc:   nc,
		srv:  s,
	}
	w.log = s.log.With("conn", w.id, "peer", nc.RemoteAddr().String())

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	w.log.Debug(ctx, "connection accepted")
	w.run(ctx)
}

func (w *worker) run(ctx context.Context) {
	defer w.cleanup(ctx)

	for w.state != stateClosed {
		// a connection that never authenticates must not linger forever;
		// once joined, the idle reaper takes over
		if w.state != stateJoined {
			w.nc.SetReadDeadline(time.Now().Add(w.srv.cfg.IdleTimeout))
		} else {
			w.nc.SetReadDeadline(time.Time{})
		}

		raw, err := w.conn.ReadFrame()
		if err != nil {
			w.log.Debug(ctx, "stream ended", "error", err)
			return
		}

		if w.state == stateJoined {
			w.srv.table.Touch(w.id)
		}

		req, perr := protocol.ParseRequest(raw)
		w.srv.dispatch(ctx, w, req, perr)
	}
}

// cleanup runs exactly once when the receive loop ends for any reason. If
// the connection was already removed from the table (ban kick, send
// failure, reaper) no duplicate leave notice is emitted.
func (w *worker) cleanup(ctx context.Context) {
	w.state = stateClosed
	w.srv.state.DropPendingAuth(w.id)
	w.conn.Close()

	c, ok := w.srv.table.Unregister(w.id)
	if !ok {
		return
	}

	w.log.Info(ctx, "client disconnected", "user", c.Username)
	w.srv.broadcastLeave(c.Username)
}

// send writes one frame to this worker's own connection. A failure here is
// not fatal on its own; the receive loop notices the dead stream on its
// next read.
func (w *worker) send(ctx context.Context, text string) {
	if err := w.conn.WriteFrame(text); err != nil {
		w.log.Debug(ctx, "send failed", "error", err)
	}
}

// username returns the table-bound username. The table is authoritative so
// a rename is picked up immediately, never a client-supplied identity.
func (w *worker) username() (string, bool) {
	return w.srv.table.Username(w.id)
}

// broadcastLeave announces a departure and pushes the refreshed user list.
func (s *Server) broadcastLeave(username string) {
	dropped := s.table.Broadcast(protocol.LeftNotice(username), "")
	dropped += s.table.Broadcast(protocol.Users(s.table.ListOnline()), "")
	metrics.BroadcastDropsTotal.Add(float64(dropped))
}
