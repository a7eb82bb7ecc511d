package chat

import (
	"context"
	"time"

	"github.com/dmitrijs2005/lantern/internal/server/metrics"
)

// reapLoop periodically evicts connections that have been silent for longer
// than the idle timeout. The client pings every 5 seconds, so a healthy
// connection never comes close to the 15 second default.
func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce(ctx)
		}
	}
}

func (s *Server) reapOnce(ctx context.Context) {
	for _, c := range s.table.Expired(s.cfg.IdleTimeout) {
		if _, ok := s.table.Unregister(c.ID); !ok {
			continue
		}
		s.log.Info(ctx, "idle connection evicted", "user", c.Username, "conn", c.ID)
		metrics.IdleEvictionsTotal.Inc()
		c.Conn.Close()
		s.broadcastLeave(c.Username)
	}
}
