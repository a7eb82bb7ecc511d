// Package metrics exposes Prometheus counters for the chat server on an
// optional /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/lantern/internal/logging"
)

// Registry is the Prometheus registry used by this package.
var Registry = prometheus.NewRegistry()

var (
	// ConnectionsTotal counts accepted TCP connections.
	ConnectionsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "lantern_connections_total",
		Help: "Total number of accepted connections",
	})

	// ActiveConnections tracks connections currently in the worker loop.
	ActiveConnections = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "lantern_active_connections",
		Help: "Connections currently open",
	})

	// MessagesTotal counts relayed messages by kind (channel or dm).
	MessagesTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "lantern_messages_total",
		Help: "Total chat messages relayed, by kind",
	}, []string{"kind"})

	// AuthFailuresTotal counts rejected logins, joins and admin commands.
	AuthFailuresTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "lantern_auth_failures_total",
		Help: "Total failed authentication and authorization attempts",
	})

	// BroadcastDropsTotal counts connections dropped because a best-effort
	// send to them failed.
	BroadcastDropsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "lantern_broadcast_drops_total",
		Help: "Connections dropped after a failed send",
	})

	// IdleEvictionsTotal counts connections evicted by the idle reaper.
	IdleEvictionsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "lantern_idle_evictions_total",
		Help: "Connections evicted after the idle timeout",
	})
)

// Serve runs a /metrics HTTP endpoint on addr until ctx is canceled.
// Intended to be run in its own goroutine.
func Serve(ctx context.Context, addr string, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(ctx, "metrics endpoint failed", "error", err)
	}
}
