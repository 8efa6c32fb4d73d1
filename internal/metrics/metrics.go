// Package metrics exposes the daemon's Prometheus instrumentation: renewal
// outcomes, active lease counts, and fetch latency, served over a loopback
// HTTP listener via promhttp.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RenewalsTotal counts renewal attempts by the state the scheduler
	// landed in (renewing, fresh, degraded).
	RenewalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credsfetcherd",
		Name:      "renewals_total",
		Help:      "Total renewal attempts by resulting phase.",
	}, []string{"phase"})

	// LeasesActive tracks the number of leases currently tracked on disk.
	LeasesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "credsfetcherd",
		Name:      "leases_active",
		Help:      "Number of leases currently present under the lease store root.",
	})

	// FetchLatencySeconds measures end-to-end CreateLease latency by
	// authenticator mode.
	FetchLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "credsfetcherd",
		Name:      "fetch_latency_seconds",
		Help:      "CreateLease latency in seconds, by authenticator mode.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})

	// RenewalFailuresTotal counts renewal failures by error kind.
	RenewalFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credsfetcherd",
		Name:      "renewal_failures_total",
		Help:      "Total renewal failures by error kind.",
	}, []string{"kind"})
)

// Server serves /metrics on a loopback listener.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics server bound to addr (e.g. "127.0.0.1:9273").
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start begins serving in the background, returning once the listener is
// bound so callers can observe the final ephemeral port when addr uses :0.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return
		}
	}()
	return ln.Addr(), nil
}

// Stop gracefully shuts the metrics server down.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
