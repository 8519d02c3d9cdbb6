// Package server assembles the HTTP surface of the bridge.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicebridge-ai/voicebridge/pkg/booking"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/config"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/handlers"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/metrics"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/mw"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/registry"
	"github.com/voicebridge-ai/voicebridge/pkg/crm"
	"github.com/voicebridge-ai/voicebridge/pkg/dispatch"
	"github.com/voicebridge-ai/voicebridge/pkg/store"
)

// Dependencies are the storage backends picked at startup.
type Dependencies struct {
	CallLog      store.CallLog
	Appointments store.Appointments
	Logger       *slog.Logger
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *registry.Registry
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
	draining atomic.Bool
}

func New(cfg config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: registry.New(),
		metrics:  metrics.New(promReg),
		promReg:  promReg,
	}

	notifier := crm.NewNotifier(crm.Config{
		WebhookURL: cfg.CRMWebhookURL,
		Timeout:    cfg.CRMTimeout,
	}, logger)
	svc := booking.NewService(deps.Appointments, notifier, logger)
	dispatcher := dispatch.New(svc, dispatch.Config{Timeout: cfg.FunctionTimeout}, logger)

	s.routes(deps.CallLog, dispatcher)
	return s
}

func (s *Server) routes(callLog store.CallLog, dispatcher *dispatch.Dispatcher) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Registry: s.registry})
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	s.mux.Handle("/media", handlers.MediaHandler{
		Config:     s.cfg,
		Logger:     s.logger,
		Registry:   s.registry,
		CallLog:    callLog,
		Dispatcher: dispatcher,
		Metrics:    s.metrics,
		Draining:   s.draining.Load,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Drain refuses new streams, cancels live sessions, and waits for them to
// finish or for ctx to expire. It reports whether the drain completed.
func (s *Server) Drain(ctx context.Context) bool {
	s.draining.Store(true)
	canceled := s.registry.CancelAll()
	if canceled > 0 {
		s.logger.Info("canceling live sessions", "count", canceled)
	}
	return s.registry.Wait(ctx)
}

// ActiveSessions is the number of live call sessions.
func (s *Server) ActiveSessions() int {
	return s.registry.Count()
}
