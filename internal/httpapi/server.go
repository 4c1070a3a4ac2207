// Package httpapi serves the REST API, the websocket endpoint and the
// operational routes (/health, /metrics).
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/broadcast"
	"github.com/BrandonDHaskell/autodoor/internal/metrics"
)

type Dependencies struct {
	Logger zerolog.Logger
	Addr   string
	Kernel *service.Kernel

	// Hub serves /ws when set.
	Hub *broadcast.Hub

	// Metrics serves /metrics and records request metrics when set.
	Metrics *metrics.Metrics

	// CORSOrigins defaults to every origin.
	CORSOrigins []string

	// ControlRatePerMinute limits POST/PUT routes per client IP; 0 disables.
	ControlRatePerMinute int
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
	kernel     *service.Kernel
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger: d.Logger.With().Str("component", "httpapi").Logger(),
		kernel: d.Kernel,
	}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger, d.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	}))

	r.Get("/health", s.handleHealth)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	if d.Hub != nil {
		r.Method(http.MethodGet, "/ws", d.Hub.Handler(d.Kernel, nil))
	}

	limit := s.controlRateLimit(d.ControlRatePerMinute)
	r.Route("/api", func(r chi.Router) {
		r.Get("/door/status", s.handleDoorStatus)
		r.With(limit).Post("/door/control", s.handleDoorControl)

		r.Get("/alerts", s.handleListAlerts)
		r.With(limit).Post("/alerts/{id}/acknowledge", s.handleAcknowledgeAlert)

		r.Get("/logs", s.handleLogs)

		r.Get("/settings", s.handleListSettings)
		r.Get("/settings/{key}", s.handleGetSetting)
		r.With(limit).Put("/settings/{key}", s.handlePutSetting)

		r.Get("/sensor/distance", s.handleSensorDistance)
		r.Get("/stats", s.handleStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Serve runs the server until ctx is done, then shuts it down gracefully.
// It lets the server run under a suture supervisor.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http listening")
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown")
		}
		<-errCh
		return nil
	}
}
