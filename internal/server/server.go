// Package server exposes HYDRA's REST and WebSocket surface: a chi router over the Signal Store,
// scorer, aggregator, and calibrator, plus a push channel fed by events.Manager. Grounded on
// trader-go/internal/server/server.go's router/middleware/Start/Shutdown shape.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/aggregator"
	"github.com/aristath/hydra/internal/aux/darkpool"
	"github.com/aristath/hydra/internal/aux/flow"
	"github.com/aristath/hydra/internal/aux/gamma"
	"github.com/aristath/hydra/internal/calibration"
	"github.com/aristath/hydra/internal/connectors"
	"github.com/aristath/hydra/internal/events"
	"github.com/aristath/hydra/internal/scanner"
	"github.com/aristath/hydra/internal/scoring"
	"github.com/aristath/hydra/internal/signalstore"
)

// Config holds the server's HTTP-level settings plus every collaborator it routes requests to.
type Config struct {
	Port    int
	DevMode bool
	Log     zerolog.Logger

	Store      *signalstore.Store
	Scanner    *scanner.Scanner
	Scorer     *scoring.Scorer
	Weights    *scoring.WeightStore
	Aggregator *aggregator.Aggregator
	Calibrator *calibration.Calibrator
	GEX        *gamma.Engine
	Flow       *flow.Decoder
	DarkPool   *darkpool.Mapper
	Calendar   *connectors.EconCalendar
	Events     *events.Manager
}

// Server is HYDRA's HTTP + WebSocket front door.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	store      *signalstore.Store
	scanner    *scanner.Scanner
	scorer     *scoring.Scorer
	weights    *scoring.WeightStore
	aggregator *aggregator.Aggregator
	calibrator *calibration.Calibrator
	gex        *gamma.Engine
	flow       *flow.Decoder
	darkpool   *darkpool.Mapper
	calendar   *connectors.EconCalendar
	events     *events.Manager

	startedAt time.Time
}

// New wires a Server over its collaborators and builds the route table.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		store:      cfg.Store,
		scanner:    cfg.Scanner,
		scorer:     cfg.Scorer,
		weights:    cfg.Weights,
		aggregator: cfg.Aggregator,
		calibrator: cfg.Calibrator,
		gex:        cfg.GEX,
		flow:       cfg.Flow,
		darkpool:   cfg.DarkPool,
		calendar:   cfg.Calendar,
		events:     cfg.Events,
		startedAt:  time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generous: sequence/analyze may round-trip to Bedrock
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/ws", s.handleWebSocket)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/signals", s.handleSignals)
		r.Get("/signals/summary", s.handleSignalsSummary)
		r.Get("/sources", s.handleSources)
		r.Get("/dashboard", s.handleDashboard)
		r.Post("/scan", s.handleScan)

		r.Get("/blowup", s.handleBlowup)
		r.Get("/blowup/history", s.handleBlowupHistory)
		r.Get("/events", s.handleEvents)

		r.Get("/intelligence", s.handleIntelligence)
		r.Get("/predator", s.handleIntelligence)

		r.Get("/gex", s.handleGEX)
		r.Get("/flow", s.handleFlow)
		r.Get("/darkpool", s.handleDarkPool)
		r.Post("/sequence/analyze", s.handleSequenceAnalyze)
		r.Post("/conviction", s.handleConviction)

		r.Post("/trade-result", s.handleTradeResult)
		r.Get("/calibration/stats", s.handleCalibrationStats)
		r.Get("/calibration/weights", s.handleCalibrationWeights)
		r.Post("/calibration/run", s.handleCalibrationRun)
	})
}

// Start begins serving HTTP requests; blocks until the server stops or errors.
func (s *Server) Start() error {
	s.log.Info().Int("port", portFromAddr(s.server.Addr)).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests before closing listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func portFromAddr(addr string) int {
	var port int
	fmt.Sscanf(addr, ":%d", &port)
	return port
}
