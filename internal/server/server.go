// Package server provides the long-running HTTP prediction API and the
// experiment watcher behind it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/logger"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/predcache"
	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/store"
)

// Config controls the server runtime behavior.
type Config struct {
	MLrunsDir    string
	Experiment   string
	UseCache     bool
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	CacheTTL     time.Duration

	// Strict rejects categorical levels outside the known options unless a
	// request overrides it with ?strict=false.
	Strict bool

	// Defaults fill attributes a request leaves out.
	Defaults profile.RawProfile
}

// Deps are the collaborators the server is built from. Context may be nil
// when the artifacts failed to load; prediction routes then answer with
// ContextErr.
type Deps struct {
	Context    *inference.Context
	ContextErr error
	Cache      predcache.Cache
	Store      *store.Cache
	Logger     logger.Logger
}

// Server provides the HTTP API and the experiment watcher.
type Server struct {
	cfg     Config
	infer   *inference.Context
	inferEr error
	cache   predcache.Cache
	db      *store.Cache
	log     logger.Logger

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	runs        []model.Run
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a server with the provided config and collaborators.
func New(cfg Config, deps Deps) *Server {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 15 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8790"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Defaults == (profile.RawProfile{}) {
		cfg.Defaults = profile.Defaults()
	}
	if deps.Cache == nil {
		deps.Cache = predcache.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Context == nil && deps.ContextErr == nil {
		deps.ContextErr = errors.New("no artifacts loaded")
	}

	return &Server{
		cfg:       cfg,
		infer:     deps.Context,
		inferEr:   deps.ContextErr,
		cache:     deps.Cache,
		db:        deps.Store,
		log:       deps.Logger,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/predict", s.handlePredict(inference.TaskBoth))
			r.Post("/eligibility", s.handlePredict(inference.TaskEligibility))
			r.Post("/max-emi", s.handlePredict(inference.TaskMaxEMI))
			r.Post("/features", s.handleFeatures)

			r.Get("/experiments", s.handleExperiments)
			r.Get("/experiments/final", s.handleFinal)
			r.Get("/runs/{id}", s.handleRun)
			r.Get("/history", s.handleHistory)
		})
	})
	return r
}

// Run starts HTTP endpoints and polling until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info("server listening", map[string]interface{}{
		"addr":       s.cfg.Addr,
		"mlruns_dir": s.cfg.MLrunsDir,
		"artifacts":  s.infer != nil,
	})

	// Seed initial snapshot so status is useful immediately.
	s.pollOnce()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.closeSubscribers()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.pollOnce()
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		}
	}
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := map[string]interface{}{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      ww.Status(),
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
					"request_id":  middleware.GetReqID(r.Context()),
				}
				if ww.Status() >= http.StatusInternalServerError {
					log.Warn("http request", fields)
					return
				}
				log.Debug("http request", fields)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
