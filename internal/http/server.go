package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"replenishment/internal/cache"
	"replenishment/internal/core"
	"replenishment/internal/log"
	"replenishment/internal/middleware/ratelimit"
	"replenishment/internal/middleware/security"
	"replenishment/internal/middleware/trace"
	"replenishment/internal/services"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
	RateLimit      ratelimit.Config
	Logger         *log.Logger
}

// Server is the REST API over the scale service.
type Server struct {
	http.Server
	router  chi.Router
	scale   *services.ScaleService
	health  HealthChecker
	started time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	// Caches of persisted state, invalidated on save and period upsert.
	cacheManager *cache.Manager
	periodsCache *cache.LRUCache[[]core.Period]
	summaryCache *cache.LRUCache[core.ScaleSummary]

	shutdownOnce sync.Once
}

const periodsCacheKey = "periods"

// NewServer wires routes and middleware.
func NewServer(cfg ServerConfig, scale *services.ScaleService, health HealthChecker) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		router:       chi.NewRouter(),
		scale:        scale,
		health:       health,
		started:      time.Now(),
		limiter:      ratelimit.NewLimiter(cfg.RateLimit),
		detector:     security.NewDetector(),
		cacheManager: cache.NewManager(),
		periodsCache: cache.NewLRUCache[[]core.Period](1, 5*time.Minute),
		summaryCache: cache.NewLRUCache[core.ScaleSummary](50, 5*time.Minute),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)
	s.cacheManager.Register(s.periodsCache)
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(time.Minute)

	s.setupMiddleware(cfg)
	s.setupRoutes()

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.CleanPath)
	s.router.Use(s.tracer.Middleware)
	s.router.Use(log.Middleware(cfg.Logger.WithComponent(log.ComponentHTTP), trace.GetRequestID))
	s.router.Use(s.detector.Middleware)
	s.router.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	if len(cfg.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", trace.HeaderRequestID},
			ExposedHeaders:   []string{trace.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s.router.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	}))
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/periods", s.handleListPeriods)

		r.Route("/periods/{period}", func(r chi.Router) {
			r.Put("/", s.handleUpsertPeriod)
			r.Get("/summary", s.handleSummary)

			r.Route("/contributions", func(r chi.Router) {
				r.Get("/", s.handleLoadContributions)
				r.Put("/", s.handleSaveContributions)
				r.Post("/compute", s.handleCompute)
				r.Post("/edit", s.handleEdit)
				r.Post("/revert", s.handleRevert)
				r.Post("/sort", s.handleSort)
				r.Post("/rows", s.handleAddRow)
				r.Delete("/rows/{row}", s.handleRemoveRow)
			})
		})

		r.Route("/drafts/{recordType}/{period}/{tableType}", func(r chi.Router) {
			r.Get("/", s.handleGetDraft)
			r.Put("/", s.handleSaveDraft)
			r.Delete("/", s.handleDiscardDraft)
			r.Get("/recover", s.handleRecoverDraft)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("No route for " + r.URL.Path).Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed here").Write(w)
	})
}

// invalidatePeriod drops every cached view derived from a period.
func (s *Server) invalidatePeriod(period string) {
	s.summaryCache.Delete(summaryCacheKey(period))
}

func summaryCacheKey(period string) string {
	return "summary:" + period
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
	})
	return s.Server.Shutdown(ctx)
}
