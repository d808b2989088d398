package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/api/handlers"
	mw "github.com/Harshitk-cp/atomspace/internal/api/middleware"
	"github.com/Harshitk-cp/atomspace/internal/buildconfig"
	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"github.com/Harshitk-cp/atomspace/internal/truth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const limiterCleanupInterval = 5 * time.Minute

// Options wires an App. Store and Rules are required; a nil Algebra uses the
// default parameters and a nil Snapshotter disables the snapshot endpoints.
type Options struct {
	Store       domain.AtomStore
	Algebra     *truth.Algebra
	Rules       *service.RuleSet
	Engine      service.EngineConfig
	Snapshotter domain.Snapshotter

	// DecayInterval starts the background attention decay worker when > 0.
	DecayInterval  time.Duration
	TouchIncrement float64

	RateLimitRPS   float64
	RateLimitBurst int
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router      *chi.Mux
	Store       domain.AtomStore
	Engine      *service.Engine
	Attention   *service.AttentionAllocator
	Snapshotter domain.Snapshotter

	limiter   *mw.RateLimiter
	decay     bool
	startTime time.Time
	logger    *zap.Logger
}

func NewApp(opts Options, logger *zap.Logger) *App {
	algebra := opts.Algebra
	if algebra == nil {
		algebra = truth.NewAlgebra(truth.DefaultParams())
	}

	attention := service.NewAttentionAllocator(opts.Store, logger)
	if opts.TouchIncrement > 0 {
		attention.Increment = opts.TouchIncrement
	}
	if opts.Engine.DecayRate > 0 {
		attention.Rate = opts.Engine.DecayRate
	}
	if opts.DecayInterval > 0 {
		attention.SetInterval(opts.DecayInterval)
	}
	engine := service.NewEngine(opts.Store, algebra, opts.Rules, attention, opts.Engine, logger)

	rps, burst := opts.RateLimitRPS, opts.RateLimitBurst
	if rps <= 0 {
		rps = 100
	}
	if burst <= 0 {
		burst = 20
	}

	r := chi.NewRouter()
	app := &App{
		Router:      r,
		Store:       opts.Store,
		Engine:      engine,
		Attention:   attention,
		Snapshotter: opts.Snapshotter,
		limiter:     mw.NewRateLimiter(rps, burst),
		decay:       opts.DecayInterval > 0,
		startTime:   time.Now(),
		logger:      logger,
	}

	atomHandler := handlers.NewAtomHandler(opts.Store, logger)
	queryHandler := handlers.NewQueryHandler(engine.Matcher(), logger)
	chainHandler := handlers.NewChainHandler(engine, logger)
	attentionHandler := handlers.NewAttentionHandler(attention, logger)
	statsHandler := handlers.NewStatsHandler(opts.Store, opts.Snapshotter, logger)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(app.limiter.Middleware)

	r.Get("/health", app.healthHandler)
	r.Get("/debug/runtime", app.runtimeHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/atoms", func(r chi.Router) {
			r.Post("/", atomHandler.Create)
			r.Get("/", atomHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", atomHandler.Get)
				r.Delete("/", atomHandler.Delete)
				r.Get("/incoming", atomHandler.Incoming)
				r.Get("/trace", atomHandler.Trace)
			})
		})
		r.Get("/steps", atomHandler.Steps)

		r.Post("/query", queryHandler.Query)

		r.Route("/chain", func(r chi.Router) {
			r.Post("/forward", chainHandler.Forward)
			r.Post("/backward", chainHandler.Backward)
		})
		r.Get("/rules", chainHandler.Rules)

		r.Route("/attention", func(r chi.Router) {
			r.Post("/touch", attentionHandler.Touch)
			r.Post("/decay", attentionHandler.Decay)
			r.Get("/focus", attentionHandler.Focus)
		})

		r.Get("/stats", statsHandler.Stats)
		r.Post("/snapshot", statsHandler.Save)
		r.Post("/snapshot/restore", statsHandler.Load)
	})

	return app
}

// Start launches the background workers.
func (app *App) Start() {
	app.limiter.Start(limiterCleanupInterval)
	if app.decay {
		app.Attention.Start()
	}
}

func (app *App) Stop() {
	app.limiter.Stop()
	if app.decay {
		app.Attention.Stop()
	}
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	info := buildconfig.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": info.Version,
		"commit":  info.Commit,
		"atoms":   app.Store.Len(),
	})
}

func (app *App) runtimeHandler(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(app.startTime)
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": uptime.Seconds(),
		"uptime_human":   uptime.Round(time.Second).String(),
		"goroutines":     runtime.NumGoroutine(),
		"atoms":          app.Store.Len(),
		"memory": map[string]any{
			"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
			"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
			"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
			"num_gc":         memStats.NumGC,
		},
		"go_version": runtime.Version(),
	})
}
