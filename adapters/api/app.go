package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"errbar/adapters/stats/compare"
	"errbar/adapters/stats/detector"
	"errbar/adapters/stats/engine"
	"errbar/app"
	"errbar/ports"
)

// App is the HTTP surface over the conversion pipeline: the pure
// detect/convert/compare operations, grid analysis by upload, and the
// run ledger when one is configured.
type App struct {
	router     *chi.Mux
	analysis   *app.AnalysisService
	comparison *app.ComparisonService
	detector   *detector.Detector
	engine     *engine.StatsEngine
	comparator *compare.GroupComparator
	ledger     ports.LedgerPort
	level      float64
	port       string
}

// Config holds API application configuration
type Config struct {
	Port            string
	ConfidenceLevel float64
}

// NewApp creates the API application. ledger may be nil, which leaves
// the analyze endpoint working but disables run history and reports.
func NewApp(config Config, analysis *app.AnalysisService, comparison *app.ComparisonService, ledger ports.LedgerPort) *App {
	a := &App{
		router:     chi.NewRouter(),
		analysis:   analysis,
		comparison: comparison,
		detector:   detector.NewDetector(),
		engine:     engine.NewStatsEngine(),
		comparator: compare.NewGroupComparator(),
		ledger:     ledger,
		level:      config.ConfidenceLevel,
		port:       config.Port,
	}

	a.setupMiddleware()
	a.setupRoutes()

	return a
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealthz)
	a.router.Get("/report", a.handleReport)

	// Pure statistical operations
	a.router.Post("/api/detect", a.handleDetect)
	a.router.Post("/api/convert", a.handleConvert)
	a.router.Post("/api/compare", a.handleCompare)

	// Grid analysis
	a.router.Post("/api/analyze", a.handleAnalyze)

	// Ledger-backed run history
	a.router.Get("/api/runs", a.handleRuns)
	a.router.Get("/api/runs/{id}", a.handleRun)
	a.router.Get("/api/runs/{id}/comparisons", a.handleRunComparisons)
}

// Router exposes the handler tree, mostly for tests.
func (a *App) Router() http.Handler {
	return a.router
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := ":" + a.port
	log.Printf("[API] serving on %s", addr)
	return http.ListenAndServe(addr, a.router)
}
