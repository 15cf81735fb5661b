package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shelfarr/shelfbrowse/internal/catalog"
	"github.com/shelfarr/shelfbrowse/internal/config"
	"github.com/shelfarr/shelfbrowse/internal/db"
	"github.com/shelfarr/shelfbrowse/internal/metrics"
	"github.com/shelfarr/shelfbrowse/internal/realtime"
	"github.com/shelfarr/shelfbrowse/internal/scheduler"
	"github.com/sirupsen/logrus"
)

const Version = "1.0.0"

// Catalog is the controller surface used by the handlers
type Catalog interface {
	Topics() []catalog.Topic
	SetTopic(catalog.Topic) error
	SetPage(int) error
	Snapshot() catalog.Snapshot
	Wait(ctx context.Context) (catalog.Snapshot, error)
}

// ActivityLog lists recorded fetch cycles
type ActivityLog interface {
	Recent(ctx context.Context, limit int) ([]db.FetchCycle, error)
}

// Tasks exposes the scheduler
type Tasks interface {
	GetTasks() []scheduler.TaskInfo
	RunNow(name string) error
	EnableTask(name string) error
	DisableTask(name string) error
}

// Deps are the collaborators of the server. Activity, Tasks, Metrics and Probe are optional.
type Deps struct {
	Catalog  Catalog
	Hub      *realtime.Hub
	Activity ActivityLog
	Tasks    Tasks
	Metrics  *metrics.Recorder
	Probe    func(ctx context.Context) error
	Logger   *logrus.Logger
}

// Server represents the API server
type Server struct {
	config   *config.Config
	echo     *echo.Echo
	catalog  Catalog
	wsHub    *realtime.Hub
	activity ActivityLog
	tasks    Tasks
	metrics  *metrics.Recorder
	probe    func(ctx context.Context) error
	log      *logrus.Logger
}

// NewServer creates a new API server instance
func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		config:   cfg,
		echo:     e,
		catalog:  deps.Catalog,
		wsHub:    deps.Hub,
		activity: deps.Activity,
		tasks:    deps.Tasks,
		metrics:  deps.Metrics,
		probe:    deps.Probe,
		log:      log,
	}

	// Global Middleware
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(log))
	if s.metrics != nil {
		e.Use(Instrument(s.metrics))
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	if s.wsHub != nil {
		s.wsHub.Greeting = func() *realtime.Event {
			snap := s.catalog.Snapshot()
			return &realtime.Event{Type: realtime.EventCatalogSnapshot, Seq: snap.Seq, Data: s.Render(snap)}
		}
		s.wsHub.Commands = s.handleCommand
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.wsHub != nil {
		s.echo.GET("/ws", s.wsHub.WebSocketHandler)
	}
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := s.echo.Group("/api/v1")

	// Catalog browsing
	api.GET("/topics", s.getTopics)
	api.GET("/catalog", s.getCatalog)
	api.GET("/catalog/snapshot", s.getSnapshot)
	api.PUT("/catalog/topic", s.setTopic)
	api.PUT("/catalog/page", s.setPage)

	// Activity/History endpoint
	api.GET("/activity", s.getActivity)

	// System endpoints
	api.GET("/system/status", s.getSystemStatus)
	api.GET("/system/tasks", s.getSystemTasks)
	api.POST("/system/tasks/:name/run", s.runSystemTask)
	api.PUT("/system/tasks/:name/enabled", s.setSystemTaskEnabled)
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins listening for requests
func (s *Server) Start() error {
	s.log.WithField("addr", s.config.ListenAddr).Info("HTTP server listening")
	return s.echo.Start(s.config.ListenAddr)
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Render is the snapshot projection sent to HTTP and websocket consumers
func (s *Server) Render(snap catalog.Snapshot) interface{} {
	return catalog.NewView(snap, s.catalog.Topics())
}

// healthCheck returns server health status; ?deep=1 also probes Open Library
func (s *Server) healthCheck(c echo.Context) error {
	if c.QueryParam("deep") != "" && s.probe != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()
		if err := s.probe(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"version": Version,
				"error":   err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
