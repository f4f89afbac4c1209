// Package http provides the tracelog admin API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tracelog/internal/config"
	"github.com/fyrsmithlabs/tracelog/internal/logging"
	"github.com/fyrsmithlabs/tracelog/internal/services"
	"github.com/fyrsmithlabs/tracelog/pkg/diff"
	"github.com/fyrsmithlabs/tracelog/pkg/render"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// Server provides the admin endpoints of a tracelog instance.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	metrics  *adminMetrics
	config   config.ServerConfig
}

// Deps are the components a Server serves.
type Deps struct {
	Registry services.Registry

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// MeterProvider receives HTTP metrics. Nil uses the global provider.
	MeterProvider metric.MeterProvider
}

// NewServer creates a new admin server.
func NewServer(deps Deps, cfg config.ServerConfig) (*Server, error) {
	if deps.Registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if deps.Registry.Assembler() == nil {
		return nil, errors.New("registry has no assembler")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}

	logger := deps.Registry.Logger().Named("http")
	metrics, err := newAdminMetrics(deps.MeterProvider)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.middleware())
	if cfg.RecordRequests {
		e.Use(RecordRequests(deps.Registry.Assembler()))
	} else {
		e.Use(logRequests(logger))
	}

	s := &Server{
		echo:     e,
		registry: deps.Registry,
		gatherer: deps.Gatherer,
		logger:   logger,
		metrics:  metrics,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/stats", s.handleStats)
	v1.GET("/settings", s.handleSettings)
	v1.POST("/scrub", s.handleScrub)
	v1.POST("/render", s.handleRender)
	v1.POST("/diff", s.handleDiff)
}

func logRequests(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			req := c.Request()
			logger.Debug(req.Context(), "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if tel := s.registry.Telemetry(); tel != nil {
		if h := tel.Health(); h.Degraded {
			resp.Status = "degraded"
			resp.Telemetry = h.Reason
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c echo.Context) error {
	collector := s.registry.Stats()
	if collector == nil {
		return echo.NewHTTPError(http.StatusNotFound, "statistics are disabled")
	}
	return c.JSON(http.StatusOK, StatsResponse{
		Methods:      collector.Snapshot(),
		SinkFailures: collector.SinkFailures(),
	})
}

func (s *Server) handleSettings(c echo.Context) error {
	st := s.registry.Assembler().Settings()
	return c.JSON(http.StatusOK, SettingsResponse{
		MinLevel:           logging.LevelName(st.MinLevel),
		Environment:        st.Environment,
		LogParameters:      st.LogParameters,
		LogReturnValues:    st.LogReturnValues,
		LogExecutionTime:   st.LogExecutionTime,
		TrackDataChanges:   st.TrackDataChanges,
		MaxComparisonDepth: st.MaxComparisonDepth,
		MaxObjectDepth:     st.MaxObjectDepth,
		MaxStringLength:    st.MaxStringLength,
		MaxCollectionItems: st.MaxCollectionItems,
	})
}

func (s *Server) handleScrub(c echo.Context) error {
	scrubber := s.registry.Scrubber()
	if scrubber == nil {
		return echo.NewHTTPError(http.StatusNotFound, "scrubbing is disabled")
	}

	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	ctx := c.Request().Context()
	result := scrubber.Scrub(req.Content)
	s.metrics.observeScrub(ctx, result)
	s.logger.Debug(ctx, "scrubbed content", result.Fields()...)
	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: result.Count(),
		ByRule:        result.ByRule,
	})
}

func (s *Server) handleRender(c echo.Context) error {
	var req RenderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v := s.renderer().RenderNamed(req.Name, req.Value, sensitivity.None())
	return c.JSON(http.StatusOK, RenderResponse{Value: v, Text: v.String()})
}

func (s *Server) handleDiff(c echo.Context) error {
	var req DiffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Depth < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "depth cannot be negative")
	}
	depth := req.Depth
	if depth == 0 {
		depth = s.registry.Assembler().Settings().MaxComparisonDepth
	}

	changes := diff.Compare(req.Before, req.After,
		diff.WithMaxDepth(depth), diff.WithRenderer(s.renderer()))
	if changes == nil {
		changes = []diff.ChangeRecord{}
	}
	return c.JSON(http.StatusOK, DiffResponse{Changes: changes})
}

// renderer renders request payloads under the live settings and the
// instance's redaction policy and scrubber.
func (s *Server) renderer() *render.Renderer {
	st := s.registry.Assembler().Settings()
	opts := render.Options{
		MaxDepth:        st.MaxObjectDepth,
		MaxItems:        st.MaxCollectionItems,
		MaxStringLength: st.MaxStringLength,
		MaxFields:       render.DefaultMaxFields,
		Policy:          s.registry.Policy(),
	}
	if sc := s.registry.Scrubber(); sc != nil {
		opts.Scrubber = sc
	}
	return render.New(opts)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.Addr()))
	return s.echo.Start(s.Addr())
}

// Shutdown gracefully shuts down the server. A ctx without a deadline is
// bounded by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	if _, ok := ctx.Deadline(); !ok && s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout.Duration())
		defer cancel()
	}
	return s.echo.Shutdown(ctx)
}

// routeName is the record method name of a request: its method and route
// pattern, or the raw path for unmatched requests.
func routeName(c echo.Context) string {
	path := c.Path()
	if path == "" {
		path = c.Request().URL.Path
	}
	if path == "" {
		path = "/"
	}
	return strings.ToUpper(c.Request().Method) + " " + path
}
