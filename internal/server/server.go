package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"zeke-gateway/internal/config"
	"zeke-gateway/internal/metrics"
	"zeke-gateway/internal/provider"
	"zeke-gateway/internal/router"
	"zeke-gateway/internal/tasks"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 45 * time.Second
	idleTimeout         = 120 * time.Second
)

// Server is the gateway's HTTP surface.
type Server struct {
	cfg     config.Config
	router  *router.Router
	metrics *metrics.Metrics
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rt *router.Router, m *metrics.Metrics) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorEnvelopeHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Pre(corsMiddleware)
	e.Use(middleware.Recover())

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		metrics: m,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			if srv.metrics != nil {
				srv.metrics.ObserveRequest(v.Method, c.Path(), v.Status)
			}
			return nil
		},
	}))

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server",
		"addr", s.address,
		"service", s.cfg.Server.ServiceName,
		"gpu_enabled", s.cfg.Server.GPUEnabled(),
	)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the echo app for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/v1/models", s.handleModels)
	s.app.POST("/v1/chat/completions", s.handleChatCompletions)
	s.app.POST("/v1/completions", s.handleCompletions)

	if s.metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	zeke := s.app.Group("/v1/zeke")
	zeke.POST("/code/complete", s.handleTask(tasks.Complete))
	zeke.POST("/code/analyze", s.handleTask(tasks.Analyze))
	zeke.POST("/code/explain", s.handleTask(tasks.Explain))
	zeke.POST("/code/refactor", s.handleTask(tasks.Refactor))
	zeke.POST("/code/test", s.handleTask(tasks.Test))
	zeke.POST("/terminal/assist", s.handleTask(tasks.Terminal))
	zeke.POST("/project/analyze", s.handleTask(tasks.Project))
}

// corsMiddleware sets permissive CORS headers on every response and
// short-circuits OPTIONS preflights, registered paths or not, with an
// empty 200. It runs before routing so unknown paths are covered too.
func corsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusOK)
		}
		return next(c)
	}
}

// requestError is a handler-level failure carrying its HTTP status and
// coarse error-kind tag.
type requestError struct {
	Status  int
	Message string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Code = code
	return c.JSON(status, payload)
}

// errorEnvelopeHandler renders every failure as the error envelope. No
// error escapes a request; the process never dies for one.
func errorEnvelopeHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := "invalid_request_error"
		switch he.Code {
		case http.StatusNotFound:
			code = "not_found"
		case http.StatusMethodNotAllowed:
			code = "method_not_allowed"
		}
		_ = writeError(c, he.Code, fmt.Sprintf("%v", he.Message), code)
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error")
}

// toHTTPError classifies adapter and registry failures into the error
// taxonomy.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: err.Error(),
			Code:    "configuration_error",
		}
	case errors.Is(err, provider.ErrTranslation):
		return requestError{
			Status:  http.StatusBadGateway,
			Message: err.Error(),
			Code:    "translation_error",
		}
	case errors.Is(err, provider.ErrTransport):
		return requestError{
			Status:  http.StatusBadGateway,
			Message: err.Error(),
			Code:    "upstream_error",
		}
	case errors.Is(err, provider.ErrUnknownProvider):
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: err.Error(),
			Code:    "configuration_error",
		}
	}

	return requestError{
		Status:  http.StatusBadGateway,
		Message: "upstream provider error",
		Code:    "upstream_error",
	}
}
