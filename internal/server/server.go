// Package server provides the HTTP surface of remindd.
//
// The server exposes health and readiness probes, a message ingestion
// endpoint that runs the commitment pipeline synchronously, and a
// read-only reminder query API. Additional routes such as Prometheus
// metrics are registered by the caller through Echo().
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/conversation"
	"github.com/fyrsmithlabs/remindd/internal/logging"
	"github.com/fyrsmithlabs/remindd/internal/pipeline"
	"github.com/fyrsmithlabs/remindd/internal/reminder"
)

const (
	serviceName = "remindd"

	// limiterCleanupInterval bounds how long per-client limiter state is
	// retained. The whole map is dropped at once and active clients
	// rebuild their limiter on the next request.
	limiterCleanupInterval = time.Hour

	defaultListLimit = 50
	maxListLimit     = 500

	readinessTimeout = 2 * time.Second
)

// Processor runs one inbound message through the commitment pipeline.
type Processor interface {
	Process(ctx context.Context, msg *conversation.InboundMessage) (*pipeline.Outcome, error)
}

// Server is the remindd HTTP server.
type Server struct {
	cfg       config.ServerConfig
	echo      *echo.Echo
	processor Processor
	store     reminder.Store
	logger    *logging.Logger

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

// HealthResponse is the JSON body of the health and readiness probes.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Error   string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// processResponse reports where in the pipeline a message terminated.
type processResponse struct {
	State         pipeline.State     `json:"state"`
	Reminder      *reminder.Reminder `json:"reminder,omitempty"`
	TaskID        string             `json:"task_id,omitempty"`
	ScheduleError string             `json:"schedule_error,omitempty"`
}

type listResponse struct {
	Reminders []*reminder.Reminder `json:"reminders"`
	Count     int                  `json:"count"`
}

// NewServer creates the HTTP server.
//
// The server includes:
//   - Echo router with logger, recoverer, and request ID middleware
//   - Health and readiness probes at GET /health and GET /ready
//   - Message ingestion at POST /v1/messages
//   - Reminder queries at GET /v1/reminders and /v1/reminders/:fingerprint
//   - Optional per-client rate limiting on the /v1 group
func NewServer(cfg config.ServerConfig, processor Processor, store reminder.Store, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.MaxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxBodyBytes, 10)))
	}

	if cfg.ReadTimeout > 0 {
		e.Server.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		e.Server.WriteTimeout = cfg.WriteTimeout.Duration()
	}
	if cfg.IdleTimeout > 0 {
		e.Server.IdleTimeout = cfg.IdleTimeout.Duration()
	}

	s := &Server{
		cfg:         cfg,
		echo:        e,
		processor:   processor,
		store:       store,
		logger:      logger,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}

	s.registerRoutes()

	return s
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)

	// Probes stay outside the rate limited group so orchestration
	// platforms are never throttled away from them.
	api := s.echo.Group("/v1")
	if s.cfg.RateLimit.Enabled {
		api.Use(s.clientRateLimit)
	}
	api.POST("/messages", s.handleIngestMessage)
	api.GET("/reminders", s.handleListReminders)
	api.GET("/reminders/:fingerprint", s.handleGetReminder)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: serviceName,
	})
}

// handleReady handles GET /ready requests. Readiness requires the
// reminder store to answer a ping.
func (s *Server) handleReady(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:  "degraded",
			Service: serviceName,
			Error:   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ready",
		Service: serviceName,
	})
}

// handleIngestMessage handles POST /v1/messages. The message is decoded,
// run through the pipeline, and the terminal state is returned. A
// processing failure returns 500 so the sender can redeliver.
func (s *Server) handleIngestMessage(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "unreadable request body"})
	}

	msg, err := conversation.DecodeMessage(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	out, err := s.processor.Process(c.Request().Context(), msg)
	if err != nil {
		s.logger.Error(c.Request().Context(), "message processing failed",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "message processing failed"})
	}

	resp := processResponse{
		State:    out.State,
		Reminder: out.Reminder,
		TaskID:   out.TaskID,
	}
	if out.ScheduleErr != nil {
		resp.ScheduleError = out.ScheduleErr.Error()
	}

	return c.JSON(http.StatusOK, resp)
}

// handleListReminders handles GET /v1/reminders?user_id=...&limit=...
func (s *Server) handleListReminders(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "user_id is required"})
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		limit = n
	}

	reminders, err := s.store.ListByUser(c.Request().Context(), userID, limit)
	if err != nil {
		s.logger.Error(c.Request().Context(), "listing reminders failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "listing reminders failed"})
	}

	return c.JSON(http.StatusOK, listResponse{Reminders: reminders, Count: len(reminders)})
}

// handleGetReminder handles GET /v1/reminders/:fingerprint.
func (s *Server) handleGetReminder(c echo.Context) error {
	fingerprint := c.Param("fingerprint")

	rem, err := s.store.Get(c.Request().Context(), fingerprint)
	if errors.Is(err, reminder.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "reminder not found"})
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "reminder lookup failed",
			zap.String("fingerprint", fingerprint),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "reminder lookup failed"})
	}

	return c.JSON(http.StatusOK, rem)
}

// clientRateLimit rejects requests from clients that exceed the
// configured request rate.
func (s *Server) clientRateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		if !s.limiterFor(ip).Allow() {
			s.logger.Warn(c.Request().Context(), "rate limit exceeded",
				zap.String("client_ip", ip))
			return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		}
		return next(c)
	}
}

// limiterFor returns the rate limiter for a client IP, creating one on
// first sight.
func (s *Server) limiterFor(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastCleanup) > limiterCleanupInterval {
		s.limiters = make(map[string]*rate.Limiter)
		s.lastCleanup = time.Now()
	}

	limiter, ok := s.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit.RPS), s.cfg.RateLimit.Burst)
		s.limiters[ip] = limiter
	}
	return limiter
}

// Start starts the HTTP server and blocks until the context is
// cancelled. When the context is cancelled the server shuts down
// gracefully within the configured timeout and http.ErrServerClosed is
// returned.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(ctx, "http server starting", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.cfg.ShutdownTimeout.Duration(),
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		s.logger.Info(context.Background(), "http server stopped")
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering additional
// routes such as the Prometheus metrics handler.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
