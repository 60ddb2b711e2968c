// Package httpapi exposes medtrack over a JSON HTTP API.
//
// Clients sign in with POST /api/auth/login or /api/auth/signup and send the
// returned token as "Authorization: Bearer <token>" on every other route.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/roach88/medtrack/internal/auth"
	"github.com/roach88/medtrack/internal/clock"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/store"
	"github.com/roach88/medtrack/internal/validate"
)

const shutdownTimeout = 5 * time.Second

// Server routes API requests to the auth and medication components.
//
// Thread-safety: safe for concurrent requests. Medication changes for one
// patient are serialized so a read-modify-write toggle cannot interleave.
type Server struct {
	store     store.RecordStore
	auth      *auth.Service
	tokens    *auth.TokenManager
	validator *validate.Validator
	clock     clock.Clock
	logger    *slog.Logger
	origins   []string
	patients  *keyedMutex
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the time source for new medications and lastTaken stamps.
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithAllowedOrigins restricts CORS to origins. By default any origin is
// allowed.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates a Server.
func New(st store.RecordStore, svc *auth.Service, tokens *auth.TokenManager, v *validate.Validator, opts ...Option) *Server {
	s := &Server{
		store:     st,
		auth:      svc,
		tokens:    tokens,
		validator: v,
		clock:     clock.System{},
		logger:    slog.Default(),
		patients:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.origins
	}
	router.Use(cors.New(corsConfig))
	router.Use(gzip.Gzip(gzip.BestSpeed))

	api := router.Group("/api")
	api.POST("/auth/login", s.login)
	api.POST("/auth/signup", s.signup)

	authed := api.Group("", s.requireAuth())
	authed.GET("/me", s.me)

	patient := authed.Group("", s.requireRole(record.RolePatient))
	patient.GET("/medications", s.listMedications)
	patient.POST("/medications", s.addMedication)
	patient.POST("/medications/:id/taken", s.markTaken)
	patient.GET("/stats", s.stats)

	caretaker := authed.Group("", s.requireRole(record.RoleCaretaker))
	caretaker.GET("/overview", s.overview)

	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// writeError maps err onto a status code and body. Messages never carry
// store details.
func (s *Server) writeError(c *gin.Context, err error) {
	var fieldErrs validate.FieldErrors
	if errors.As(err, &fieldErrs) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrs})
		return
	}

	status := http.StatusInternalServerError
	switch record.CodeOf(err) {
	case record.ErrCodeValidation:
		status = http.StatusBadRequest
	case record.ErrCodeInvalidCredentials, record.ErrCodeUnauthenticated:
		status = http.StatusUnauthorized
	case record.ErrCodeAlreadyExists:
		status = http.StatusConflict
	case record.ErrCodeNotFound:
		status = http.StatusNotFound
	case record.ErrCodeBusy:
		status = http.StatusTooManyRequests
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": record.Message(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}
