package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/flowgate/internal/codec"
	"github.com/kode4food/flowgate/internal/config"
	"github.com/kode4food/flowgate/pkg/api"
)

type (
	// Exchanger answers encrypted data-exchange requests
	Exchanger interface {
		Handle(
			ctx context.Context, req *api.EncryptedRequest, flowName string,
		) (string, error)
	}

	// WebhookProcessor applies a raw webhook delivery
	WebhookProcessor interface {
		Process(ctx context.Context, raw []byte, signature string) error
	}

	// Server implements the HTTP routes of the service
	Server struct {
		cfg      *config.Config
		exchange Exchanger
		webhooks WebhookProcessor
		inflight sync.WaitGroup
		mu       sync.Mutex
		closing  bool
	}
)

const (
	// StatusMisdirected tells the platform to refresh its copy of the
	// public key
	StatusMisdirected = http.StatusMisdirectedRequest

	internalErrorMessage = "internal server error"
)

var ErrShuttingDown = errors.New("server is shutting down")

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config, exch Exchanger, hooks WebhookProcessor,
) *Server {
	return &Server{
		cfg:      cfg,
		exchange: exch,
		webhooks: hooks,
	}
}

// SetupRoutes configures and returns the HTTP router with all endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// Health check
	router.GET("/health", s.handleHealth)

	// Data exchange endpoint
	router.POST("/flows/endpoint", s.handleEndpoint)
	router.POST("/flows/endpoint/:flowName", s.handleEndpoint)

	// Platform webhooks
	hooks := router.Group("/webhooks")
	{
		hooks.GET("/whatsapp", s.handleVerify)
		hooks.POST("/whatsapp", s.handleWebhook)
	}

	return router
}

// Wait stops accepting webhook work, then blocks until in-flight
// processing finishes or ctx is done
func (s *Server) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track runs fn on a goroutine counted by Wait. It refuses once Wait has
// been called
func (s *Server) track(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn()
	}()
	return true
}

// StatusFor maps a processing error to the HTTP status reported to the
// platform
func StatusFor(err error) int {
	switch {
	case errors.Is(err, codec.ErrKeyDecryption):
		return StatusMisdirected
	case errors.Is(err, codec.ErrDecryption),
		errors.Is(err, codec.ErrEncryption):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, api.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = internalErrorMessage
	}
	c.JSON(status, api.ErrorResponse{
		Error:  msg,
		Status: status,
	})
}
