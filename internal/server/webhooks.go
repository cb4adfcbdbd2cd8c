package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/flowgate/internal/webhook"
	"github.com/kode4food/flowgate/pkg/api"
	"github.com/kode4food/flowgate/pkg/log"
)

const hubModeSubscribe = "subscribe"

func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != hubModeSubscribe || !s.verifyTokenMatches(token) {
		slog.Warn("Webhook verification failed",
			slog.String("mode", mode))
		c.Status(http.StatusForbidden)
		return
	}

	slog.Info("Webhook verified")
	c.String(http.StatusOK, challenge)
}

func (s *Server) verifyTokenMatches(token string) bool {
	want := s.cfg.VerifyToken
	if want == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

// handleWebhook acknowledges every delivery at once, then processes it on a
// tracked goroutine detached from the request. Deliveries arriving after
// shutdown began get 503 so the platform redelivers them
func (s *Server) handleWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		slog.Error("Failed to read webhook body", log.Error(err))
		c.JSON(http.StatusOK, api.AckResponse{Success: true})
		return
	}
	signature := c.GetHeader(webhook.SignatureHeader)
	parent := context.WithoutCancel(c.Request.Context())

	accepted := s.track(func() {
		ctx, cancel := context.WithTimeout(
			parent, s.cfg.WebhookProcessTimeout,
		)
		defer cancel()

		err := s.webhooks.Process(ctx, raw, signature)
		switch {
		case err == nil:
		case errors.Is(err, webhook.ErrInvalidSignature):
			slog.Warn("Webhook rejected", log.Error(err))
		default:
			slog.Error("Webhook processing error", log.Error(err))
		}
	})
	if !accepted {
		slog.Warn("Webhook refused during shutdown")
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{
			Error:  ErrShuttingDown.Error(),
			Status: http.StatusServiceUnavailable,
		})
		return
	}

	c.JSON(http.StatusOK, api.AckResponse{Success: true})
}
