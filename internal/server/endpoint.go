package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/flowgate/pkg/api"
	"github.com/kode4food/flowgate/pkg/log"
)

type exchangeResult struct {
	err  error
	body string
}

func (s *Server) handleEndpoint(c *gin.Context) {
	flowName := c.Param("flowName")
	if flowName == "" {
		flowName = c.Query("flow")
	}

	var req api.EncryptedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("Invalid endpoint request",
			log.FlowName(flowName),
			log.Error(err))
		writeError(c, http.StatusBadRequest,
			fmt.Errorf("%w: invalid JSON: %w", api.ErrValidation, err))
		return
	}

	ctx, cancel := context.WithTimeout(
		c.Request.Context(), s.cfg.FlowEndpointTimeout,
	)
	defer cancel()

	done := make(chan exchangeResult, 1)
	go func() {
		body, err := s.exchange.Handle(ctx, &req, flowName)
		done <- exchangeResult{body: body, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			status := StatusFor(res.err)
			slog.Error("Endpoint request failed",
				log.FlowName(flowName),
				log.StatusCode(status),
				log.Error(res.err))
			writeError(c, status, res.err)
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(res.body))

	case <-ctx.Done():
		slog.Error("Endpoint request timed out",
			log.FlowName(flowName),
			slog.Duration("timeout", s.cfg.FlowEndpointTimeout))
		writeError(c, http.StatusRequestTimeout, ctx.Err())
	}
}
