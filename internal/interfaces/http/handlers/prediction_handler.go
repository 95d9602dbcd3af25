package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ShiftScope/internal/application/prediction"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/pkg/errors"
)

// PredictRequest is the body of POST /api/v1/nmr/predict.
type PredictRequest struct {
	Structure   string `json:"structure"`
	BypassCache bool   `json:"bypass_cache,omitempty"`
}

// PredictionHandler serves NMR predictions.
type PredictionHandler struct {
	svc     prediction.Service
	logger  logging.Logger
	timeout time.Duration
}

// NewPredictionHandler creates a handler. A positive timeout bounds every
// prediction request.
func NewPredictionHandler(svc prediction.Service, logger logging.Logger, timeout time.Duration) *PredictionHandler {
	return &PredictionHandler{
		svc:     svc,
		logger:  logging.OrNop(logger),
		timeout: timeout,
	}
}

// Predict handles POST /api/v1/nmr/predict.
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "request body must be a JSON object"))
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	p, err := h.svc.Predict(ctx, &prediction.PredictInput{
		Structure:   req.Structure,
		BypassCache: req.BypassCache,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Invalidate handles DELETE /api/v1/nmr/cache.
func (h *PredictionHandler) Invalidate(c *gin.Context) {
	n, err := h.svc.Invalidate(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
