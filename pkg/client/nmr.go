package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// PredictRequest is the body of POST /api/v1/nmr/predict.
type PredictRequest struct {
	Structure   string `json:"structure"`
	BypassCache bool   `json:"bypass_cache,omitempty"`
}

// Readiness mirrors the /readyz response.
type Readiness struct {
	Status     string                        `json:"status"`
	Components map[string]ComponentReadiness `json:"components"`
}

// ComponentReadiness is one dependency's readiness.
type ComponentReadiness struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Predict runs the prediction cascade on the server for structure.
func (c *Client) Predict(ctx context.Context, structure string) (*types.Prediction, error) {
	return c.PredictWithOptions(ctx, &PredictRequest{Structure: structure})
}

// PredictWithOptions is Predict with full control over the request.
func (c *Client) PredictWithOptions(ctx context.Context, req *PredictRequest) (*types.Prediction, error) {
	if req == nil || strings.TrimSpace(req.Structure) == "" {
		return nil, errors.New(errors.ErrCodeNoStructure, "structure is required")
	}
	var p types.Prediction
	if err := c.do(ctx, http.MethodPost, "/api/v1/nmr/predict", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// InvalidateCache drops every cached prediction and returns how many were
// removed.
func (c *Client) InvalidateCache(ctx context.Context) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/nmr/cache", nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// Ready queries /readyz. A not-ready server is returned as an *APIError with
// status 503 after retries are exhausted.
func (c *Client) Ready(ctx context.Context) (*Readiness, error) {
	var r Readiness
	if err := c.do(ctx, http.MethodGet, "/readyz", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
