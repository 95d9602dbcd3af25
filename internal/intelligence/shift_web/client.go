// Package shift_web calls a remote ¹H/¹³C prediction service. The answer is
// read leniently: the service family has shipped several response shapes and
// all of them are accepted.
package shift_web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/internal/intelligence/nmr"
	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

const maxResponseBytes = 4 << 20

// Config holds settings for the web prediction back-end.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	UserAgent       string
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client implements nmr.WebPredictor.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
	logger     logging.Logger
}

var _ nmr.WebPredictor = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, log logging.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New(errors.ErrCodeBackendMisconfigured, "web service base url must be an absolute http(s) url").
			WithDetail(cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "shiftscope"
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + "/predict",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrNop(log).Named("shift_web"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type predictRequest struct {
	SMILES string   `json:"smiles"`
	Nuclei []string `json:"nuclei"`
}

// statusError is a non-2xx answer.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("HTTP %d", e.status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Predict posts smiles to the service and returns its ¹H and ¹³C peaks.
func (c *Client) Predict(ctx context.Context, smiles string) (*nmr.ServicePeaks, error) {
	payload, err := json.Marshal(predictRequest{SMILES: smiles, Nuclei: []string{"1H", "13C"}})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode prediction request")
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := c.post(ctx, payload)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !retryable(se.status) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		body = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialInterval
	policy.MaxInterval = c.cfg.MaxInterval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying web prediction", logging.Int("attempt", attempt), logging.Duration("wait", wait), logging.Err(err))
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, errors.ErrCodeWebServiceFailed, "web prediction service failed").
			WithDetail(fmt.Sprintf("%d attempt(s)", attempt))
	}

	peaks, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("web prediction received",
		logging.String("smiles", smiles),
		logging.Int("proton_peaks", len(peaks.Proton)),
		logging.Int("carbon_peaks", len(peaks.Carbon)))
	return peaks, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &statusError{status: resp.StatusCode, body: snippet}
	}
	return body, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Response parsing
// ─────────────────────────────────────────────────────────────────────────────

var (
	wrapperKeys = []string{"data", "result", "prediction"}
	protonKeys  = []string{"1H", "1h", "proton", "H", "hydrogen"}
	carbonKeys  = []string{"13C", "13c", "carbon", "C"}
	deltaKeys   = []string{"delta", "shift", "ppm", "x"}
	countKeys   = []string{"nbAtoms", "atomCount", "count", "integration", "nbH"}
	idKeys      = []string{"atomIDs", "atomIds", "atoms", "atomIndices"}
)

// ParseResponse reads peak lists out of a service answer. It accepts peak
// arrays under 1H/13C, proton/carbon or H/C keys, optionally wrapped in
// data/result objects and optionally as {"peaks": [...]} objects.
func ParseResponse(body []byte) (*nmr.ServicePeaks, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New(errors.ErrCodeWebServiceFailed, "web prediction service returned invalid JSON")
	}
	root := gjson.ParseBytes(body)
	for _, k := range wrapperKeys {
		if w := root.Get(k); w.IsObject() {
			root = w
			break
		}
	}
	if !root.IsObject() {
		return nil, errors.New(errors.ErrCodeWebServiceFailed, "web prediction service returned no object")
	}
	return &nmr.ServicePeaks{
		Proton: readPeaks(firstOf(root, protonKeys)),
		Carbon: readPeaks(firstOf(root, carbonKeys)),
	}, nil
}

func firstOf(obj gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if r := obj.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func readPeaks(v gjson.Result) []types.RawPeak {
	if v.IsObject() {
		v = v.Get("peaks")
	}
	if !v.IsArray() {
		return nil
	}
	out := make([]types.RawPeak, 0, len(v.Array()))
	v.ForEach(func(_, item gjson.Result) bool {
		var delta gjson.Result
		if item.Type == gjson.Number {
			delta = item
		} else {
			delta = firstOf(item, deltaKeys)
		}
		if delta.Type != gjson.Number {
			return true
		}
		d := delta.Float()
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return true
		}
		peak := types.RawPeak{Delta: d, AtomCount: 1}
		if item.IsObject() {
			if n := firstOf(item, countKeys); n.Type == gjson.Number {
				if cnt := int(math.Round(n.Float())); cnt >= 1 {
					peak.AtomCount = cnt
				}
			}
			if ids := firstOf(item, idKeys); ids.IsArray() {
				for _, id := range ids.Array() {
					if id.Type == gjson.Number {
						peak.AtomIDs = append(peak.AtomIDs, int(id.Int()))
					}
				}
			}
		}
		out = append(out, peak)
		return true
	})
	return out
}
