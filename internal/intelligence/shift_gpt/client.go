package shift_gpt

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/internal/intelligence/nmr"
	"github.com/turtacn/ShiftScope/pkg/errors"
)

// Usage reports token consumption of one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// UsageObserver receives token usage after every successful call.
type UsageObserver func(model string, u Usage)

// Client implements nmr.LLMResponder over the Anthropic Messages API.
type Client struct {
	api      anthropic.Client
	cfg      Config
	logger   logging.Logger
	observer UsageObserver
	extra    []option.RequestOption
}

var _ nmr.LLMResponder = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithUsageObserver installs a token usage callback.
func WithUsageObserver(fn UsageObserver) ClientOption {
	return func(c *Client) { c.observer = fn }
}

// WithRequestOptions appends raw SDK request options, e.g. a custom HTTP client.
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(c *Client) { c.extra = append(c.extra, opts...) }
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg *Config, log logging.Logger, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrCodeBackendMisconfigured, "language model config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBackendMisconfigured, "invalid language model config")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}

	c := &Client{
		cfg:    *cfg,
		logger: logging.OrNop(log).Named("shift_gpt"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api = anthropic.NewClient(append(reqOpts, c.extra...)...)
	return c, nil
}

// Complete sends the prompt and returns the first text block of the reply.
func (c *Client) Complete(ctx context.Context, prompt nmr.PromptContext) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
		Temperature: anthropic.Float(c.cfg.Temperature),
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	start := time.Now()
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Wrap(err, errors.ErrCodeLLMFailed, "language model request failed").
			WithDetail(c.cfg.Model)
	}

	usage := Usage{InputTokens: msg.Usage.InputTokens, OutputTokens: msg.Usage.OutputTokens}
	if c.observer != nil {
		c.observer(c.cfg.Model, usage)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())

	c.logger.Debug("language model replied",
		logging.String("model", c.cfg.Model),
		logging.String("smiles", prompt.SMILES),
		logging.Int("chars", len(text)),
		logging.Int64("tokens_in", usage.InputTokens),
		logging.Int64("tokens_out", usage.OutputTokens),
		logging.Duration("elapsed", time.Since(start)))

	if text == "" {
		return "", errors.New(errors.ErrCodeLLMEmptyResponse, "language model returned no text").
			WithDetail(string(msg.StopReason))
	}
	return text, nil
}
