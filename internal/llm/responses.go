// Package llm calls an OpenAI-compatible Responses endpoint to refine text.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"vochat/internal/refine"
)

// Config selects the model endpoint.
type Config struct {
	APIKey  string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Model   string        `yaml:"model" env:"VOCHAT_REFINE_MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"VOCHAT_REFINE_TIMEOUT"`
}

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("refinement model not configured")

// Client refines text with one Responses call.
type Client struct {
	client openai.Client
	model  string
	logger zerolog.Logger
	tokens metric.Int64Counter
}

// NewClient builds a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	tokens, err := otel.Meter("vochat/llm").Int64Counter("vochat.llm.tokens",
		metric.WithDescription("Tokens consumed by refinement calls"))
	if err != nil {
		return nil, err
	}

	return &Client{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
		tokens: tokens,
	}, nil
}

// Refine sends the system prompt as instructions and the raw text as input.
func (c *Client) Refine(ctx context.Context, req refine.ModelRequest) (string, error) {
	params := responses.ResponseNewParams{
		Model:        c.model,
		Instructions: openai.String(req.System),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.Input),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}

	c.tokens.Add(ctx, resp.Usage.InputTokens, metric.WithAttributes(attribute.String("direction", "input")))
	c.tokens.Add(ctx, resp.Usage.OutputTokens, metric.WithAttributes(attribute.String("direction", "output")))
	c.logger.Debug().
		Str("model", c.model).
		Int64("inputTokens", resp.Usage.InputTokens).
		Int64("outputTokens", resp.Usage.OutputTokens).
		Msg("refinement model replied")

	return resp.OutputText(), nil
}

// Disabled stands in for a client when no API key is configured; every call
// fails so refinement reports itself unavailable.
type Disabled struct{}

func (Disabled) Refine(context.Context, refine.ModelRequest) (string, error) {
	return "", ErrNotConfigured
}
