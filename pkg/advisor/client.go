// Package advisor wraps the external advisory model that recommends
// coaching strategies. The coaching core depends only on the Client
// interface; the SDK-backed implementation lives here.
package advisor

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client defines the advisory-model operations used by the decision engine.
type Client interface {
	Recommend(ctx context.Context, prompt string) (*Recommendation, error)
}

// Recommendation is the structured coaching recommendation the advisory
// model returns. Strategy is validated downstream at the parse boundary
// into the closed enum; here it stays a raw tag.
type Recommendation struct {
	Strategy    string           `json:"strategy"`
	TargetRound int              `json:"target_round,omitempty"`
	NewPrompt   string           `json:"new_prompt,omitempty"`
	Examples    []map[string]any `json:"examples,omitempty"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Confidence  float64          `json:"confidence"`
}

// systemText frames every advisory call. The model must answer with a
// single JSON object and nothing else.
const systemText = "You are a meta-coach for document extraction agents. " +
	"Respond with a single valid JSON object matching the requested schema. " +
	"Do not include any prose outside the JSON."

// Option configures the SDK-backed client.
type Option func(*sdkClient)

// WithModel sets the advisory model ID.
func WithModel(model string) Option {
	return func(c *sdkClient) { c.model = model }
}

// WithMaxTokens sets the response token budget.
func WithMaxTokens(n int64) Option {
	return func(c *sdkClient) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Advisory calls default
// to 0.1 for consistent recommendations.
func WithTemperature(t float64) Option {
	return func(c *sdkClient) { c.temperature = t }
}

// WithRateLimit caps advisory calls per minute.
func WithRateLimit(perMinute float64) Option {
	return func(c *sdkClient) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perMinute/60), 1)
		}
	}
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature float64
	limiter     *rate.Limiter
}

// NewClient creates an advisory client. An empty API key is a
// configuration error: the coach must not run without an advisor.
func NewClient(apiKey string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("advisor: missing API key")
	}

	c := &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:       "claude-sonnet-4-5-20250929",
		maxTokens:   2048,
		temperature: 0.1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *sdkClient) Recommend(ctx context.Context, prompt string) (*Recommendation, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "advisor: rate limit wait")
		}
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: sdk.Float(c.temperature),
		System: []sdk.TextBlockParam{
			{Text: systemText},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "advisor: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	rec, err := ParseRecommendation(text.String())
	if err != nil {
		return nil, err
	}

	zap.L().Debug("advisor: recommendation received",
		zap.String("model", string(msg.Model)),
		zap.String("strategy", rec.Strategy),
		zap.Float64("confidence", rec.Confidence),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	return rec, nil
}

// ParseRecommendation decodes the advisory response body. Markdown code
// fences are tolerated; anything else non-JSON is an error so the caller
// can retry or fall back.
func ParseRecommendation(raw string) (*Recommendation, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return nil, eris.New("advisor: empty response")
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return nil, eris.Wrap(err, "advisor: parse recommendation")
	}
	return &rec, nil
}
