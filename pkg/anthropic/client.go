// Package anthropic is a thin single-turn wrapper over the Anthropic Messages
// API, small enough to mock in tests.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// StatusOverloaded is the status the API answers with when it sheds load.
const StatusOverloaded = 529

// Client sends one prompt and returns the model's answer.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single user turn with an optional system prompt.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Prompt      string
	Temperature *float64
}

// MessageResponse carries the text blocks of the answer, joined.
type MessageResponse struct {
	ID         string
	Text       string
	StopReason string
	Usage      Usage
}

// Usage is the token count of one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// pricePerMTok is {input, output} USD per million tokens.
var pricePerMTok = map[string][2]float64{
	"claude-haiku-4-5":           {1, 5},
	"claude-haiku-4-5-20251001":  {1, 5},
	"claude-sonnet-4-5":          {3, 15},
	"claude-sonnet-4-5-20250929": {3, 15},
}

// Cost estimates the USD cost of u. Unknown models cost 0.
func (u Usage) Cost(model string) float64 {
	p := pricePerMTok[model]
	return (float64(u.InputTokens)*p[0] + float64(u.OutputTokens)*p[1]) / 1e6
}

// Log records u and its estimated cost.
func (u Usage) Log(model, phase string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.Cost(model)),
	)
}

// StatusCode digs the HTTP status out of an API error, or returns 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type sdkClient struct {
	api sdk.Client
}

// NewClient returns a Client on the official SDK with its built-in retries
// turned off, since callers retry on their own schedule.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &sdkClient{api: sdk.NewClient(opts...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &MessageResponse{
		ID:         msg.ID,
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage:      Usage{InputTokens: msg.Usage.InputTokens, OutputTokens: msg.Usage.OutputTokens},
	}, nil
}
