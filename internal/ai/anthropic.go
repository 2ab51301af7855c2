package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

// AnthropicCompleter is a Completer backed by the Anthropic Messages API.
type AnthropicCompleter struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewAnthropicCompleter creates a completer. apiKey defaults to the
// ANTHROPIC_API_KEY environment variable; model defaults to DefaultModel.
func NewAnthropicCompleter(apiKey, model string) (*AnthropicCompleter, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	inner := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	m := anthropic.Model(DefaultModel)
	if model != "" {
		m = anthropic.Model(model)
	}

	return &AnthropicCompleter{inner: inner, model: m}, nil
}

// Complete implements Completer. System turns become the system prompt.
func (c *AnthropicCompleter) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(req.MaxTokens),
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			msg := gjson.Get(apiErr.RawJSON(), "error.message").String()
			if msg == "" {
				msg = http.StatusText(apiErr.StatusCode)
			}
			return nil, &UpstreamError{Status: apiErr.StatusCode, Message: msg}
		}
		return nil, fmt.Errorf("claude API call: %w", err)
	}

	return json.RawMessage(resp.RawJSON()), nil
}
