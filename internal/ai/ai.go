// Package ai forwards chat-completion requests to the model provider with a
// server-held credential and builds milestone suggestions on top of it.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultMaxTokens is the ceiling applied to every request.
	DefaultMaxTokens = 1000
	// DefaultTimeout bounds one upstream call.
	DefaultTimeout = 8 * time.Second
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body accepted by the completion endpoint.
type Request struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Validate checks roles, contents and ranges.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("message %d has empty content", i)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	return nil
}

// Completer sends a validated request upstream and returns the provider's
// completion envelope unchanged.
type Completer interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// UpstreamError is a failure reported by the provider, carrying the HTTP
// status the proxy mirrors.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("upstream error: %d %s", e.Status, e.Message)
}
