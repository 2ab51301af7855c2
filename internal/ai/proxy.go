package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"
)

// CompletePath is the route served by Proxy.
const CompletePath = "/api/ai/complete"

// maxBodyBytes bounds the request body.
const maxBodyBytes = 1 << 20

// Config holds proxy settings.
type Config struct {
	// MaxTokens is the ceiling for max_tokens. Requests above it, or
	// without a value, are clamped to it.
	MaxTokens int
	// Timeout bounds one upstream call.
	Timeout time.Duration
	// Logger for proxy activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxTokens: DefaultMaxTokens,
		Timeout:   DefaultTimeout,
		Logger:    log.New(os.Stderr, "[ai] ", log.LstdFlags),
	}
}

// Proxy is the completion endpoint.
type Proxy struct {
	completer Completer
	config    *Config
}

// NewProxy creates a Proxy. completer may be nil when no credential is
// configured; requests then fail with 503.
func NewProxy(completer Completer, config *Config) *Proxy {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	return &Proxy{completer: completer, config: config}
}

// Register mounts the proxy on mux.
func (p *Proxy) Register(mux *http.ServeMux) {
	mux.Handle("POST "+CompletePath, p)
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if p.completer == nil {
		writeError(w, http.StatusServiceUnavailable, "AI completion is not configured")
		return
	}

	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.MaxTokens = p.clamp(req.MaxTokens)

	envelope, err := p.complete(r.Context(), req)
	if err != nil {
		status, msg := p.classify(err)
		p.config.Logger.Printf("Completion failed (%d): %v", status, err)
		writeError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(envelope); err != nil {
		p.config.Logger.Printf("write response: %v", err)
	}
}

// clamp applies the max_tokens ceiling.
func (p *Proxy) clamp(n int) int {
	if n <= 0 || n > p.config.MaxTokens {
		return p.config.MaxTokens
	}
	return n
}

// complete runs the upstream call under the timeout. It returns as soon as
// the deadline passes even if the completer ignores cancellation.
func (p *Proxy) complete(parent context.Context, req Request) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(parent, p.config.Timeout)
	defer cancel()

	type result struct {
		envelope json.RawMessage
		err      error
	}
	done := make(chan result, 1)
	go func() {
		env, err := p.completer.Complete(ctx, req)
		done <- result{env, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return res.envelope, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// classify maps an error to the status and message sent to the caller.
func (p *Proxy) classify(err error) (int, string) {
	var up *UpstreamError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "AI request timed out"
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled"
	case errors.As(err, &up):
		status := up.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return status, up.Message
	default:
		return http.StatusBadGateway, "AI request failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
