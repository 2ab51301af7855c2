package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
)

// fakeCompleter records the last request and answers with a canned result.
type fakeCompleter struct {
	delay     time.Duration
	envelope  string
	err       error
	ignoreCtx bool

	got Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	f.got = req
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.envelope), nil
}

const okEnvelope = `{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn"}`

func quietProxy(c Completer, maxTokens int, timeout time.Duration) *Proxy {
	return NewProxy(c, &Config{MaxTokens: maxTokens, Timeout: timeout, Logger: log.New(io.Discard, "", 0)})
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, CompletePath, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %q", rec.Body.String())
	}
	return body["error"]
}

func TestProxyPassesEnvelopeThrough(t *testing.T) {
	fc := &fakeCompleter{envelope: okEnvelope}
	p := quietProxy(fc, 1000, time.Second)

	rec := post(t, p, `{"messages":[{"role":"user","content":"hi"}],"temperature":0.3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != okEnvelope {
		t.Errorf("envelope was altered: %s", rec.Body.String())
	}
	if fc.got.Temperature == nil || *fc.got.Temperature != 0.3 {
		t.Errorf("temperature not forwarded: %+v", fc.got.Temperature)
	}
}

func TestProxyClampsMaxTokens(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{requested: 0, want: 1000},
		{requested: 200, want: 200},
		{requested: 1000, want: 1000},
		{requested: 50000, want: 1000},
	}
	for _, tt := range tests {
		fc := &fakeCompleter{envelope: okEnvelope}
		p := quietProxy(fc, 1000, time.Second)

		body := `{"messages":[{"role":"user","content":"hi"}]`
		if tt.requested > 0 {
			body += fmt.Sprintf(`,"max_tokens":%d`, tt.requested)
		}
		body += `}`

		rec := post(t, p, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("requested %d: expected 200, got %d", tt.requested, rec.Code)
		}
		if fc.got.MaxTokens != tt.want {
			t.Errorf("requested %d: forwarded %d, want %d", tt.requested, fc.got.MaxTokens, tt.want)
		}
	}
}

// An upstream slower than the timeout yields 504 instead of a hang, even
// when the completer ignores cancellation.
func TestProxyTimeout(t *testing.T) {
	for _, ignore := range []bool{false, true} {
		fc := &fakeCompleter{envelope: okEnvelope, delay: 2 * time.Second, ignoreCtx: ignore}
		p := quietProxy(fc, 1000, 80*time.Millisecond)

		start := time.Now()
		rec := post(t, p, `{"messages":[{"role":"user","content":"hi"}]}`)
		elapsed := time.Since(start)

		if rec.Code != http.StatusGatewayTimeout {
			t.Fatalf("ignoreCtx=%v: expected 504, got %d", ignore, rec.Code)
		}
		if msg := errorMessage(t, rec); !strings.Contains(msg, "timed out") {
			t.Errorf("expected timed out message, got %q", msg)
		}
		if elapsed > time.Second {
			t.Errorf("ignoreCtx=%v: caller waited %v", ignore, elapsed)
		}
	}
}

func TestProxyMirrorsUpstreamStatus(t *testing.T) {
	fc := &fakeCompleter{err: &UpstreamError{Status: http.StatusTooManyRequests, Message: "rate limited"}}
	p := quietProxy(fc, 1000, time.Second)

	rec := post(t, p, `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "rate limited" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestProxyGenericFailure(t *testing.T) {
	fc := &fakeCompleter{err: io.ErrUnexpectedEOF}
	p := quietProxy(fc, 1000, time.Second)

	rec := post(t, p, `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestProxyRejectsInvalidRequests(t *testing.T) {
	p := quietProxy(&fakeCompleter{envelope: okEnvelope}, 1000, time.Second)

	for name, body := range map[string]string{
		"not json":      `{`,
		"no messages":   `{"messages":[]}`,
		"bad role":      `{"messages":[{"role":"robot","content":"hi"}]}`,
		"empty content": `{"messages":[{"role":"user","content":"  "}]}`,
		"bad temp":      `{"messages":[{"role":"user","content":"hi"}],"temperature":3}`,
	} {
		rec := post(t, p, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
		if errorMessage(t, rec) == "" {
			t.Errorf("%s: expected error message", name)
		}
	}
}

func TestProxyWithoutCompleter(t *testing.T) {
	p := quietProxy(nil, 1000, time.Second)
	rec := post(t, p, `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestProxyRegisterRoutesPostOnly(t *testing.T) {
	mux := http.NewServeMux()
	quietProxy(&fakeCompleter{envelope: okEnvelope}, 1000, time.Second).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CompletePath, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}

	rec = post(t, mux, `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for POST, got %d", rec.Code)
	}
}

func setupSuggester(t *testing.T, envelope string) (*Suggester, *store.Store, *fakeCompleter) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "goalritual.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	fc := &fakeCompleter{envelope: envelope}
	return NewSuggester(fc, s, &Config{MaxTokens: 500, Timeout: time.Second}), s, fc
}

func textEnvelope(text string) string {
	b, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return string(b)
}

func TestSuggestFiltersAndCaches(t *testing.T) {
	env := textEnvelope("```json\n[\"Run 5k\", \"Buy shoes\", \"Join a club\", \"run 5K\"]\n```")
	sg, s, fc := setupSuggester(t, env)
	ctx := context.Background()

	if err := store.WriteSet(ctx, s, store.KeyDismissedSuggestions, []string{"Join a club"}); err != nil {
		t.Fatalf("failed to seed dismissed: %v", err)
	}

	goal := model.NewGoal("Run a marathon", time.Now())
	goal.Milestones = []model.Milestone{model.NewMilestone("Buy shoes", "")}

	got, err := sg.Suggest(ctx, &goal, 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 1 || got[0].Text != "Run 5k" || got[0].GoalID != goal.ID {
		t.Fatalf("unexpected suggestions: %+v", got)
	}
	if fc.got.MaxTokens != 500 || fc.got.Messages[0].Role != "system" {
		t.Errorf("unexpected request: %+v", fc.got)
	}

	cached := sg.Cached(ctx, goal.ID)
	if len(cached) != 1 || cached[0].ID != got[0].ID {
		t.Errorf("suggestions not cached: %+v", cached)
	}
}

func TestDismissSuggestion(t *testing.T) {
	sg, s, _ := setupSuggester(t, textEnvelope(`["Run 5k","Stretch daily"]`))
	ctx := context.Background()

	goal := model.NewGoal("Run a marathon", time.Now())
	got, err := sg.Suggest(ctx, &goal, 3)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}

	dismissed, err := sg.Dismiss(ctx, got[0].ID)
	if err != nil {
		t.Fatalf("Dismiss failed: %v", err)
	}
	if dismissed.Text != "Run 5k" {
		t.Errorf("dismissed wrong suggestion: %+v", dismissed)
	}

	if cached := sg.Cached(ctx, goal.ID); len(cached) != 1 || cached[0].Text != "Stretch daily" {
		t.Errorf("unexpected cache after dismiss: %+v", cached)
	}
	list := store.ReadSet(ctx, s, store.KeyDismissedSuggestions, []string{})
	if len(list) != 1 || list[0] != "Run 5k" {
		t.Errorf("unexpected dismissed list: %v", list)
	}

	if _, err := sg.Dismiss(ctx, "missing"); err == nil {
		t.Error("expected error for unknown suggestion")
	}
}

func TestSuggestBadModelOutput(t *testing.T) {
	sg, _, _ := setupSuggester(t, textEnvelope("I think you should run more."))
	goal := model.NewGoal("Run", time.Now())
	if _, err := sg.Suggest(context.Background(), &goal, 3); err == nil {
		t.Error("expected parse error")
	}
}

func TestStripJSONFences(t *testing.T) {
	for in, want := range map[string]string{
		`["a"]`:                    `["a"]`,
		"```json\n[\"a\"]\n```":    `["a"]`,
		"  \n```\n[\"a\"]\n```\n ": `["a"]`,
	} {
		if got := stripJSONFences(in); got != want {
			t.Errorf("stripJSONFences(%q) = %q, want %q", in, got, want)
		}
	}
}
