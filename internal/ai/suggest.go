package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
)

const suggestPrompt = `You are a thoughtful coach helping someone plan a personal goal.

Given the goal below, propose concrete next milestones that move it forward.

Rules:
- Each milestone is one short imperative sentence (under 12 words).
- Do not repeat existing milestones.
- Do not propose anything listed under "dismissed".
- Return ONLY a JSON array of strings. No markdown fences, no commentary.`

// Suggester produces milestone suggestions for goals and keeps the
// suggestion cache and dismissal list in the local store.
type Suggester struct {
	completer Completer
	local     *store.Store
	maxTokens int
	timeout   time.Duration
	now       func() time.Time
}

// NewSuggester creates a Suggester.
func NewSuggester(completer Completer, local *store.Store, config *Config) *Suggester {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Suggester{
		completer: completer,
		local:     local,
		maxTokens: config.MaxTokens,
		timeout:   config.Timeout,
		now:       time.Now,
	}
	if s.maxTokens <= 0 {
		s.maxTokens = DefaultMaxTokens
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

type suggestContext struct {
	Goal        string   `json:"goal"`
	Description string   `json:"description,omitempty"`
	Motivation  string   `json:"motivation,omitempty"`
	TargetDate  string   `json:"targetDate,omitempty"`
	LifePurpose string   `json:"lifePurpose,omitempty"`
	Existing    []string `json:"existingMilestones"`
	Dismissed   []string `json:"dismissed"`
}

// Suggest asks for up to n milestone suggestions for goal, drops dismissed
// and duplicate ones, caches the result under the goal id and returns it.
func (s *Suggester) Suggest(ctx context.Context, goal *model.Goal, n int) ([]model.Suggestion, error) {
	if s.completer == nil {
		return nil, fmt.Errorf("AI completion is not configured")
	}
	if n <= 0 {
		n = 3
	}

	dismissed := store.ReadSet(ctx, s.local, store.KeyDismissedSuggestions, []string{})
	sc := suggestContext{
		Goal:        goal.Title,
		Description: goal.Description,
		Motivation:  goal.Motivation,
		TargetDate:  goal.TargetDate,
		LifePurpose: store.ReadSet(ctx, s.local, store.KeyLifePurpose, ""),
		Existing:    make([]string, 0, len(goal.Milestones)),
		Dismissed:   dismissed,
	}
	for _, m := range goal.Milestones {
		sc.Existing = append(sc.Existing, m.Title)
	}
	payload, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal goal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	envelope, err := s.completer.Complete(ctx, Request{
		Messages: []Message{
			{Role: "system", Content: suggestPrompt},
			{Role: "user", Content: fmt.Sprintf("Propose %d milestones.\n\n%s", n, payload)},
		},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest milestones: %w", err)
	}

	texts, err := parseSuggestions(envelope)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool)
	for _, t := range append(sc.Existing, dismissed...) {
		skip[normalizeText(t)] = true
	}

	now := s.now().UTC()
	out := make([]model.Suggestion, 0, n)
	for _, t := range texts {
		key := normalizeText(t)
		if key == "" || skip[key] {
			continue
		}
		skip[key] = true
		out = append(out, model.Suggestion{ID: model.NewID(), GoalID: goal.ID, Text: strings.TrimSpace(t), CreatedAt: now})
		if len(out) == n {
			break
		}
	}

	cache := store.ReadSet(ctx, s.local, store.KeyAISuggestions, model.SuggestionCache{})
	if cache == nil {
		cache = model.SuggestionCache{}
	}
	cache[goal.ID] = out
	if err := store.WriteSet(ctx, s.local, store.KeyAISuggestions, cache); err != nil {
		return nil, fmt.Errorf("failed to cache suggestions: %w", err)
	}
	return out, nil
}

// Cached returns the cached suggestions for goalID.
func (s *Suggester) Cached(ctx context.Context, goalID string) []model.Suggestion {
	cache := store.ReadSet(ctx, s.local, store.KeyAISuggestions, model.SuggestionCache{})
	return cache[goalID]
}

// Dismiss removes a cached suggestion and remembers its text so it is not
// proposed again. It returns the dismissed suggestion.
func (s *Suggester) Dismiss(ctx context.Context, suggestionID string) (*model.Suggestion, error) {
	cache := store.ReadSet(ctx, s.local, store.KeyAISuggestions, model.SuggestionCache{})

	for goalID, list := range cache {
		for i, sg := range list {
			if sg.ID != suggestionID {
				continue
			}
			cache[goalID] = append(list[:i:i], list[i+1:]...)
			if len(cache[goalID]) == 0 {
				delete(cache, goalID)
			}

			dismissed := store.ReadSet(ctx, s.local, store.KeyDismissedSuggestions, []string{})
			dismissed = append(dismissed, sg.Text)

			if err := store.WriteSet(ctx, s.local, store.KeyAISuggestions, cache); err != nil {
				return nil, fmt.Errorf("failed to update suggestions: %w", err)
			}
			if err := store.WriteSet(ctx, s.local, store.KeyDismissedSuggestions, dismissed); err != nil {
				return nil, fmt.Errorf("failed to update dismissed list: %w", err)
			}
			return &sg, nil
		}
	}
	return nil, fmt.Errorf("suggestion %s not found", suggestionID)
}

// parseSuggestions extracts the JSON string array from a completion
// envelope's text blocks.
func parseSuggestions(envelope json.RawMessage) ([]string, error) {
	var text strings.Builder
	for _, block := range gjson.GetBytes(envelope, "content").Array() {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
	}

	raw := stripJSONFences(text.String())
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w\nraw: %s", err, raw)
	}
	return out, nil
}

// stripJSONFences removes markdown code fences the model sometimes adds.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
