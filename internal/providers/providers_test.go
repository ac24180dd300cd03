package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMockClientChat(t *testing.T) {
	client := NewMockClient()
	client.ResponseText = "hello"

	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "test prompt here"}},
		Model:    "test-model",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !result.Success || result.Content != "hello" {
		t.Errorf("result = %+v", result)
	}
	if result.TotalTokens != result.PromptTokens+result.CompletionTokens {
		t.Error("token totals inconsistent")
	}
	if client.RequestCount() != 1 {
		t.Errorf("request count = %d, want 1", client.RequestCount())
	}
}

func TestMockClientStructured(t *testing.T) {
	client := NewMockClient()
	client.ResponseJSON = json.RawMessage(`{"title":"x"}`)

	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages:       []Message{{Role: "user", Content: "p"}},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if string(result.ParsedJSON) != `{"title":"x"}` {
		t.Errorf("ParsedJSON = %s", result.ParsedJSON)
	}
}

func TestMockClientFailAfter(t *testing.T) {
	client := NewMockClient()
	client.FailAfter = 1

	if _, err := client.Chat(context.Background(), &ChatRequest{}); err != nil {
		t.Fatalf("first call should succeed: %v", err)
	}
	if _, err := client.Chat(context.Background(), &ChatRequest{}); err == nil {
		t.Fatal("second call should fail")
	}
}

func TestRateLimiterConsume(t *testing.T) {
	rl := NewRateLimiter(10)

	consumed := 0
	for rl.TryConsume() {
		consumed++
		if consumed > 100 {
			t.Fatal("limiter never exhausted")
		}
	}
	if consumed != 10 {
		t.Errorf("burst = %d, want 10", consumed)
	}

	status := rl.Status()
	if status.TotalConsumed != 10 {
		t.Errorf("total consumed = %d, want 10", status.TotalConsumed)
	}
	if status.TimeUntilToken <= 0 {
		t.Error("exhausted limiter should report a wait")
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(0.001) // effectively never refills
	for rl.TryConsume() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}

func TestRateLimiterRecord429(t *testing.T) {
	rl := NewRateLimiter(100)
	rl.Record429()
	if rl.TryConsume() {
		t.Error("bucket should be drained after a 429")
	}
}

func TestParseStructuredJSON(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		valid bool
	}{
		{"plain", `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", true},
		{"prose", `Here is the result: {"a":1} hope it helps`, true},
		{"garbage", "not json at all", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseStructuredJSON(tc.in)
			if tc.valid && err != nil {
				t.Fatalf("ParseStructuredJSON(%q) = %v", tc.in, err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("ParseStructuredJSON(%q) should fail, got %s", tc.in, parsed)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"title": {"type": "string"}},
		"required": ["title"]
	}`)

	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"title":"ok"}`)); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}
	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"other":1}`)); err == nil {
		t.Error("missing required field should fail validation")
	}
}

func TestCostUSD(t *testing.T) {
	// gpt-4o-mini: $0.15/1M in, $0.60/1M out
	got := CostUSD("gpt-4o-mini", 1_000_000, 1_000_000)
	want := 0.75
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cost = %v, want %v", got, want)
	}

	// Versioned names fall back to the base model.
	if CostUSD("gpt-4o-mini-2024-07-18", 1000, 0) != CostUSD("gpt-4o-mini", 1000, 0) {
		t.Error("versioned model should use base pricing")
	}

	// Unknown models get the default, never zero.
	if CostUSD("mystery-model", 1000, 1000) == 0 {
		t.Error("unknown model cost should not be zero")
	}
}

func TestEstimateTextTokens(t *testing.T) {
	if got := EstimateTextTokens(""); got != 0 {
		t.Errorf("empty = %d, want 0", got)
	}
	if got := EstimateTextTokens("abcd"); got != 1 {
		t.Errorf("4 chars = %d, want 1", got)
	}
	if got := EstimateTextTokens("abcde"); got != 2 {
		t.Errorf("5 chars = %d, want 2", got)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
	if !IsTransient(&RateLimitError{Message: "slow down"}) {
		t.Error("rate limit should be transient")
	}
	if !IsTransient(&transientStatusError{StatusCode: 503}) {
		t.Error("5xx should be transient")
	}
	if IsTransient(context.Canceled) {
		t.Error("cancellation is not transient")
	}
	if IsTransient(errors.New("schema validation failed")) {
		t.Error("plain errors are not transient")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("30"); got != 30*time.Second {
		t.Errorf("seconds = %v, want 30s", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("garbage = %v, want 0", got)
	}
}

func TestMockOCRProvider(t *testing.T) {
	p := NewMockOCRProvider()
	result, err := p.ProcessImage(context.Background(), []byte{1, 2, 3}, 2)
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if !result.Success || result.Text == "" {
		t.Errorf("result = %+v", result)
	}
}
