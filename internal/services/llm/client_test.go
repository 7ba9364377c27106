package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"shotline/internal/services"
)

func completionServer(t *testing.T, choice map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{"choices": []any{choice}}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func messageChoice(content string) map[string]any {
	return map[string]any{"message": map[string]any{"content": content}}
}

func TestClientHealthCheck(t *testing.T) {
	server := completionServer(t, messageChoice(`{"ok":true}`))
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := completionServer(t, messageChoice("```json\n{\"ok\":true}\n```"))
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckUnauthorizedIsConfigurationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	err := client.HealthCheck(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	if client.Configured() {
		t.Fatal("client without key should not be configured")
	}
	_, err := client.ClassifyFrame(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg", "")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClassifyFrameSendsInlineImage(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{messageChoice(
			`{"variant":"Midnight Blue","label":"Midnight Blue","angle":"Front","usable":true,"confidence":1.4}`,
		)}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "vision"})
	got, err := client.ClassifyFrame(context.Background(), []byte("fake-bytes"), "image/jpeg", "Trail Runner")
	if err != nil {
		t.Fatalf("ClassifyFrame returned error: %v", err)
	}
	if got.Variant != "midnight-blue" || got.Angle != "front" || !got.Usable || got.Confidence != 1 {
		t.Fatalf("unexpected classification %+v", got)
	}
	if captured.Model != "vision" || len(captured.Messages) != 2 {
		t.Fatalf("unexpected request %+v", captured)
	}
	var parts []contentPart
	if err := json.Unmarshal(captured.Messages[1].Content, &parts); err != nil {
		t.Fatalf("user content should be a part list: %v", err)
	}
	if len(parts) != 2 || parts[1].ImageURL == nil || !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected content parts %+v", parts)
	}
	if !strings.Contains(parts[0].Text, "Trail Runner") {
		t.Fatalf("hint missing from prompt %q", parts[0].Text)
	}
}

func TestClassifyFrameResponseShapes(t *testing.T) {
	payload := `{"variant":"red","label":"Red","usable":true,"confidence":0.8}`
	cases := map[string]map[string]any{
		"code fence": messageChoice("```json\n" + payload + "\n```"),
		"tool call": {
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"content": "",
				"tool_calls": []any{map[string]any{
					"type":     "function",
					"id":       "call_1",
					"function": map[string]any{"name": "classify", "arguments": payload},
				}},
			},
		},
		"delta":       {"delta": map[string]any{"content": payload}},
		"legacy text": {"finish_reason": "stop", "text": payload},
	}
	for name, choice := range cases {
		t.Run(name, func(t *testing.T) {
			server := completionServer(t, choice)
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
			got, err := client.ClassifyFrame(context.Background(), []byte("img"), "image/png", "")
			if err != nil {
				t.Fatalf("ClassifyFrame returned error: %v", err)
			}
			if got.Variant != "red" || got.Confidence != 0.8 || got.Raw == "" {
				t.Fatalf("unexpected classification %+v", got)
			}
		})
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := completionServer(t, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": ""}})
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.ClassifyFrame(context.Background(), []byte("img"), "image/png", "")
	if err == nil {
		t.Fatal("expected classify to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{messageChoice(`{"variant":"red","confidence":0.9}`)}})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	got, err := client.ClassifyFrame(context.Background(), []byte("img"), "image/png", "")
	if err != nil {
		t.Fatalf("ClassifyFrame returned error: %v", err)
	}
	if got.Variant != "red" || calls != 2 {
		t.Fatalf("unexpected result %+v after %d calls", got, calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientExhaustedRetriesAreTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithRetryMaxAttempts(2),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrTransient) || !services.Retryable(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = `{"variant":"blue","confidence":0.75}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{
			map[string]any{"finish_reason": "stop", "message": map[string]any{"content": content}},
		}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	got, err := client.ClassifyFrame(context.Background(), []byte("img"), "image/png", "")
	if err != nil {
		t.Fatalf("ClassifyFrame returned error: %v", err)
	}
	if got.Variant != "blue" || calls != 3 {
		t.Fatalf("unexpected result %+v after %d calls", got, calls)
	}
}

func TestClientRateLimiterHonoursContext(t *testing.T) {
	server := completionServer(t, messageChoice(`{"ok":true}`))
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"}, WithRateLimiter(limiter))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Fatal("second call should fail waiting for the limiter")
	}
}

func TestNormalizeSlug(t *testing.T) {
	cases := map[string]string{
		" Midnight Blue ": "midnight-blue",
		"XL / Red":        "xl-red",
		"--":              "",
		"v2":              "v2",
	}
	for in, want := range cases {
		if got := normalizeSlug(in); got != want {
			t.Errorf("normalizeSlug(%q) = %q, want %q", in, got, want)
		}
	}
}
