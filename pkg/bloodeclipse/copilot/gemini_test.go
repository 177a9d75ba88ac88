package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"
)

func newGeminiTestServer(t *testing.T, reply string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestGeminiClient_Complete(t *testing.T) {
	srv, body := newGeminiTestServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"  pog, no cap  "}]},"finishReason":"STOP"}]}`)

	g, err := NewGeminiClient(context.Background(), CompletionConfig{
		GeminiAPIKey:  "gem-key",
		GeminiBaseURL: srv.URL + "/",
		Model:         "gpt-4o-mini",
		MaxTokens:     600,
		Temperature:   0.8,
		TopP:          0.9,
		Timeout:       5 * time.Second,
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	if g.model != defaultGeminiModel {
		t.Errorf("model = %q, want %q", g.model, defaultGeminiModel)
	}

	text, err := g.Complete(context.Background(), "persona", "what is pog?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "pog, no cap" {
		t.Errorf("text = %q", text)
	}
	if _, ok := (*body)["systemInstruction"]; !ok {
		t.Error("request should carry the system instruction")
	}

	gen, _ := (*body)["generationConfig"].(map[string]any)
	thinking, _ := gen["thinkingConfig"].(map[string]any)
	if budget, ok := thinking["thinkingBudget"].(float64); !ok || budget != 0 {
		t.Errorf("thinkingConfig = %v, want thinking disabled for %s", gen["thinkingConfig"], defaultGeminiModel)
	}
}

func TestThinkingConfig(t *testing.T) {
	tests := []struct {
		model  string
		budget int
		want   *int32
	}{
		{"gemini-2.5-flash", 0, genai.Ptr[int32](0)},
		{"gemini-2.5-flash-lite", 256, genai.Ptr[int32](256)},
		{"gemini-2.5-flash", -5, genai.Ptr[int32](0)},
		{"gemini-2.5-pro", 0, genai.Ptr[int32](minProThinkingBudget)},
		{"gemini-2.0-flash", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got := thinkingConfig(tt.model, tt.budget)
			if tt.want == nil {
				if got != nil {
					t.Errorf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || got.ThinkingBudget == nil || *got.ThinkingBudget != *tt.want {
				t.Errorf("got %+v, want budget %d", got, *tt.want)
			}
		})
	}
}

func TestGeminiClient_EmptyReply(t *testing.T) {
	srv, _ := newGeminiTestServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"   "}]}}]}`)

	g, err := NewGeminiClient(context.Background(), CompletionConfig{
		GeminiAPIKey:  "gem-key",
		GeminiBaseURL: srv.URL + "/",
		Model:         "gemini-2.0-flash",
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	if g.model != "gemini-2.0-flash" {
		t.Errorf("model = %q", g.model)
	}

	if _, err := g.Complete(context.Background(), "", "hi"); !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("err = %v, want ErrEmptyCompletion", err)
	}
}
