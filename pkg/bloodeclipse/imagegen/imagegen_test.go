package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestModelsLabGenerate(t *testing.T) {
	var got modelsLabRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"success","output":["https://cdn.example/img.png"]}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.ModelsLabAPIKey = "mlkey"
	cfg.Endpoint = srv.URL

	img, err := NewModelsLab(cfg).Generate(context.Background(), "a crimson moon over a pagoda")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.URL != "https://cdn.example/img.png" {
		t.Errorf("URL = %q", img.URL)
	}
	if got.Key != "mlkey" || got.Prompt != "a crimson moon over a pagoda" {
		t.Errorf("request = %+v", got)
	}
	if got.Samples != "1" || got.Width != "512" {
		t.Errorf("request sizing = %+v", got)
	}
}

func TestModelsLabResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantURL string
		wantErr bool
	}{
		{"processing uses future link", 200, `{"status":"processing","future_links":["https://cdn.example/later.png"]}`, "https://cdn.example/later.png", false},
		{"error status", 200, `{"status":"error","message":"invalid key"}`, "", true},
		{"misspelled message", 200, `{"status":"failed","messege":"nsfw"}`, "", true},
		{"no output", 200, `{"status":"success","output":[]}`, "", true},
		{"created is success", 201, `{"status":"success","output":["https://cdn.example/new.png"]}`, "https://cdn.example/new.png", false},
		{"redirect is failure", 302, `{"status":"success","output":["https://cdn.example/x.png"]}`, "", true},
		{"http failure", 500, `oops`, "", true},
		{"bad json", 200, `not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cfg := DefaultConfig()
			cfg.ModelsLabAPIKey = "k"
			cfg.Endpoint = srv.URL

			img, err := NewModelsLab(cfg).Generate(context.Background(), "p")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", img)
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if img.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", img.URL, tt.wantURL)
			}
		})
	}
}

func TestNewProviderSelection(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, Config{Provider: "modelslab"}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("modelslab without key: err = %v", err)
	}
	if _, err := New(ctx, Config{Provider: "gemini"}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("gemini without key: err = %v", err)
	}
	if _, err := New(ctx, Config{Provider: "dalle"}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unknown provider: err = %v", err)
	}

	p, err := New(ctx, Config{Provider: "modelslab", ModelsLabAPIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "modelslab" {
		t.Errorf("Name() = %q", p.Name())
	}
}
