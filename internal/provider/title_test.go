package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, titleModel) {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header %q", got)
		}

		var body generateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.SystemInstruction == nil || len(body.SystemInstruction.Parts) == 0 {
			t.Error("expected a system instruction")
		}
		if body.GenerationConfig.MaxOutputTokens != 100 {
			t.Errorf("expected maxOutputTokens 100, got %d", body.GenerationConfig.MaxOutputTokens)
		}

		_ = json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []struct {
				Content geminiContent `json:"content"`
			}{
				{Content: geminiContent{Parts: []geminiPart{{Text: "Greeting Exchange\n"}}}},
			},
		})
	}))
	defer srv.Close()

	gen := NewTitleGenerator("test-key")
	gen.baseURL = srv.URL

	title, err := gen.GenerateTitle(context.Background(), "hi")
	if err != nil {
		t.Fatalf("GenerateTitle: %v", err)
	}
	if title != "Greeting Exchange" {
		t.Errorf("expected trimmed title, got %q", title)
	}
}

func TestGenerateTitleNoKey(t *testing.T) {
	gen := NewTitleGenerator("")
	if _, err := gen.GenerateTitle(context.Background(), "hi"); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestGenerateTitleUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gen := NewTitleGenerator("test-key")
	gen.baseURL = srv.URL

	if _, err := gen.GenerateTitle(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestGenerateTitleEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateContentResponse{})
	}))
	defer srv.Close()

	gen := NewTitleGenerator("test-key")
	gen.baseURL = srv.URL

	if _, err := gen.GenerateTitle(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}
