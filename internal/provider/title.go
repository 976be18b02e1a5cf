package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	titleModel   = "gemini-2.0-flash-lite"
	titleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// titleInstruction constrains the title to a short unpunctuated phrase.
	titleInstruction = "Generate a relevant title based on the prompt in under " +
		"5 words. Do not use informal language. Do not use punctuation."
)

// TitleGenerator produces short room titles from the first user prompt with
// a single non-streaming Gemini call. Titles are cosmetic; callers log and
// ignore failures.
type TitleGenerator struct {
	key     string
	baseURL string
	client  *http.Client
}

// NewTitleGenerator creates a TitleGenerator using the given Gemini API key.
func NewTitleGenerator(key string) *TitleGenerator {
	return &TitleGenerator{
		key:     key,
		baseURL: titleBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type generateContentRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GenerateTitle returns a generated title for the given prompt.
func (t *TitleGenerator) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	if t.key == "" {
		return "", ErrNoAPIKey
	}

	body := generateContentRequest{
		Contents:          []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: titleInstruction}}},
	}
	body.GenerationConfig.MaxOutputTokens = 100

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("provider: title: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimSuffix(t.baseURL, "/"), titleModel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("provider: title: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", t.key)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider: title: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("provider: title: upstream status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("provider: title: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("provider: title: empty response")
	}

	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}
