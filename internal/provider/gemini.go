package provider

import (
	"context"
	"strings"
)

// geminiBaseURL is Google's OpenAI-compatible endpoint for the Gemini API.
const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// Gemini streams completions from the Gemini API through its
// OpenAI-compatible surface.
type Gemini struct {
	key     string
	baseURL string
}

// NewGemini creates a Gemini adapter with the given process-wide API key.
// The key may be empty; requests then require a per-request override.
func NewGemini(key string) *Gemini {
	return &Gemini{key: key, baseURL: geminiBaseURL}
}

// Name returns the provider name used in client requests.
func (g *Gemini) Name() string { return "gemini" }

// Stream opens a streamed completion. It fails with ErrNoAPIKey before any
// network call when no credential is available.
func (g *Gemini) Stream(ctx context.Context, req Request) (Stream, error) {
	key, err := resolveKey(req.APIKey, g.key)
	if err != nil {
		return nil, err
	}
	return openStream(ctx, g.Name(), g.baseURL, key, buildChatRequest(req, geminiAttachment))
}

// geminiAttachment maps an attachment to Gemini's content parts. Gemini
// takes both PDFs and images as image_url data URLs; anything else is
// dropped.
func geminiAttachment(mime, file string) *contentPart {
	if mime != "application/pdf" && !strings.HasPrefix(mime, "image/") {
		return nil
	}
	return &contentPart{
		Type:     "file",
		ImageURL: &imageURLPart{URL: file},
	}
}
