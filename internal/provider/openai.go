package provider

import (
	"context"
	"strings"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAI streams completions from the OpenAI chat-completions API.
type OpenAI struct {
	key     string
	baseURL string
}

// NewOpenAI creates an OpenAI adapter with the given process-wide API key.
// The key may be empty; requests then require a per-request override.
func NewOpenAI(key string) *OpenAI {
	return &OpenAI{key: key, baseURL: openAIBaseURL}
}

// Name returns the provider name used in client requests.
func (o *OpenAI) Name() string { return "openai" }

// Stream opens a streamed completion. It fails with ErrNoAPIKey before any
// network call when no credential is available.
func (o *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	key, err := resolveKey(req.APIKey, o.key)
	if err != nil {
		return nil, err
	}
	return openStream(ctx, o.Name(), o.baseURL, key, buildChatRequest(req, openAIAttachment))
}

// openAIAttachment maps an attachment to OpenAI's content parts: PDFs become
// file parts, images become image_url parts, anything else is dropped.
func openAIAttachment(mime, file string) *contentPart {
	switch {
	case mime == "application/pdf":
		return &contentPart{
			Type: "file",
			File: &filePart{Filename: "file.pdf", FileData: file},
		}
	case strings.HasPrefix(mime, "image/"):
		return &contentPart{
			Type:     "file",
			ImageURL: &imageURLPart{URL: file},
		}
	default:
		return nil
	}
}
