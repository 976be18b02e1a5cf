// Package provider normalizes the divergent LLM completion backends into one
// internal contract: a request built from conversation turns and a lazy,
// cancellable stream of text deltas. Both supported providers speak the
// OpenAI-compatible chat-completions protocol; they differ in base URL,
// credentials, and which attachment MIME types they accept.
package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/streamrelay/chat-relay/internal/protocol"
)

// ErrNoAPIKey is returned before any network I/O when neither the request
// nor the adapter carries a credential for the selected provider.
var ErrNoAPIKey = errors.New("provider: no API key configured")

// Delta is one increment of generated text.
type Delta struct {
	Text string
}

// Stream is a lazy, finite, non-restartable sequence of deltas. Recv returns
// io.EOF when the provider signals completion. Close releases the underlying
// network resources and must be safe to call at any point, including before
// the stream is drained.
type Stream interface {
	Recv() (Delta, error)
	Close() error
}

// Request is the provider-independent completion request.
type Request struct {
	Turns             []protocol.Turn
	Model             string
	Effort            string // "low", "medium", "high"; empty or "none" omits the hint
	SystemInstruction string // empty selects the built-in persona
	Nickname          string // interpolated into the built-in persona only
	APIKey            string // overrides the adapter's configured key
}

// Adapter translates Requests into provider-specific streamed completion
// calls. Implementations are stateless and safe for concurrent use.
type Adapter interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// httpClient is shared across all sessions. Streaming responses must not be
// bounded by a total request timeout, so only the wait for response headers
// is limited.
var httpClient = &http.Client{
	Transport: &http.Transport{ResponseHeaderTimeout: 60 * time.Second},
}

// defaultPersona is the system instruction used when the caller supplies
// none.
const defaultPersona = "You are a helpful AI assistant. Be concise and use as few " +
	"words as possible while remaining informative, unless the user explicitly asks " +
	"for something long-form such as an essay. Ask for more context when you are " +
	"unsure instead of guessing. Format responses with GitHub-flavored markdown, " +
	"using inline code blocks, lists and bullet points where they help."

// systemInstruction resolves the instruction sent as the first message.
func systemInstruction(req Request) string {
	if req.SystemInstruction != "" {
		return req.SystemInstruction
	}
	persona := defaultPersona
	if req.Nickname != "" {
		persona += " The user's name is " + req.Nickname + "; address them by that name."
	}
	return persona
}

// dataURLMime extracts the MIME type from a base64 data URL
// ("data:<mime>;base64,..."). It returns "" if the value is not a
// well-formed data URL.
func dataURLMime(file string) string {
	rest, ok := strings.CutPrefix(file, "data:")
	if !ok {
		return ""
	}
	mime, _, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return ""
	}
	return mime
}

// ---------------------------------------------------------------------------
// OpenAI-compatible wire structures
// ---------------------------------------------------------------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string for the system message, []contentPart otherwise
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	File     *filePart     `json:"file,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	Stream          bool          `json:"stream"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
}

// attachmentFunc builds the provider-native content part for an attachment,
// or returns nil when the provider does not support that MIME type. Missing
// support degrades gracefully: the attachment is dropped, the request
// proceeds.
type attachmentFunc func(mime, file string) *contentPart

// buildMessages converts the system instruction and turns into the
// OpenAI-compatible message list. Text is always included; attachments go
// through the provider's attachmentFunc.
func buildMessages(req Request, attach attachmentFunc) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.Turns)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemInstruction(req)})

	for _, turn := range req.Turns {
		parts := []contentPart{{Type: "text", Text: turn.Text}}
		if turn.File != "" {
			if part := attach(dataURLMime(turn.File), turn.File); part != nil {
				parts = append(parts, *part)
			}
		}
		msgs = append(msgs, chatMessage{Role: turn.Author, Content: parts})
	}
	return msgs
}

// buildChatRequest assembles the wire request body. The effort hint is
// passed through only when the caller set a real level.
func buildChatRequest(req Request, attach attachmentFunc) chatRequest {
	body := chatRequest{
		Model:    req.Model,
		Messages: buildMessages(req, attach),
		Stream:   true,
	}
	if req.Effort != "" && req.Effort != "none" {
		body.ReasoningEffort = req.Effort
	}
	return body
}

// resolveKey applies the key resolution order: request override first, then
// the adapter's configured key.
func resolveKey(override, configured string) (string, error) {
	if override != "" {
		return override, nil
	}
	if configured != "" {
		return configured, nil
	}
	return "", ErrNoAPIKey
}
