package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxEventBytes bounds a single SSE line. Completion deltas are tiny; the
// limit only guards against a misbehaving upstream.
const maxEventBytes = 1 << 20

// openStream POSTs a streaming chat-completions request and wraps the
// response body in an sseStream. The caller owns the returned Stream and
// must Close it.
func openStream(ctx context.Context, name, baseURL, key string, body chatRequest) (Stream, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: marshal request: %w", name, err)
	}

	url := strings.TrimSuffix(baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("provider: %s: build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: request failed: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("provider: %s: upstream status %d: %s",
			name, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 4096), maxEventBytes)
	return &sseStream{name: name, body: resp.Body, scanner: sc}, nil
}

// sseStream decodes the server-sent-events framing of an OpenAI-compatible
// streaming completion. Each "data:" line carries one JSON chunk; the
// literal "[DONE]" sentinel terminates the sequence.
type sseStream struct {
	name    string
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// chunk is the subset of a streamed completion chunk the relay consumes.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Recv returns the next non-empty text delta, io.EOF once the provider has
// signalled completion, or an error if the stream breaks mid-way.
func (s *sseStream) Recv() (Delta, error) {
	if s.done {
		return Delta{}, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue // comments, event names, blank keep-alive lines
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			s.done = true
			return Delta{}, io.EOF
		}

		var c chunk
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return Delta{}, fmt.Errorf("provider: %s: malformed chunk: %w", s.name, err)
		}
		if len(c.Choices) == 0 || c.Choices[0].Delta.Content == "" {
			continue // role announcements, finish_reason-only chunks
		}
		return Delta{Text: c.Choices[0].Delta.Content}, nil
	}

	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Delta{}, err
		}
		return Delta{}, fmt.Errorf("provider: %s: stream read: %w", s.name, err)
	}

	// The body ended without a [DONE] sentinel. Treat a clean close as
	// completion rather than failing a fully-delivered response.
	s.done = true
	return Delta{}, io.EOF
}

// Close releases the underlying response body. Abandoning the stream early
// closes the connection rather than draining it.
func (s *sseStream) Close() error {
	return s.body.Close()
}
