package provider

import (
	"strings"
	"testing"

	"github.com/streamrelay/chat-relay/internal/protocol"
)

const (
	pdfURL  = "data:application/pdf;base64,cGRm"
	pngURL  = "data:image/png;base64,cG5n"
	oggURL  = "data:audio/ogg;base64,b2dn"
	junkURL = "not-a-data-url"
)

func turnWithFile(file string) protocol.Turn {
	return protocol.Turn{ID: "t1", Author: protocol.AuthorUser, Text: "look at this", File: file}
}

func contentParts(t *testing.T, msg chatMessage) []contentPart {
	t.Helper()
	parts, ok := msg.Content.([]contentPart)
	if !ok {
		t.Fatalf("expected []contentPart content, got %T", msg.Content)
	}
	return parts
}

func TestBuildMessagesSystemFirst(t *testing.T) {
	req := Request{Turns: []protocol.Turn{{ID: "t1", Author: protocol.AuthorUser, Text: "hi"}}}
	msgs := buildMessages(req, openAIAttachment)

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Fatalf("expected system message first, got role %q", msgs[0].Role)
	}
	instr, ok := msgs[0].Content.(string)
	if !ok || instr == "" {
		t.Fatalf("expected non-empty default persona, got %v", msgs[0].Content)
	}
}

func TestBuildMessagesCustomInstruction(t *testing.T) {
	req := Request{
		SystemInstruction: "You are a pirate.",
		Turns:             []protocol.Turn{{ID: "t1", Author: protocol.AuthorUser, Text: "hi"}},
	}
	msgs := buildMessages(req, openAIAttachment)
	if msgs[0].Content != "You are a pirate." {
		t.Errorf("custom instruction not used: %v", msgs[0].Content)
	}
}

func TestBuildMessagesNicknameInterpolation(t *testing.T) {
	req := Request{
		Nickname: "Sam",
		Turns:    []protocol.Turn{{ID: "t1", Author: protocol.AuthorUser, Text: "hi"}},
	}
	msgs := buildMessages(req, openAIAttachment)
	instr := msgs[0].Content.(string)
	if !strings.Contains(instr, "Sam") {
		t.Errorf("nickname not interpolated into persona: %q", instr)
	}

	// A custom instruction wins over the persona and ignores the nickname.
	req.SystemInstruction = "Custom."
	msgs = buildMessages(req, openAIAttachment)
	if msgs[0].Content != "Custom." {
		t.Errorf("custom instruction should not be decorated: %v", msgs[0].Content)
	}
}

func TestOpenAIAttachmentPDF(t *testing.T) {
	req := Request{Turns: []protocol.Turn{turnWithFile(pdfURL)}}
	msgs := buildMessages(req, openAIAttachment)
	parts := contentParts(t, msgs[1])

	if len(parts) != 2 {
		t.Fatalf("expected text + file parts, got %d parts", len(parts))
	}
	if parts[0].Type != "text" || parts[0].Text != "look at this" {
		t.Errorf("unexpected text part: %+v", parts[0])
	}
	if parts[1].Type != "file" || parts[1].File == nil || parts[1].File.FileData != pdfURL {
		t.Errorf("unexpected file part: %+v", parts[1])
	}
}

func TestOpenAIAttachmentImage(t *testing.T) {
	req := Request{Turns: []protocol.Turn{turnWithFile(pngURL)}}
	msgs := buildMessages(req, openAIAttachment)
	parts := contentParts(t, msgs[1])

	if len(parts) != 2 {
		t.Fatalf("expected text + image parts, got %d parts", len(parts))
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != pngURL {
		t.Errorf("unexpected image part: %+v", parts[1])
	}
}

func TestOpenAIAttachmentUnsupportedOmitted(t *testing.T) {
	for _, file := range []string{oggURL, junkURL} {
		req := Request{Turns: []protocol.Turn{turnWithFile(file)}}
		msgs := buildMessages(req, openAIAttachment)
		parts := contentParts(t, msgs[1])

		if len(parts) != 1 {
			t.Errorf("file %q: expected attachment to be omitted, got %d parts", file, len(parts))
		}
		if parts[0].Type != "text" || parts[0].Text != "look at this" {
			t.Errorf("file %q: text part should be unchanged: %+v", file, parts[0])
		}
	}
}

func TestGeminiAttachmentAcceptsPDFAndImage(t *testing.T) {
	for _, file := range []string{pdfURL, pngURL} {
		req := Request{Turns: []protocol.Turn{turnWithFile(file)}}
		msgs := buildMessages(req, geminiAttachment)
		parts := contentParts(t, msgs[1])

		if len(parts) != 2 {
			t.Fatalf("file %q: expected 2 parts, got %d", file, len(parts))
		}
		if parts[1].ImageURL == nil || parts[1].ImageURL.URL != file {
			t.Errorf("file %q: unexpected part %+v", file, parts[1])
		}
	}
}

func TestGeminiAttachmentUnsupportedOmitted(t *testing.T) {
	req := Request{Turns: []protocol.Turn{turnWithFile(oggURL)}}
	msgs := buildMessages(req, geminiAttachment)
	if parts := contentParts(t, msgs[1]); len(parts) != 1 {
		t.Errorf("expected audio attachment to be omitted, got %d parts", len(parts))
	}
}

func TestEffortPassthrough(t *testing.T) {
	req := Request{Model: "m", Effort: "high"}
	if body := buildChatRequest(req, openAIAttachment); body.ReasoningEffort != "high" {
		t.Errorf("expected reasoning_effort high, got %q", body.ReasoningEffort)
	}

	for _, effort := range []string{"", "none"} {
		req.Effort = effort
		if body := buildChatRequest(req, openAIAttachment); body.ReasoningEffort != "" {
			t.Errorf("effort %q: expected omitted hint, got %q", effort, body.ReasoningEffort)
		}
	}
}

func TestResolveKeyOrder(t *testing.T) {
	if key, err := resolveKey("override", "configured"); err != nil || key != "override" {
		t.Errorf("expected override key, got %q err=%v", key, err)
	}
	if key, err := resolveKey("", "configured"); err != nil || key != "configured" {
		t.Errorf("expected configured key, got %q err=%v", key, err)
	}
	if _, err := resolveKey("", ""); err != ErrNoAPIKey {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestDataURLMime(t *testing.T) {
	if got := dataURLMime(pdfURL); got != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", got)
	}
	if got := dataURLMime(pngURL); got != "image/png" {
		t.Errorf("expected image/png, got %q", got)
	}
	if got := dataURLMime(junkURL); got != "" {
		t.Errorf("expected empty mime for junk, got %q", got)
	}
	if got := dataURLMime("data:image/png,raw-not-base64"); got != "" {
		t.Errorf("expected empty mime for non-base64 data URL, got %q", got)
	}
}
