package relay

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/streamrelay/chat-relay/internal/protocol"
)

// ErrInvalidRequest marks a malformed completion request. These are rejected
// before any side effects.
var ErrInvalidRequest = errors.New("relay: invalid request")

// ErrSessionActive is returned when a room already has a streaming session
// in flight.
var ErrSessionActive = errors.New("relay: generation already in progress for this room")

const (
	maxTextBytes = 4096
	maxTextRunes = 2000

	// maxFileBytes caps the decoded attachment payload.
	maxFileBytes = 10 << 20
)

// validateRequest checks an inbound completion request. Attachment limits
// are re-checked here rather than trusting the client.
func (c *Coordinator) validateRequest(msg protocol.MessageMsg) error {
	if len(msg.Turns) == 0 {
		return fmt.Errorf("%w: empty turn list", ErrInvalidRequest)
	}

	last := msg.Turns[len(msg.Turns)-1]
	if last.Author != protocol.AuthorUser {
		return fmt.Errorf("%w: final turn must be a user turn", ErrInvalidRequest)
	}
	if strings.TrimSpace(last.Text) == "" {
		return fmt.Errorf("%w: empty message text", ErrInvalidRequest)
	}
	if len(last.Text) > maxTextBytes {
		return fmt.Errorf("%w: message too long", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(last.Text) > maxTextRunes {
		return fmt.Errorf("%w: message too long", ErrInvalidRequest)
	}
	if !utf8.ValidString(last.Text) {
		return fmt.Errorf("%w: message is not valid UTF-8", ErrInvalidRequest)
	}

	if _, ok := c.adapters[msg.Provider]; !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, msg.Provider)
	}

	// History turns are replayed to the provider verbatim, so their
	// attachments are bounded too, not just the newest one.
	for _, turn := range msg.Turns {
		if turn.File == "" {
			continue
		}
		if err := validateAttachment(turn.File); err != nil {
			return err
		}
	}
	return nil
}

// validateAttachment checks that the attachment is a well-formed base64 data
// URL of an allowed MIME type within the size cap.
func validateAttachment(file string) error {
	rest, ok := strings.CutPrefix(file, "data:")
	if !ok {
		return fmt.Errorf("%w: attachment is not a data URL", ErrInvalidRequest)
	}
	mime, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return fmt.Errorf("%w: attachment is not base64 encoded", ErrInvalidRequest)
	}
	if mime != "application/pdf" && !strings.HasPrefix(mime, "image/") {
		return fmt.Errorf("%w: unsupported attachment type %q", ErrInvalidRequest, mime)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxFileBytes {
		return fmt.Errorf("%w: attachment exceeds size limit", ErrInvalidRequest)
	}
	return nil
}
