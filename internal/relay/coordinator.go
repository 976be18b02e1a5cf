// Package relay contains the streaming session coordinator. A session takes
// a validated conversation, obtains a delta stream from the selected
// provider, fans incremental updates out to the room, and finalizes durable
// state when the stream ends. Persistence and titles are best-effort and
// never block or fail a stream.
package relay

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/streamrelay/chat-relay/internal/metrics"
	"github.com/streamrelay/chat-relay/internal/protocol"
	"github.com/streamrelay/chat-relay/internal/provider"
	"github.com/streamrelay/chat-relay/internal/uid"
)

// streamErrorText is the user-facing message published when a provider
// stream fails.
const streamErrorText = "Error generating the content, refresh the page"

const (
	// gatewayTimeout bounds each persistence call so a hung database
	// cannot stall a session.
	gatewayTimeout = 3 * time.Second

	// titleTimeout bounds the title-generation call, matching the title
	// client's own HTTP timeout.
	titleTimeout = 30 * time.Second
)

// Publisher delivers an encoded event to every subscriber of a room and
// reports how many local subscribers received it.
type Publisher interface {
	Publish(roomID string, data []byte) int
}

// Gateway is the durable-write surface the coordinator needs. All calls are
// idempotent; the coordinator never relies on atomicity across them.
type Gateway interface {
	SaveInitialExchange(ctx context.Context, userTurn, assistantTurn protocol.Turn, roomID string) error
	FinalizeAssistantTurn(ctx context.Context, turnID, finalText, roomID string) error
	UpsertRoom(ctx context.Context, roomID, ownerUserID string) error
	RenameRoom(ctx context.Context, roomID, name string) error
}

// TitleGenerator produces a short room title from the first user prompt.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, prompt string) (string, error)
}

// relayedPublisher is implemented by publishers that also forward events to
// other server instances. For those, a zero local delivery count does not
// prove the room is empty cluster-wide.
type relayedPublisher interface {
	Relayed() bool
}

func relayed(p Publisher) bool {
	rp, ok := p.(relayedPublisher)
	return ok && rp.Relayed()
}

// Coordinator validates completion requests and runs streaming sessions.
// One session per room may be in flight at a time.
type Coordinator struct {
	pub      Publisher
	gateway  Gateway        // nil disables persistence
	titles   TitleGenerator // nil disables title generation
	adapters map[string]provider.Adapter

	mu       sync.Mutex
	inflight map[string]bool // room ids with an active session
}

// NewCoordinator creates a Coordinator. The adapters map is keyed by
// provider name as it appears in client requests.
func NewCoordinator(pub Publisher, gateway Gateway, titles TitleGenerator, adapters map[string]provider.Adapter) *Coordinator {
	return &Coordinator{
		pub:      pub,
		gateway:  gateway,
		titles:   titles,
		adapters: adapters,
		inflight: make(map[string]bool),
	}
}

// Session is one accepted streaming request. The room id and the assistant
// reply id are minted on acceptance so the caller can subscribe the
// originating connection before any delta is published.
type Session struct {
	RoomID      string
	AssistantID string

	c   *Coordinator
	msg protocol.MessageMsg
}

// Begin validates the request and reserves the room. On success the caller
// must invoke Run, typically in its own goroutine, after joining the
// originating connection to the (possibly freshly minted) room.
func (c *Coordinator) Begin(msg protocol.MessageMsg) (*Session, error) {
	if err := c.validateRequest(msg); err != nil {
		metrics.SessionErrors.WithLabelValues("validation").Inc()
		return nil, err
	}

	roomID := msg.RoomID
	if roomID == "" {
		roomID = uid.New()
	}

	c.mu.Lock()
	if c.inflight[roomID] {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}
	c.inflight[roomID] = true
	c.mu.Unlock()

	return &Session{
		RoomID:      roomID,
		AssistantID: uid.New(),
		c:           c,
		msg:         msg,
	}, nil
}

func (c *Coordinator) release(roomID string) {
	c.mu.Lock()
	delete(c.inflight, roomID)
	c.mu.Unlock()
}

// Run drives the session to a terminal state. It blocks until the provider
// stream is drained; callers run it in its own goroutine. The session is
// deliberately detached from the originating connection's lifetime: a
// disconnect mid-stream does not cancel the provider call, so the exchange
// can still be persisted.
func (s *Session) Run() {
	c := s.c
	defer c.release(s.RoomID)

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	start := time.Now()
	defer func() {
		metrics.StreamDuration.WithLabelValues(s.msg.Provider).Observe(time.Since(start).Seconds())
	}()

	ctx := context.Background()
	authed := s.msg.UserID != ""

	userTurn := s.msg.Turns[len(s.msg.Turns)-1]
	if userTurn.ID == "" {
		userTurn.ID = uid.New()
	}
	assistant := protocol.Turn{ID: s.AssistantID, Author: protocol.AuthorAssistant}

	if authed && c.gateway != nil {
		saveCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
		err := c.gateway.SaveInitialExchange(saveCtx, userTurn, assistant, s.RoomID)
		cancel()
		if err != nil {
			log.Printf("relay: save initial exchange room=%s: %v", s.RoomID, err)
		}
	}

	adapter := c.adapters[s.msg.Provider]
	stream, err := adapter.Stream(ctx, provider.Request{
		Turns:             s.msg.Turns,
		Model:             s.msg.Model,
		Effort:            s.msg.Effort,
		SystemInstruction: s.msg.SystemInstruction,
		Nickname:          s.msg.Nickname,
		APIKey:            s.msg.APIKey,
	})
	if err != nil {
		kind := "provider"
		if errors.Is(err, provider.ErrNoAPIKey) {
			kind = "auth"
		}
		metrics.SessionErrors.WithLabelValues(kind).Inc()
		log.Printf("relay: %s stream open room=%s: %v", s.msg.Provider, s.RoomID, err)
		s.publishError()
		return
	}
	defer stream.Close()

	var acc strings.Builder
	first := true

	// quiet means the room emptied mid-stream: keep draining, stop
	// publishing. Only a local-only publisher can prove emptiness; with a
	// cross-instance relay, subscribers may exist on another server.
	quiet := false
	localOnly := !relayed(c.pub)

	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.SessionErrors.WithLabelValues("provider").Inc()
			log.Printf("relay: %s stream room=%s: %v", s.msg.Provider, s.RoomID, err)
			s.publishError()
			return
		}

		metrics.DeltasTotal.WithLabelValues(adapter.Name()).Inc()
		acc.WriteString(delta.Text)
		if quiet {
			continue
		}

		var payload []byte
		if first {
			first = false
			assistant.Text = acc.String()
			turns := make([]protocol.Turn, len(s.msg.Turns), len(s.msg.Turns)+1)
			copy(turns, s.msg.Turns)
			turns[len(turns)-1] = userTurn
			turns = append(turns, assistant)
			payload, err = protocol.NewServerMessage(protocol.TypeMessage, protocol.SnapshotMsg{Turns: turns})
		} else {
			payload, err = protocol.NewServerMessage(protocol.TypeEdit, protocol.EditMsg{
				ID:     s.AssistantID,
				Author: protocol.AuthorAssistant,
				Text:   acc.String(),
			})
		}
		if err != nil {
			log.Printf("relay: encode delta event room=%s: %v", s.RoomID, err)
			continue
		}
		if c.pub.Publish(s.RoomID, payload) == 0 && localOnly {
			quiet = true
		}
	}

	s.finalize(ctx, authed, userTurn, acc.String())
}

// finalize performs the durable writes and the first-exchange title flow.
// Every error here is logged and swallowed.
func (s *Session) finalize(ctx context.Context, authed bool, userTurn protocol.Turn, finalText string) {
	c := s.c
	if !authed || c.gateway == nil {
		return
	}

	finCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	err := c.gateway.FinalizeAssistantTurn(finCtx, s.AssistantID, finalText, s.RoomID)
	cancel()
	if err != nil {
		log.Printf("relay: finalize assistant turn room=%s: %v", s.RoomID, err)
	}

	upCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	err = c.gateway.UpsertRoom(upCtx, s.RoomID, s.msg.UserID)
	cancel()
	if err != nil {
		log.Printf("relay: upsert room room=%s: %v", s.RoomID, err)
	}

	// A single-turn conversation means this was the room's first exchange.
	if len(s.msg.Turns) != 1 || c.titles == nil {
		return
	}

	titleCtx, cancel := context.WithTimeout(ctx, titleTimeout)
	title, err := c.titles.GenerateTitle(titleCtx, userTurn.Text)
	cancel()
	if err != nil {
		log.Printf("relay: generate title room=%s: %v", s.RoomID, err)
		return
	}

	renCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	err = c.gateway.RenameRoom(renCtx, s.RoomID, title)
	cancel()
	if err != nil {
		log.Printf("relay: rename room room=%s: %v", s.RoomID, err)
		return
	}

	payload, err := protocol.NewServerMessage(protocol.TypeTitle, protocol.TitleMsg{RoomID: s.RoomID})
	if err != nil {
		log.Printf("relay: encode title event room=%s: %v", s.RoomID, err)
		return
	}
	c.pub.Publish(protocol.SidebarRoom(s.msg.UserID), payload)
}

func (s *Session) publishError() {
	payload, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{Message: streamErrorText})
	if err != nil {
		log.Printf("relay: encode error event room=%s: %v", s.RoomID, err)
		return
	}
	s.c.pub.Publish(s.RoomID, payload)
}
