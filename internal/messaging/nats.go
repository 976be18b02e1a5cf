// Package messaging provides the NATS bridge that fans room events out
// across relay server instances. Each instance publishes its room events to
// a per-room subject and runs one wildcard subscription that forwards events
// from other instances into its local room registry.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectRoom is the subject prefix for room events; the room id (including
// sidebar room ids) is appended as the final token.
const SubjectRoom = "room"

// RoomEvent is the payload relayed between server instances. Origin names
// the publishing instance so it can skip its own events; the local registry
// already delivered those.
type RoomEvent struct {
	Origin string          `json:"origin"`
	RoomID string          `json:"room_id"`
	Data   json.RawMessage `json:"data"`
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "chat-relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishRoomEvent publishes a room event to the room.<roomID> subject.
func (c *NATSClient) PublishRoomEvent(ev RoomEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats: marshal room event: %w", err)
	}
	return c.conn.Publish(SubjectRoom+"."+ev.RoomID, payload)
}

// SubscribeRoomEvents subscribes to every room subject and passes decoded
// events to the handler. Malformed payloads are logged and dropped.
func (c *NATSClient) SubscribeRoomEvents(handler func(ev RoomEvent)) error {
	subject := SubjectRoom + ".>"
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev RoomEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[nats] malformed room event on %s: %v", msg.Subject, err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
