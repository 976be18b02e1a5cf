package messaging

import "log"

// Local is the process-local delivery side of the fan-out, satisfied by
// room.Registry.
type Local interface {
	Publish(roomID string, data []byte) int
}

// Fanout delivers room events to local subscribers and relays them to every
// other relay server instance over NATS. With a nil NATS client (single
// instance deployments, tests) it degrades to purely local delivery.
type Fanout struct {
	local  Local
	nats   *NATSClient
	origin string // this instance's name, used to skip self-published events
}

// NewFanout creates a Fanout for this instance. Start must be called before
// events from other instances are delivered locally.
func NewFanout(local Local, nc *NATSClient, origin string) *Fanout {
	return &Fanout{local: local, nats: nc, origin: origin}
}

// Start subscribes to the room subject space and forwards events published
// by other instances into the local registry.
func (f *Fanout) Start() error {
	if f.nats == nil {
		return nil
	}
	return f.nats.SubscribeRoomEvents(func(ev RoomEvent) {
		if ev.Origin == f.origin {
			return // already delivered locally on publish
		}
		f.local.Publish(ev.RoomID, ev.Data)
	})
}

// Relayed reports whether publishes are also forwarded to other server
// instances. When true, a zero local delivery count does not mean the room
// is empty cluster-wide; streaming sessions must keep publishing.
func (f *Fanout) Relayed() bool {
	return f.nats != nil
}

// Publish delivers data to local subscribers of the room and relays it over
// NATS. It returns the local delivery count; remote instances deliver to
// their own subscribers asynchronously.
func (f *Fanout) Publish(roomID string, data []byte) int {
	n := f.local.Publish(roomID, data)
	if f.nats != nil {
		if err := f.nats.PublishRoomEvent(RoomEvent{Origin: f.origin, RoomID: roomID, Data: data}); err != nil {
			log.Printf("[fanout] relay room=%s: %v", roomID, err)
		}
	}
	return n
}
