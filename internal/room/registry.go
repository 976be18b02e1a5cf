// Package room tracks which live connections are subscribed to which rooms
// and fans published events out to them. The registry is entirely
// process-local: it starts empty, is rebuilt from zero on restart, and
// clients must rejoin after reconnecting.
package room

import "sync"

// Subscriber is the write side of a connection as seen by the registry.
type Subscriber interface {
	Send(data []byte) error
}

// entry holds one room's subscriber set under its own lock so churn in one
// room never blocks a publish in another.
type entry struct {
	mu      sync.RWMutex
	subs    map[string]Subscriber // subscriber id -> subscriber
	dropped bool                  // entry was removed from the registry map
}

// Registry maps room ids to subscriber sets. The outer map is guarded by its
// own RWMutex; each room's set is guarded independently.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*entry
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*entry)}
}

// Join adds the subscriber to the room's set. Joining a room the subscriber
// is already in is a no-op, as is joining a room nobody has seen before
// (the set is created on demand).
func (r *Registry) Join(roomID, id string, sub Subscriber) {
	for {
		r.mu.Lock()
		e, ok := r.rooms[roomID]
		if !ok {
			e = &entry{subs: make(map[string]Subscriber)}
			r.rooms[roomID] = e
		}
		r.mu.Unlock()

		e.mu.Lock()
		if e.dropped {
			// Lost a race with the final Leave: this entry is no longer
			// reachable from the map, so inserting into it would strand
			// the subscriber. Start over with a fresh lookup.
			e.mu.Unlock()
			continue
		}
		e.subs[id] = sub
		e.mu.Unlock()
		return
	}
}

// Leave removes the subscriber from one room. Empty rooms are deleted so the
// registry does not accumulate entries for long-dead rooms.
func (r *Registry) Leave(roomID, id string) {
	r.mu.RLock()
	e, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	delete(e.subs, id)
	empty := len(e.subs) == 0
	e.mu.Unlock()

	if empty {
		r.dropIfEmpty(roomID, e)
	}
}

// LeaveAll removes the subscriber from every room it has joined. It is
// called on disconnect so a dead connection never receives another publish.
func (r *Registry) LeaveAll(id string) {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.rooms))
	for roomID, e := range r.rooms {
		entries[roomID] = e
	}
	r.mu.RUnlock()

	for roomID, e := range entries {
		e.mu.Lock()
		_, present := e.subs[id]
		if present {
			delete(e.subs, id)
		}
		empty := len(e.subs) == 0
		e.mu.Unlock()

		if present && empty {
			r.dropIfEmpty(roomID, e)
		}
	}
}

// Publish delivers data to every subscriber currently joined to the room and
// returns the number of deliveries attempted. Publishing to an unknown or
// empty room is a no-op. Send errors on individual connections are ignored;
// failed connections are cleaned up by the transport's read path.
func (r *Registry) Publish(roomID string, data []byte) int {
	r.mu.RLock()
	e, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	// Snapshot under the room lock, send outside it so a slow connection
	// cannot block join/leave on the same room.
	e.mu.RLock()
	subs := make([]Subscriber, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	for _, sub := range subs {
		_ = sub.Send(data)
	}
	return len(subs)
}

// Count returns the number of subscribers currently joined to the room.
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	e, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.RLock()
	n := len(e.subs)
	e.mu.RUnlock()
	return n
}

// Rooms returns the number of rooms with at least one subscriber.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	n := len(r.rooms)
	r.mu.RUnlock()
	return n
}

// dropIfEmpty removes a room entry that has drained, re-checking under both
// locks since a Join may have raced the final Leave. Removed entries are
// marked dropped so a joiner holding a stale reference retries instead of
// inserting into a set Publish can no longer reach.
func (r *Registry) dropIfEmpty(roomID string, e *entry) {
	r.mu.Lock()
	e.mu.Lock()
	if len(e.subs) == 0 && r.rooms[roomID] == e {
		delete(r.rooms, roomID)
		e.dropped = true
	}
	e.mu.Unlock()
	r.mu.Unlock()
}
