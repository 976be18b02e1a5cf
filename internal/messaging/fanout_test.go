package messaging

import (
	"sync"
	"testing"
)

type localRecorder struct {
	mu    sync.Mutex
	count int
	calls []string
}

func (l *localRecorder) Publish(roomID string, data []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, roomID+":"+string(data))
	return l.count
}

func TestFanoutWithoutNATSDeliversLocally(t *testing.T) {
	local := &localRecorder{count: 2}
	f := NewFanout(local, nil, "relay-1")

	if err := f.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	n := f.Publish("r1", []byte("hello"))
	if n != 2 {
		t.Errorf("Publish returned %d, want local delivery count 2", n)
	}
	if len(local.calls) != 1 || local.calls[0] != "r1:hello" {
		t.Errorf("local calls = %v, want one delivery to r1", local.calls)
	}
}

func TestFanoutReportsZeroForEmptyRoom(t *testing.T) {
	local := &localRecorder{count: 0}
	f := NewFanout(local, nil, "relay-1")

	if n := f.Publish("empty", []byte("x")); n != 0 {
		t.Errorf("Publish returned %d, want 0", n)
	}
}

func TestFanoutWithoutNATSIsNotRelayed(t *testing.T) {
	f := NewFanout(&localRecorder{}, nil, "relay-1")
	if f.Relayed() {
		t.Error("Relayed() = true for a fan-out with no NATS client")
	}
}
