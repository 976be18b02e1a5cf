package uid

import (
	"testing"
	"time"
)

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewSortsByTime(t *testing.T) {
	a := New()
	time.Sleep(2 * time.Millisecond)
	b := New()

	if !(a < b) {
		t.Errorf("expected %s < %s for ids generated 2ms apart", a, b)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	id := New()
	after := time.Now()

	ts, err := Timestamp(id)
	if err != nil {
		t.Fatalf("Timestamp(%s): %v", id, err)
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("timestamp %v outside [%v, %v]", ts, before, after)
	}
}

func TestTimestampOrdering(t *testing.T) {
	a := New()
	time.Sleep(2 * time.Millisecond)
	b := New()

	ta, err := Timestamp(a)
	if err != nil {
		t.Fatal(err)
	}
	tb, err := Timestamp(b)
	if err != nil {
		t.Fatal(err)
	}
	if tb.Before(ta) {
		t.Errorf("timestamps out of order: %v then %v", ta, tb)
	}
}

func TestTimestampMalformed(t *testing.T) {
	for _, id := range []string{"", "not-a-uuid", "zzzzzzzz-zzzz-7zzz-zzzz-zzzzzzzzzzzz"} {
		if _, err := Timestamp(id); err == nil {
			t.Errorf("expected error for %q", id)
		}
	}
}
