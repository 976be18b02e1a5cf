// Package uid generates the sortable identifiers used for rooms and turns.
// Identifiers are UUIDv7: a 48-bit big-endian Unix-millisecond timestamp
// followed by version/variant bits and crypto-random filler, so ids created
// later sort greater and double as creation timestamps.
package uid

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a fresh UUIDv7 in canonical string form. It panics if the
// system's secure random source is unavailable, which is not recoverable.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Timestamp recovers the creation time embedded in the leading 48 bits of a
// UUIDv7 identifier.
func Timestamp(id string) (time.Time, error) {
	raw := strings.ReplaceAll(id, "-", "")
	if len(raw) != 32 {
		return time.Time{}, fmt.Errorf("uid: malformed id %q", id)
	}

	b, err := hex.DecodeString(raw[:12])
	if err != nil {
		return time.Time{}, fmt.Errorf("uid: malformed id %q: %w", id, err)
	}

	var ms int64
	for _, v := range b {
		ms = ms<<8 | int64(v)
	}
	return time.UnixMilli(ms), nil
}
