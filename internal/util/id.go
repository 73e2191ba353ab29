package util

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

var (
	opIDMu      sync.Mutex
	opIDEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewOpID returns a lexicographically sortable, monotonically increasing id.
// Operation ids double as the commit-order tie-break, so they must sort in
// generation order even within the same millisecond.
func NewOpID() string {
	opIDMu.Lock()
	defer opIDMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), opIDEntropy).String()
}
