package creature

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator hands out process-unique, monotonically increasing entity ids.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewIDGenerator builds a generator reading randomness from entropy. A nil
// reader falls back to crypto/rand.
func NewIDGenerator(entropy io.Reader, now func() time.Time) *IDGenerator {
	if entropy == nil {
		entropy = rand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{entropy: ulid.Monotonic(entropy, 0), now: now}
}

// Next returns a fresh id. Ids generated within the same millisecond keep
// increasing, so no id is ever repeated by one generator.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}
