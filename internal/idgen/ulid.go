package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates strictly increasing ULIDs. Message history is
// ordered by ID, so two IDs handed out by one generator never compare equal
// or out of order, even within the same millisecond or if the wall clock
// steps back.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
	now     func() time.Time
}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate returns a new ID and the creation time encoded in it.
func (g *ULIDGenerator) Generate() (string, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now())
	if ms < g.lastMs {
		ms = g.lastMs
	}

	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate ULID: %w", err)
	}
	g.lastMs = ms

	return id.String(), ulid.Time(ms).UTC(), nil
}

// Validate reports whether id is a well formed ULID, with a reason when it
// is not.
func Validate(id string) (bool, string) {
	if len(id) != ulid.EncodedSize {
		return false, fmt.Sprintf("expected length %d, got %d", ulid.EncodedSize, len(id))
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return false, fmt.Sprintf("invalid ULID format: %v", err)
	}
	return true, ""
}
