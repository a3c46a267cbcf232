// Package ids provides the clock and ULID generator injected into services.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

type Clock interface{ Now() time.Time }

type RealClock struct{}

// MySQL の DATETIME(6) に合わせてマイクロ秒で丸める
func (RealClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

type IDGen interface{ NewULID(t time.Time) string }

// ULIDGen shares one monotonic entropy source so ids minted within the same
// millisecond still sort in creation order.
type ULIDGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDGen() *ULIDGen {
	return &ULIDGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ULIDGen) NewULID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
