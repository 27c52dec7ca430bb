// Package eventid mints time-sortable 64-bit event identifiers.
//
// The layout follows the Snowflake shape: 41 bits of milliseconds since the
// 2024-01-01 epoch, 10 bits of worker id, 12 bits of per-millisecond sequence.
// Ids minted by one generator are strictly monotonically increasing, which
// gives the outbox a natural insertion order without a separate sequence
// column.
package eventid

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/eventrelay/internal/clock"
)

const (
	// epochMillis is 2024-01-01T00:00:00Z.
	epochMillis int64 = 1704067200000

	workerBits   = 10
	sequenceBits = 12

	// MaxWorkerID is the largest worker id the 10-bit field can carry.
	MaxWorkerID = (1 << workerBits) - 1 // 1023

	maxSequence = (1 << sequenceBits) - 1 // 4095

	timestampShift = workerBits + sequenceBits
	workerShift    = sequenceBits

	// maxBackwardsDrift is the largest clock regression the generator
	// absorbs by waiting instead of failing.
	maxBackwardsDrift = 100 * time.Millisecond
)

// ClockMovedBackwardsError reports a clock regression larger than the
// generator is willing to wait out. The generator refuses to mint ids until
// the clock catches up.
type ClockMovedBackwardsError struct {
	LastMillis    int64
	CurrentMillis int64
}

func (e *ClockMovedBackwardsError) Error() string {
	return fmt.Sprintf("eventid: clock moved backwards by %dms (last=%d current=%d)",
		e.LastMillis-e.CurrentMillis, e.LastMillis, e.CurrentMillis)
}

// Generator is a thread-safe monotonic id source. State is guarded by a
// single mutex per instance; the worst case blocks briefly on sequence
// exhaustion or a small clock regression.
type Generator struct {
	mu       sync.Mutex
	clock    clock.Clock
	workerID int64
	lastTs   int64
	sequence int64
}

// New returns a Generator for the given worker id (0..MaxWorkerID) using the
// system clock.
func New(workerID int) (*Generator, error) {
	return NewWithClock(workerID, clock.System())
}

// NewWithClock is New with an injectable clock.
func NewWithClock(workerID int, clk clock.Clock) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, fmt.Errorf("eventid: worker id %d out of range [0, %d]", workerID, MaxWorkerID)
	}
	return &Generator{clock: clk, workerID: int64(workerID), lastTs: -1}, nil
}

// Generate mints the next id as a decimal string.
func (g *Generator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.millis()
	if now < g.lastTs {
		drift := time.Duration(g.lastTs-now) * time.Millisecond
		if drift > maxBackwardsDrift {
			return "", &ClockMovedBackwardsError{LastMillis: g.lastTs, CurrentMillis: now}
		}
		now = g.waitUntilAfter(g.lastTs)
	}

	if now == g.lastTs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence exhausted within this millisecond.
			now = g.waitUntilAfter(g.lastTs)
		}
	} else {
		g.sequence = 0
	}
	g.lastTs = now

	id := (now-epochMillis)<<timestampShift | g.workerID<<workerShift | g.sequence
	return strconv.FormatInt(id, 10), nil
}

func (g *Generator) millis() int64 {
	return g.clock.Now().UnixMilli()
}

// waitUntilAfter spins until the clock passes ts. Bounded in practice by
// maxBackwardsDrift or one millisecond of sequence pressure.
func (g *Generator) waitUntilAfter(ts int64) int64 {
	now := g.millis()
	for now <= ts {
		time.Sleep(50 * time.Microsecond)
		now = g.millis()
	}
	return now
}

// DefaultWorkerID derives a worker id from the last 10 bits of the first
// hardware address on the host. Explicit configuration is preferred; the
// derived id is only collision-free while MAC suffixes are unique across
// relay replicas, so a warning is logged.
func DefaultWorkerID(log zerolog.Logger) int {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			hw := iface.HardwareAddr
			if len(hw) < 2 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			id := (int(hw[len(hw)-2])<<8 | int(hw[len(hw)-1])) & MaxWorkerID
			log.Warn().
				Str("interface", iface.Name).
				Int("worker_id", id).
				Msg("worker id derived from MAC address; set ID_WORKER_ID explicitly in production")
			return id
		}
	}
	log.Warn().Msg("no usable hardware address; falling back to worker id 0")
	return 0
}
