package eventid

import (
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGeneratorRejectsWorkerIDOutOfRange(t *testing.T) {
	_, err := New(-1)
	require.Error(t, err)

	_, err = New(MaxWorkerID + 1)
	require.Error(t, err)

	_, err = New(MaxWorkerID)
	require.NoError(t, err)
}

func TestGenerateStrictlyIncreasing(t *testing.T) {
	gen, err := New(7)
	require.NoError(t, err)

	var prev int64
	for i := 0; i < 10000; i++ {
		s, err := gen.Generate()
		require.NoError(t, err)
		id, err := strconv.ParseInt(s, 10, 64)
		require.NoError(t, err)
		require.Greater(t, id, prev, "id %d not greater than predecessor", i)
		prev = id
	}
}

func TestGenerateUniqueAcrossGoroutines(t *testing.T) {
	gen, err := New(1)
	require.NoError(t, err)

	const (
		workers = 8
		perW    = 2000
	)

	var (
		mu  sync.Mutex
		ids = make([]string, 0, workers*perW)
		wg  sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perW)
			for i := 0; i < perW; i++ {
				s, err := gen.Generate()
				if err != nil {
					t.Error(err)
					return
				}
				local = append(local, s)
			}
			mu.Lock()
			ids = append(ids, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, workers*perW)
}

// driftClock replays a scripted series of instants, then keeps stepping the
// final instant forward so spin-waits terminate.
type driftClock struct {
	mu     sync.Mutex
	script []time.Time
	last   time.Time
}

func (c *driftClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.script) > 0 {
		c.last = c.script[0]
		c.script = c.script[1:]
		return c.last
	}
	c.last = c.last.Add(time.Millisecond)
	return c.last
}

func TestSmallClockRegressionIsAbsorbed(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := &driftClock{script: []time.Time{
		base,
		base.Add(-50 * time.Millisecond), // regression within tolerance
	}}

	gen, err := NewWithClock(3, clk)
	require.NoError(t, err)

	first, err := gen.Generate()
	require.NoError(t, err)

	second, err := gen.Generate()
	require.NoError(t, err)

	a, _ := strconv.ParseInt(first, 10, 64)
	b, _ := strconv.ParseInt(second, 10, 64)
	require.Greater(t, b, a)
}

func TestLargeClockRegressionFails(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := &driftClock{script: []time.Time{
		base,
		base.Add(-5 * time.Second),
	}}

	gen, err := NewWithClock(3, clk)
	require.NoError(t, err)

	_, err = gen.Generate()
	require.NoError(t, err)

	_, err = gen.Generate()
	var cmb *ClockMovedBackwardsError
	require.ErrorAs(t, err, &cmb)
	require.Equal(t, int64(5000), cmb.LastMillis-cmb.CurrentMillis)
}

func TestSequenceWrapsWithinMillisecond(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Same millisecond long enough to exhaust the 12-bit sequence once.
	script := make([]time.Time, 0, maxSequence+2)
	for i := 0; i < maxSequence+2; i++ {
		script = append(script, base)
	}
	clk := &driftClock{script: script}

	gen, err := NewWithClock(0, clk)
	require.NoError(t, err)

	ids := make([]int64, 0, maxSequence+2)
	for i := 0; i < maxSequence+2; i++ {
		s, err := gen.Generate()
		require.NoError(t, err)
		id, _ := strconv.ParseInt(s, 10, 64)
		ids = append(ids, id)
	}

	require.True(t, sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }))
	for i := 1; i < len(ids); i++ {
		require.NotEqual(t, ids[i-1], ids[i])
	}
}
