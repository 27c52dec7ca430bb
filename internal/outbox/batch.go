package outbox

import "sync"

// idleTicksBeforeWiden is how many consecutive empty polls it takes before
// the controller widens the batch again after a quiet period.
const idleTicksBeforeWiden = 3

// BatchController adapts the relay's claim size to broker health: grow on
// clean batches, halve on any failure, and widen again after quiet periods
// so latency recovers quickly.
type BatchController struct {
	mu        sync.Mutex
	size      int
	min       int
	max       int
	idleTicks int
}

// NewBatchController constructs a controller clamped to [min, max] starting
// at initial.
func NewBatchController(initial, min, max int) *BatchController {
	if min <= 0 {
		min = 10
	}
	if max < min {
		max = min
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &BatchController{size: initial, min: min, max: max}
}

// Size returns the batch size for the next tick.
func (c *BatchController) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// RecordSuccess widens the batch after a fully successful batch: +25% or
// +10, whichever is larger, capped at max.
func (c *BatchController) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idleTicks = 0
	c.widen()
}

// RecordFailure halves the batch after any failure in a batch, floored at min.
func (c *BatchController) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idleTicks = 0
	c.size /= 2
	if c.size < c.min {
		c.size = c.min
	}
}

// RecordIdle counts an empty poll; after three in a row the batch is widened
// toward max.
func (c *BatchController) RecordIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idleTicks++
	if c.idleTicks >= idleTicksBeforeWiden {
		c.idleTicks = 0
		c.widen()
	}
}

func (c *BatchController) widen() {
	step := c.size / 4
	if step < 10 {
		step = 10
	}
	c.size += step
	if c.size > c.max {
		c.size = c.max
	}
}
