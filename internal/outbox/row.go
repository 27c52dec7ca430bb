// Package outbox implements the transactional outbox: durable queue rows
// written inside the producing service's database transaction and relayed to
// the broker by a background loop with retry, backoff, adaptive batching, and
// circuit breaking.
package outbox

import (
	"time"
)

// Status is the row lifecycle state. PENDING rows are eligible for relay;
// PUBLISHED and FAILED are terminal and only removed by cleanup.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"
)

// maxErrorMessageLen bounds the persisted failure text.
const maxErrorMessageLen = 500

// Row is one durable outbox entry. Rows are created by the Writer inside the
// caller's transaction and mutated only by the relay under row-level locks.
type Row struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	OccurredAt    time.Time
	Status        Status
	RetryCount    int
	NextRetryAt   *time.Time
	PublishedAt   *time.Time
	ErrorMessage  string
	Version       int64
}

// MarkPublished transitions the row to its successful terminal state.
func (r *Row) MarkPublished(now time.Time) {
	r.Status = StatusPublished
	r.PublishedAt = &now
	r.NextRetryAt = nil
	r.ErrorMessage = ""
}

// ScheduleRetry records a failed send: bumps the retry counter, stores the
// truncated error, and either schedules the next attempt with exponential
// backoff or, once maxRetries is reached, flips the row to FAILED.
func (r *Row) ScheduleRetry(now time.Time, sendErr error, base, ceiling time.Duration, maxRetries int) {
	backoff := Backoff(r.RetryCount, base, ceiling)
	r.RetryCount++
	r.ErrorMessage = truncate(sendErr.Error(), maxErrorMessageLen)

	if r.RetryCount >= maxRetries {
		r.Status = StatusFailed
		r.NextRetryAt = nil
		return
	}
	next := now.Add(backoff)
	r.NextRetryAt = &next
}

// Backoff returns min(2^retryCount * base, ceiling).
func Backoff(retryCount int, base, ceiling time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// Guard the shift; past 62 the multiplication overflows anyway.
	if retryCount > 30 {
		return ceiling
	}
	d := base * time.Duration(int64(1)<<uint(retryCount))
	if d > ceiling || d <= 0 {
		return ceiling
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
