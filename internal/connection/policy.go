package connection

import (
	"sync"
	"time"
)

// reconnectPolicy computes retry delays and eligibility and owns the
// single in-flight reconnect timer. At most one timer is armed at any
// time; scheduling a new one supersedes any prior unfired timer.
type reconnectPolicy struct {
	maxAttempts *int     // nil = unbounded
	maxGap      *float64 // seconds, nil = no clamp

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func newReconnectPolicy(maxAttempts *int, maxGapSeconds *float64) *reconnectPolicy {
	return &reconnectPolicy{
		maxAttempts: maxAttempts,
		maxGap:      maxGapSeconds,
	}
}

// computeDelay returns the wait before the next reconnect given the
// number of reconnections already scheduled: attempts squared, in
// seconds, clamped to the configured gap ceiling.
func (p *reconnectPolicy) computeDelay(attempts int) time.Duration {
	secs := float64(attempts) * float64(attempts)
	if p.maxGap != nil && secs > *p.maxGap {
		secs = *p.maxGap
	}
	return time.Duration(secs * float64(time.Second))
}

// shouldAttempt reports whether another reconnection may be scheduled.
func (p *reconnectPolicy) shouldAttempt(attempts int) bool {
	return p.maxAttempts == nil || attempts < *p.maxAttempts
}

// schedule arms a single-shot timer, replacing any previously armed one.
// The old timer never double-fires. onFire receives the scheduling
// generation so a superseded fire can detect it is stale.
func (p *reconnectPolicy) schedule(delay time.Duration, onFire func(gen uint64)) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(delay, func() { onFire(gen) })
	return gen
}

// cancel stops any pending timer and invalidates its generation.
func (p *reconnectPolicy) cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}
