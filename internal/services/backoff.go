package services

import (
	"math/rand"
	"sync"
	"time"
)

const (
	reconnectBaseDelay = 5 * time.Second
	reconnectMaxDelay  = 5 * time.Minute
)

// ReconnectPolicy produces bounded exponential delays with jitter for
// scheduling reconnection attempts. There is no attempt cap: a session
// facing a transient outage retries until it reconnects or is logged out.
type ReconnectPolicy struct {
	base time.Duration
	max  time.Duration

	mu      sync.Mutex
	attempt int
}

// NewReconnectPolicy creates a policy with the standard base and cap.
func NewReconnectPolicy() *ReconnectPolicy {
	return &ReconnectPolicy{base: reconnectBaseDelay, max: reconnectMaxDelay}
}

// Next returns the delay before the next attempt: base doubled per attempt,
// capped, with ±20% jitter.
func (p *ReconnectPolicy) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	delay := p.base << p.attempt
	if delay > p.max || delay <= 0 {
		delay = p.max
	} else {
		p.attempt++
	}

	jitter := time.Duration(rand.Int63n(int64(delay)*2/5+1)) - delay/5
	return delay + jitter
}

// Reset clears the attempt counter after a successful connection.
func (p *ReconnectPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempt = 0
}
