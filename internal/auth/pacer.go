// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultUnknownEmailDelay is how long a reset request for an unknown email
// takes before any real delivery has been timed.
const DefaultUnknownEmailDelay = 100 * time.Millisecond

// latencyPacer keeps a moving average of how long issuing and delivering a
// reset link takes. Requests for unknown emails wait that long so response
// times do not reveal which emails are registered.
type latencyPacer struct {
	mu       sync.Mutex
	avg      time.Duration
	observed bool
}

func newLatencyPacer(seed time.Duration) *latencyPacer {
	return &latencyPacer{avg: max(seed, 0)}
}

// observe folds one successful delivery into the average. The first
// observation replaces the seed.
func (p *latencyPacer) observe(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.observed {
		p.avg = d
		p.observed = true
		return
	}
	p.avg = (p.avg*7 + d) / 8
}

func (p *latencyPacer) estimate() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.avg
}

// wait blocks for the current estimate or until ctx is done.
func (p *latencyPacer) wait(ctx context.Context) {
	d := p.estimate()
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
