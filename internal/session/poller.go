package session

import (
	"context"
	"time"
)

// Poller drives periodic store reconciliation. A tick fires on the fixed
// interval; Kick requests an early poll when the change watcher sees store
// activity, collapsing into at most one pending early poll.
type Poller struct {
	interval time.Duration
	poll     func(ctx context.Context)
	kick     chan struct{}
}

func NewPoller(interval time.Duration, poll func(ctx context.Context)) *Poller {
	return &Poller{
		interval: interval,
		poll:     poll,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an early poll without blocking.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.kick:
			p.poll(ctx)
		}
	}
}
