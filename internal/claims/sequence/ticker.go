package sequence

import (
	"context"
	"sync/atomic"
	"time"
)

// Ticker advances the height by one every interval, standing in for a block
// producer in single-node deployments.
type Ticker struct {
	height   atomic.Uint64
	interval time.Duration
}

func NewTicker(start uint64, interval time.Duration) *Ticker {
	t := &Ticker{interval: interval}
	t.height.Store(start)
	return t
}

func (t *Ticker) Current(context.Context) (uint64, error) {
	return t.height.Load(), nil
}

// Run advances the height until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			t.height.Add(1)
		}
	}
}
