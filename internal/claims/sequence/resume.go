package sequence

import (
	"context"
	"fmt"
	"time"
)

// HighWater reports the highest sequence a store has recorded.
type HighWater interface {
	MaxSequence(ctx context.Context) (uint64, error)
}

// ResumeTicker starts a ticker at the store's high-water mark, so a restarted
// process never hands out a sequence below one already stored.
func ResumeTicker(ctx context.Context, hw HighWater, interval time.Duration) (*Ticker, error) {
	floor, err := hw.MaxSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume ticker: %w", err)
	}
	return NewTicker(floor, interval), nil
}

// ResumeRedis seeds the reader's floor from the store, so a Redis key restored
// from an older snapshot cannot rewind the height after a restart.
func ResumeRedis(ctx context.Context, r *Redis, hw HighWater) error {
	floor, err := hw.MaxSequence(ctx)
	if err != nil {
		return fmt.Errorf("resume redis height: %w", err)
	}
	r.raise(floor)
	return nil
}
