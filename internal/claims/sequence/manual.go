// Package sequence provides height sources for the claim registry.
//
// Every source is monotonic: Current never returns a value lower than one it
// returned before.
package sequence

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Manual is a height set explicitly by its owner. Tests and tooling use it to
// pin the value a registry call observes.
type Manual struct {
	height atomic.Uint64
}

func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.height.Store(start)
	return m
}

func (m *Manual) Current(context.Context) (uint64, error) {
	return m.height.Load(), nil
}

// Set moves the height to h. Moving backwards is rejected.
func (m *Manual) Set(h uint64) error {
	for {
		cur := m.height.Load()
		if h < cur {
			return fmt.Errorf("sequence cannot decrease from %d to %d", cur, h)
		}
		if m.height.CompareAndSwap(cur, h) {
			return nil
		}
	}
}

// Advance adds n to the height and returns the new value.
func (m *Manual) Advance(n uint64) uint64 {
	return m.height.Add(n)
}
