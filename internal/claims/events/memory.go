package events

import (
	"context"
	"sync"

	"claimreg/internal/claims/models"
)

// MemorySink is an ordered, process-local event log.
type MemorySink struct {
	mu          sync.RWMutex
	events      []models.Event
	subscribers map[int]chan models.Event
	nextSubID   int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{subscribers: make(map[int]chan models.Event)}
}

// Append adds event to the log and offers it to subscribers. A subscriber
// whose buffer is full misses the event; List still has it.
func (s *MemorySink) Append(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// List returns a copy of every event in append order.
func (s *MemorySink) List() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Subscribe returns a channel receiving events appended after the call and a
// function that unsubscribes and closes it.
func (s *MemorySink) Subscribe(buffer int) (<-chan models.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan models.Event, buffer)
	subID := s.nextSubID
	s.nextSubID++
	s.subscribers[subID] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, subID)
			close(ch)
		})
	}
}
