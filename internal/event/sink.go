package event

import (
	"context"
	"sync"
)

// MemorySink collects events in memory. Used by tests and as the default
// sink when no dispatcher is configured.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish appends the event.
func (s *MemorySink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType filters published events by kind.
func (s *MemorySink) ByType(t Type) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// FanOut publishes each event to every child sink in order. The first
// failure is returned but remaining sinks still receive the event.
type FanOut struct {
	sinks []Sink
}

// NewFanOut combines sinks.
func NewFanOut(sinks ...Sink) *FanOut {
	return &FanOut{sinks: sinks}
}

// Publish delivers to all child sinks.
func (f *FanOut) Publish(ctx context.Context, ev Event) error {
	var firstErr error
	for _, s := range f.sinks {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
