package indexer

import (
	"sync"

	"pictor/internal/events"
)

// StatusSink is the mutable current-status-text surface. Components write
// human-readable progress strings here after each folder pass and metadata
// batch; consumers read the latest text or subscribe on the bus. Purely
// informational, never structured.
type StatusSink struct {
	mu   sync.Mutex
	text string
	bus  *events.Broker
}

// NewStatusSink creates a status sink publishing updates on the given bus.
// A nil bus is fine; the sink then only holds the text.
func NewStatusSink(bus *events.Broker) *StatusSink {
	return &StatusSink{bus: bus}
}

// Set replaces the current status text.
func (s *StatusSink) Set(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.PublishWithData(events.StatusUpdated, text)
	}
}

// Text returns the current status text.
func (s *StatusSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}
