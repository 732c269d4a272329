package memory

import (
	"context"
	"sync"

	"issuance/pkg/platform/events"
)

// Sink keeps every written event in memory. Used by the default in-process
// wiring and by tests asserting on emitted events.
type Sink struct {
	mu     sync.RWMutex
	events []events.Event
}

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Write(_ context.Context, batch []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

// All returns a copy of every event in write order.
func (s *Sink) All() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event{}, s.events...)
}

func (s *Sink) ByKind(kind events.Kind) []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// Recorder is a synchronous Emitter for tests: events are visible as soon as
// Emit returns.
type Recorder struct {
	Sink
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ctx context.Context, kind events.Kind, key string, payload map[string]any) {
	_ = r.Write(ctx, []events.Event{{Kind: kind, Key: key, Payload: payload}})
}
