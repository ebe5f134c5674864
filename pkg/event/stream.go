package event

import "sync"

// Stream is an ordered channel of progress events. Emission order within
// one execution is the order consumers observe.
type Stream struct {
	ch     chan *Event
	mu     sync.Mutex
	closed bool
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{ch: make(chan *Event, buffer)}
}

// Emit appends an event to the stream. Emit on a closed stream is a no-op,
// so producers racing a consumer cancellation never panic.
func (s *Stream) Emit(e *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- e
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan *Event {
	return s.ch
}

// Close ends the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
