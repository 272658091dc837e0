package graphql

import (
	"context"
	"sync"
)

// Transport submits an operation and returns its results as a stream. A
// request/response transport yields exactly one result; a streaming
// transport yields one per server push.
type Transport interface {
	Submit(ctx context.Context, op Operation) (Stream, error)
}

// Stream delivers the results of a submitted operation.
type Stream interface {
	// Events is closed when the operation completes, fails or is closed.
	Events() <-chan *Response
	// Err reports why the stream ended. Only meaningful after Events is closed;
	// nil means the server completed the operation.
	Err() error
	// Close stops the operation. Safe to call more than once.
	Close() error
}

// resultStream is a completed stream holding a single response.
type resultStream struct {
	ch chan *Response
}

func newResultStream(resp *Response) *resultStream {
	ch := make(chan *Response, 1)
	ch <- resp
	close(ch)
	return &resultStream{ch: ch}
}

func (s *resultStream) Events() <-chan *Response { return s.ch }
func (s *resultStream) Err() error               { return nil }
func (s *resultStream) Close() error             { return nil }

// streamState is the shared bookkeeping for long-lived streams.
type streamState struct {
	events chan *Response
	done   chan struct{}

	mu  sync.Mutex
	err error

	finishOnce sync.Once
}

func newStreamState(buffer int) *streamState {
	return &streamState{
		events: make(chan *Response, buffer),
		done:   make(chan struct{}),
	}
}

func (s *streamState) Events() <-chan *Response { return s.events }

func (s *streamState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// deliver pushes resp unless the stream was stopped first.
func (s *streamState) deliver(ctx context.Context, resp *Response) bool {
	select {
	case s.events <- resp:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// finish records err and closes the events channel exactly once. Only the
// goroutine that sends on events may call it.
func (s *streamState) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
	})
}
