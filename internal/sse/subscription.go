package sse

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/smart-daily/dailychat/pkg/logger"
)

// Subscription delivers decoded events from a response body on a channel.
// The channel is closed at end of stream, on read failure, or when the
// subscription is cancelled; Err reports why.
type Subscription struct {
	events chan Event
	body   io.ReadCloser
	cancel context.CancelFunc

	mu   sync.Mutex
	err  error
	once sync.Once
}

// Subscribe starts decoding body in the background. Cancelling ctx or
// calling Close stops delivery and closes body.
func Subscribe(ctx context.Context, body io.ReadCloser, log *logger.Logger) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		events: make(chan Event),
		body:   body,
		cancel: cancel,
	}

	go func() {
		<-ctx.Done()
		s.closeBody()
	}()

	go s.run(ctx, NewDecoder(body, log))

	return s
}

// Events returns the ordered event channel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Err returns the terminal error after Events has been drained. A clean end
// of stream yields nil.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the subscription.
func (s *Subscription) Close() {
	s.cancel()
}

func (s *Subscription) run(ctx context.Context, dec *Decoder) {
	defer close(s.events)
	defer s.cancel()

	for {
		ev, err := dec.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				s.setErr(err)
			}
			return
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Subscription) closeBody() {
	s.once.Do(func() {
		s.body.Close()
	})
}
