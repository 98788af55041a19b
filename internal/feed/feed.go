// Package feed fans the latest value of a stream out to subscribers.
package feed

import (
	"context"
	"sync"
)

// Feed delivers published values to every subscriber. Each subscriber holds at
// most one pending value; a newer value replaces an unread one, so Publish never
// blocks on a slow reader. The zero Feed is ready to use.
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[*subscriber[T]]struct{}
}

type subscriber[T any] struct {
	ch chan T
}

// Subscribe returns a channel receiving published values until ctx is done,
// after which the channel is closed.
func (f *Feed[T]) Subscribe(ctx context.Context) <-chan T {
	s := &subscriber[T]{ch: make(chan T, 1)}

	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[*subscriber[T]]struct{})
	}
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, s)
		close(s.ch)
		f.mu.Unlock()
	}()
	return s.ch
}

// Publish hands v to every current subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		select {
		case s.ch <- v:
			continue
		default:
		}
		// drop the stale value and retry; we hold the lock so nothing else sends
		select {
		case <-s.ch:
		default:
		}
		s.ch <- v
	}
}

// Len reports the number of active subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
