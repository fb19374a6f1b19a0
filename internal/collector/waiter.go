package collector

import (
	"context"
	"time"

	"gatherbot/internal/platform"
)

// Outcome of a one-shot wait.
type Outcome int

const (
	Collected Outcome = iota
	WaitTimedOut
	WaitStopped
)

// Await is the result of ExpectMessage.
type Await struct {
	Outcome Outcome
	Message platform.Message
}

type waiterKey struct {
	channelID string
	authorID  string
}

type waiter struct {
	ch chan platform.Message
}

// ExpectMessage blocks until authorID posts in channelID, timeout elapses or
// ctx is done. A newer wait on the same channel and author replaces this one,
// which then returns WaitStopped.
func (r *Registry) ExpectMessage(ctx context.Context, channelID, authorID string, timeout time.Duration) Await {
	key := waiterKey{channelID: channelID, authorID: authorID}
	w := &waiter{ch: make(chan platform.Message, 1)}

	r.mu.Lock()
	if prev := r.waiters[key]; prev != nil {
		close(prev.ch)
	}
	r.waiters[key] = w
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.waiters[key] == w {
			delete(r.waiters, key)
		}
		r.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m, ok := <-w.ch:
		if !ok {
			return Await{Outcome: WaitStopped}
		}
		return Await{Outcome: Collected, Message: m}
	case <-timer.C:
		return Await{Outcome: WaitTimedOut}
	case <-ctx.Done():
		return Await{Outcome: WaitStopped}
	}
}

// DispatchMessage delivers m to a waiter on its channel and author. It
// reports whether one consumed it.
func (r *Registry) DispatchMessage(m platform.Message) bool {
	key := waiterKey{channelID: m.ChannelID, authorID: m.AuthorID}
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.waiters[key]
	if w == nil {
		return false
	}
	delete(r.waiters, key)
	w.ch <- m
	return true
}
