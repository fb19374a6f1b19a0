// Package collector routes component interactions on a message to a single
// serial handler with an idle timeout. At most one collector is attached to
// a message; attaching again stops the previous one first.
package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	appLog "gatherbot/internal/log"
	"gatherbot/internal/platform"
)

// Reason says why a collector ended.
type Reason int

const (
	// Stopped means Stop was called or a newer collector replaced this one.
	Stopped Reason = iota
	// TimedOut means no interaction arrived within the timeout.
	TimedOut
)

func (r Reason) String() string {
	if r == TimedOut {
		return "timeout"
	}
	return "stopped"
}

// Handler processes one interaction. Calls are never concurrent for a
// single collector. ctx is cancelled as soon as the collector is stopped or
// replaced, so waits made inside the handler end with it.
type Handler func(ctx context.Context, in platform.Interaction)

// EndFunc runs once when the collector ends, after the last Handler call.
type EndFunc func(reason Reason)

type collector struct {
	id        uint64
	messageID string
	timeout   time.Duration
	handle    Handler
	onEnd     EndFunc

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan platform.Interaction
	stop   chan struct{}
	once   sync.Once
	done   chan struct{}
}

func (c *collector) run(r *Registry) {
	defer close(c.done)
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	reason := Stopped
loop:
	for {
		// Stop wins over queued work.
		select {
		case <-c.stop:
			break loop
		default:
		}
		select {
		case <-c.stop:
			break loop
		case <-timer.C:
			reason = TimedOut
			break loop
		case in := <-c.queue:
			c.handle(c.ctx, in)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.timeout)
		}
	}
	c.cancel()
	r.detach(c)
	if c.onEnd != nil {
		c.onEnd(reason)
	}
}

func (c *collector) halt() {
	c.once.Do(func() {
		close(c.stop)
		c.cancel()
	})
}

// Registry owns every active collector and message waiter.
type Registry struct {
	mu       sync.Mutex
	byMsg    map[string]*collector
	waiters  map[waiterKey]*waiter
	nextID   atomic.Uint64
	handled  atomic.Int64
	queueLen int
}

func NewRegistry() *Registry {
	return &Registry{
		byMsg:    make(map[string]*collector),
		waiters:  make(map[waiterKey]*waiter),
		queueLen: 16,
	}
}

// Attach starts a collector on messageID. Any collector already attached to
// that message is stopped and fully drained before the new one begins, so
// its handler can never run after Attach returns. Attach must not be called
// from the handler of the collector it replaces.
func (r *Registry) Attach(messageID string, timeout time.Duration, handle Handler, onEnd EndFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{
		ctx:       ctx,
		cancel:    cancel,
		id:        r.nextID.Inc(),
		messageID: messageID,
		timeout:   timeout,
		handle:    handle,
		onEnd:     onEnd,
		queue:     make(chan platform.Interaction, r.queueLen),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	prev := r.byMsg[messageID]
	r.byMsg[messageID] = c
	r.mu.Unlock()

	if prev != nil {
		prev.halt()
		<-prev.done
	}
	go c.run(r)
}

// Dispatch hands in to the collector on in.MessageID. It reports false when
// no collector is attached or its queue is full.
func (r *Registry) Dispatch(in platform.Interaction) bool {
	r.mu.Lock()
	c := r.byMsg[in.MessageID]
	r.mu.Unlock()
	if c == nil {
		return false
	}
	select {
	case <-c.stop:
		return false
	default:
	}
	select {
	case c.queue <- in:
		r.handled.Inc()
		return true
	default:
		appLog.Warn("collector queue full, dropping interaction", "message", in.MessageID, "custom_id", in.CustomID)
		return false
	}
}

// Stop ends the collector on messageID without waiting for it. Calling it
// from inside that collector's own handler is safe.
func (r *Registry) Stop(messageID string) {
	r.mu.Lock()
	c := r.byMsg[messageID]
	r.mu.Unlock()
	if c != nil {
		c.halt()
	}
}

func (r *Registry) Active(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byMsg[messageID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byMsg)
}

// Handled counts interactions accepted by Dispatch.
func (r *Registry) Handled() int64 { return r.handled.Load() }

func (r *Registry) detach(c *collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byMsg[c.messageID] == c {
		delete(r.byMsg, c.messageID)
	}
}
