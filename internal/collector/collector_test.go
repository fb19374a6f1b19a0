package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherbot/internal/platform"
)

func TestDispatchSerial(t *testing.T) {
	r := NewRegistry()
	var mu sync.Mutex
	var got []string
	done := make(chan Reason, 1)

	r.Attach("m1", time.Second, func(_ context.Context, in platform.Interaction) {
		mu.Lock()
		got = append(got, in.CustomID)
		mu.Unlock()
	}, func(reason Reason) { done <- reason })

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, r.Dispatch(platform.Interaction{MessageID: "m1", CustomID: id}))
	}
	assert.False(t, r.Dispatch(platform.Interaction{MessageID: "other"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
	mu.Unlock()

	r.Stop("m1")
	assert.Equal(t, Stopped, <-done)
	assert.False(t, r.Active("m1"))
	assert.EqualValues(t, 3, r.Handled())
}

func TestIdleTimeout(t *testing.T) {
	r := NewRegistry()
	done := make(chan Reason, 1)
	r.Attach("m1", 20*time.Millisecond, func(context.Context, platform.Interaction) {}, func(reason Reason) { done <- reason })

	select {
	case reason := <-done:
		assert.Equal(t, TimedOut, reason)
	case <-time.After(time.Second):
		t.Fatal("collector did not time out")
	}
	assert.Equal(t, 0, r.Len())
}

func TestReplaceStopsPrevious(t *testing.T) {
	r := NewRegistry()
	firstEnded := make(chan Reason, 1)
	var firstCalls, secondCalls int
	var mu sync.Mutex

	r.Attach("m1", time.Minute, func(context.Context, platform.Interaction) {
		mu.Lock()
		firstCalls++
		mu.Unlock()
	}, func(reason Reason) { firstEnded <- reason })

	r.Attach("m1", time.Minute, func(context.Context, platform.Interaction) {
		mu.Lock()
		secondCalls++
		mu.Unlock()
	}, nil)

	assert.Equal(t, Stopped, <-firstEnded)
	require.True(t, r.Dispatch(platform.Interaction{MessageID: "m1"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondCalls == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, firstCalls)
	mu.Unlock()
	assert.Equal(t, 1, r.Len())
	r.Stop("m1")
}

func TestStopFromHandler(t *testing.T) {
	r := NewRegistry()
	done := make(chan Reason, 1)
	r.Attach("m1", time.Minute, func(context.Context, platform.Interaction) { r.Stop("m1") }, func(reason Reason) { done <- reason })
	require.True(t, r.Dispatch(platform.Interaction{MessageID: "m1"}))
	assert.Equal(t, Stopped, <-done)
}

func TestExpectMessage(t *testing.T) {
	r := NewRegistry()
	res := make(chan Await, 1)
	go func() { res <- r.ExpectMessage(context.Background(), "c1", "u1", time.Second) }()

	require.Eventually(t, func() bool {
		return r.DispatchMessage(platform.Message{ChannelID: "c1", AuthorID: "u1", Attachments: []string{"https://cdn/x.png"}})
	}, time.Second, 5*time.Millisecond)

	a := <-res
	assert.Equal(t, Collected, a.Outcome)
	assert.Equal(t, []string{"https://cdn/x.png"}, a.Message.Attachments)
	assert.False(t, r.DispatchMessage(platform.Message{ChannelID: "c1", AuthorID: "u1"}))
}

func TestExpectMessageIgnoresOtherAuthors(t *testing.T) {
	r := NewRegistry()
	res := make(chan Await, 1)
	go func() { res <- r.ExpectMessage(context.Background(), "c1", "u1", 50*time.Millisecond) }()
	time.Sleep(10 * time.Millisecond)
	assert.False(t, r.DispatchMessage(platform.Message{ChannelID: "c1", AuthorID: "u2"}))
	assert.Equal(t, WaitTimedOut, (<-res).Outcome)
}

func TestExpectMessageCancelled(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, WaitStopped, r.ExpectMessage(ctx, "c1", "u1", time.Minute).Outcome)
}

func TestReplaceEndsWaitInsideHandler(t *testing.T) {
	r := NewRegistry()
	waited := make(chan Await, 1)
	r.Attach("m1", time.Minute, func(ctx context.Context, in platform.Interaction) {
		waited <- r.ExpectMessage(ctx, "c1", "u1", time.Minute)
	}, nil)
	require.True(t, r.Dispatch(platform.Interaction{MessageID: "m1"}))

	// Let the handler start waiting before it gets replaced.
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	r.Attach("m1", time.Minute, func(context.Context, platform.Interaction) {}, nil)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case a := <-waited:
		assert.Equal(t, WaitStopped, a.Outcome)
	case <-time.After(time.Second):
		t.Fatal("wait inside the handler did not end")
	}
	r.Stop("m1")
}
