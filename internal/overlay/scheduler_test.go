package overlay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanko-field/cms/internal/domain"
)

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	wasActive := !f.stopped
	f.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{delay: d, fire: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

func TestSchedulerShowsBannerNowAndModalAfterDelay(t *testing.T) {
	clock := &fakeClock{}
	var shown []string
	scheduler := NewScheduler(0, func(o domain.Overlay) { shown = append(shown, o.ID) }, WithAfterFunc(clock.AfterFunc))

	b, m := banner("b1", "*"), modal("m1", "*")
	scheduler.Schedule(Selection{Banner: &b, Modal: &m})

	require.Equal(t, []string{"b1"}, shown)
	require.True(t, scheduler.Pending())
	require.Equal(t, DefaultModalDelay, clock.last().delay)

	clock.last().fire()
	require.Equal(t, []string{"b1", "m1"}, shown)
	require.False(t, scheduler.Pending())
}

func TestSchedulerCancelsPendingModalOnReschedule(t *testing.T) {
	clock := &fakeClock{}
	var shown []string
	scheduler := NewScheduler(500*time.Millisecond, func(o domain.Overlay) { shown = append(shown, o.ID) }, WithAfterFunc(clock.AfterFunc))

	first := modal("m1", "/donate")
	scheduler.Schedule(Selection{Modal: &first})
	stale := clock.last()

	scheduler.Schedule(Selection{})
	require.True(t, stale.stopped)
	require.False(t, scheduler.Pending())

	// A timer that already raced past Stop must not show the stale modal.
	stale.fire()
	require.Empty(t, shown)
}

func TestSchedulerCancel(t *testing.T) {
	clock := &fakeClock{}
	scheduler := NewScheduler(time.Second, nil, WithAfterFunc(clock.AfterFunc))
	m := modal("m1", "*")
	scheduler.Schedule(Selection{Modal: &m})

	scheduler.Cancel()
	require.True(t, clock.last().stopped)
	require.False(t, scheduler.Pending())
}

func TestSchedulerWithRealTimer(t *testing.T) {
	done := make(chan string, 1)
	scheduler := NewScheduler(10*time.Millisecond, func(o domain.Overlay) { done <- o.ID })
	m := modal("m1", "*")
	scheduler.Schedule(Selection{Modal: &m})

	select {
	case id := <-done:
		require.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("modal was not shown")
	}
}
