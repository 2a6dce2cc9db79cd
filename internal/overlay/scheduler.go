package overlay

import (
	"sync"
	"time"

	"github.com/hanko-field/cms/internal/domain"
)

// DefaultModalDelay holds a modal back so it does not interrupt the first paint.
const DefaultModalDelay = time.Second

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through an adapter.
type AfterFunc func(d time.Duration, f func()) Timer

// ShowFunc renders an overlay.
type ShowFunc func(overlay domain.Overlay)

// SchedulerOption customises a Scheduler.
type SchedulerOption func(*Scheduler)

// WithAfterFunc replaces the timer source, mainly for tests.
func WithAfterFunc(fn AfterFunc) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.afterFunc = fn
		}
	}
}

// Scheduler shows a selection: the banner at once and the modal after a delay.
// Scheduling a new selection or calling Cancel stops a modal that has not fired yet.
type Scheduler struct {
	delay     time.Duration
	show      ShowFunc
	afterFunc AfterFunc

	mu         sync.Mutex
	pending    Timer
	generation uint64
}

// NewScheduler builds a scheduler. A non-positive delay uses DefaultModalDelay.
func NewScheduler(delay time.Duration, show ShowFunc, opts ...SchedulerOption) *Scheduler {
	if delay <= 0 {
		delay = DefaultModalDelay
	}
	if show == nil {
		show = func(domain.Overlay) {}
	}
	s := &Scheduler{
		delay: delay,
		show:  show,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay reports the modal delay.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule replaces whatever was pending with selection.
func (s *Scheduler) Schedule(selection Selection) {
	s.mu.Lock()
	s.stopLocked()
	s.generation++
	generation := s.generation
	if selection.Modal != nil {
		modal := *selection.Modal
		s.pending = s.afterFunc(s.delay, func() {
			s.mu.Lock()
			if s.generation != generation {
				s.mu.Unlock()
				return
			}
			s.pending = nil
			s.mu.Unlock()
			s.show(modal)
		})
	}
	s.mu.Unlock()

	if selection.Banner != nil {
		s.show(*selection.Banner)
	}
}

// Cancel stops a pending modal, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.generation++
}

// Pending reports whether a modal is waiting for its delay.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Scheduler) stopLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}
