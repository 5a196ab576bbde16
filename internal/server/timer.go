package server

import (
	"sync"
	"time"
)

// IdleTimer fires once when no speech has been heard for its duration.
// Resets closer together than the debounce interval are ignored.
type IdleTimer struct {
	mu            sync.Mutex
	duration      time.Duration
	timer         *time.Timer
	timeoutChan   chan struct{}
	lastReset     time.Time
	resetDebounce time.Duration
}

// NewIdleTimer creates a stopped timer. A non-positive duration disables it.
func NewIdleTimer(duration time.Duration) *IdleTimer {
	return &IdleTimer{
		duration:      duration,
		timeoutChan:   make(chan struct{}, 1),
		resetDebounce: 500 * time.Millisecond,
	}
}

// Start arms the timer, replacing any running countdown.
func (t *IdleTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start()
}

func (t *IdleTimer) start() {
	if t.duration <= 0 {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.duration, func() {
		select {
		case t.timeoutChan <- struct{}{}:
		default:
		}
	})
}

// Stop disarms the timer.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Reset restarts the countdown if the timer is armed.
func (t *IdleTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer == nil || time.Since(t.lastReset) < t.resetDebounce {
		return
	}
	t.start()
	t.lastReset = time.Now()
}

// IsActive reports whether a countdown is armed.
func (t *IdleTimer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// C delivers a value when the timer expires.
func (t *IdleTimer) C() <-chan struct{} {
	return t.timeoutChan
}

func (t *IdleTimer) Duration() time.Duration {
	return t.duration
}
