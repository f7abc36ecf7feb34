package gateway

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer ticks after a delay that can be reset or stopped. The gateway
// uses it to schedule the stalled session check.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the timer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		shutdownCh:   make(chan struct{}),
	}
}

// NewPeriodicControlTimer returns a ControlTimer with fixed delays. A zero
// delay never ticks.
func NewPeriodicControlTimer() *ControlTimer {
	after := func(d time.Duration) <-chan time.Time {
		if d <= 0 {
			return nil
		}
		return time.After(d)
	}
	return NewControlTimer(after)
}

// Run ...
func (c *ControlTimer) Run(init time.Duration) {
	timer := c.timerFactory(init)
	for {
		select {
		case <-timer:
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
			timer = nil
		case t := <-c.resetCh:
			timer = c.timerFactory(t)
		case <-c.shutdownCh:
			return
		}
	}
}

// Reset restarts the timer with delay d.
func (c *ControlTimer) Reset(d time.Duration) {
	select {
	case c.resetCh <- d:
	case <-c.shutdownCh:
	}
}

// Shutdown ...
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
