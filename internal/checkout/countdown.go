package checkout

import (
	"sync"
	"time"
)

// CountdownSeconds is the proof-submission window shown to the customer.
const CountdownSeconds = 600

// Countdown counts whole seconds down to zero and fires its expiry callback
// exactly once. Stop cancels the underlying ticker so an abandoned flow
// never leaks a timer; stopping after expiry is a no-op.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	onExpire  func()
	fired     bool
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewCountdown returns a countdown starting at the given number of seconds.
// onExpire may be nil.
func NewCountdown(seconds int, onExpire func()) *Countdown {
	return &Countdown{
		remaining: seconds,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
	}
}

// Start begins ticking once per second in a background goroutine.
func (c *Countdown) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if c.Tick() == 0 {
					return
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Tick decrements the countdown by one second and returns the remaining
// seconds. At zero the expiry callback fires; further ticks do nothing.
func (c *Countdown) Tick() int {
	c.mu.Lock()
	if c.remaining <= 0 {
		c.mu.Unlock()
		return 0
	}
	c.remaining--
	remaining := c.remaining
	expired := remaining == 0 && !c.fired
	if expired {
		c.fired = true
	}
	cb := c.onExpire
	c.mu.Unlock()

	if expired && cb != nil {
		cb()
	}
	return remaining
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stop cancels the countdown. The expiry callback will not fire after Stop
// unless it already has.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
