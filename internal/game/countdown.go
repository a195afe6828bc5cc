package game

import (
	"sync"
	"time"
)

// Countdown is a single-shot phase timer ticking at ~1 Hz. Starting a new
// countdown while one is running is dropped, not queued. Callbacks fire at
// most once per countdown and the list is cleared after firing, so every
// phase re-registers the handler it wants.
type Countdown struct {
	tick time.Duration

	mu         sync.Mutex
	isCounting bool
	remaining  int
	callbacks  []func()
}

// NewCountdown returns a countdown ticking once per tick. Production code
// passes time.Second; tests shrink it.
func NewCountdown(tick time.Duration) *Countdown {
	return &Countdown{tick: tick}
}

// Start begins counting down from seconds. Returns false if a countdown
// is already running, in which case the call is a no-op.
func (c *Countdown) Start(seconds int) bool {
	c.mu.Lock()
	if c.isCounting {
		c.mu.Unlock()
		return false
	}
	c.isCounting = true
	c.remaining = seconds
	c.mu.Unlock()

	go c.run()
	return true
}

// OnFinished registers fn to run when the current countdown expires.
func (c *Countdown) OnFinished(fn func()) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
}

// Remaining reports the seconds left, for display.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Counting reports whether a countdown is in flight.
func (c *Countdown) Counting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCounting
}

func (c *Countdown) run() {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		<-ticker.C
		c.mu.Lock()
		c.remaining--
		done := c.remaining <= 0
		c.mu.Unlock()
		if done {
			break
		}
	}

	c.mu.Lock()
	fns := c.callbacks
	c.callbacks = nil
	c.isCounting = false
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
