package presence

import "time"

// DefaultCountdown is how long the roster must stay empty before the id
// sequence resets.
const DefaultCountdown = 20 * time.Second

const tickInterval = time.Second

// Ticker is the subset of *time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t timeTicker) Stop()               { t.ticker.Stop() }

// NewTimeTicker wraps time.NewTicker. A slow reader loses ticks instead of
// queueing them, so at most one tick is ever pending.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{ticker: time.NewTicker(d)}
}

// countdownState is either idle or running.
type countdownState interface {
	isCountdownState()
}

type idle struct{}

type running struct {
	ticker    Ticker
	remaining int
}

func (idle) isCountdownState()     {}
func (*running) isCountdownState() {}

// Countdown waits a fixed number of whole seconds after being started and
// reports completion through Tick. Like Registry it has a single owner.
type Countdown struct {
	seconds   int
	state     countdownState
	newTicker TickerFunc
}

// NewCountdown returns an idle countdown. Durations are truncated to whole
// seconds; anything under one second counts as one.
func NewCountdown(d time.Duration, newTicker TickerFunc) *Countdown {
	seconds := int(d / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	return &Countdown{seconds: seconds, state: idle{}, newTicker: newTicker}
}

// Start moves Idle to Running(duration). Starting a running countdown is a
// no-op and returns false.
func (c *Countdown) Start() bool {
	if c.Running() {
		return false
	}
	c.state = &running{ticker: c.newTicker(tickInterval), remaining: c.seconds}
	return true
}

// Cancel stops a running countdown. Once it returns, C yields nil so no
// pending tick can be observed.
func (c *Countdown) Cancel() bool {
	run, ok := c.state.(*running)
	if !ok {
		return false
	}
	run.ticker.Stop()
	c.state = idle{}
	return true
}

// Tick advances a running countdown by one second. done is true on the tick
// that reaches zero, after which the countdown is idle again. Ticks while
// idle are ignored.
func (c *Countdown) Tick() (remaining int, done bool) {
	run, ok := c.state.(*running)
	if !ok {
		return 0, false
	}
	run.remaining--
	if run.remaining > 0 {
		return run.remaining, false
	}
	run.ticker.Stop()
	c.state = idle{}
	return 0, true
}

// C is the tick source while running and nil while idle; receiving from a
// nil channel blocks forever, which keeps the owner's select quiet.
func (c *Countdown) C() <-chan time.Time {
	if run, ok := c.state.(*running); ok {
		return run.ticker.C()
	}
	return nil
}

func (c *Countdown) Running() bool {
	_, ok := c.state.(*running)
	return ok
}

// Remaining is zero while idle.
func (c *Countdown) Remaining() int {
	if run, ok := c.state.(*running); ok {
		return run.remaining
	}
	return 0
}

// Duration returns the configured length in seconds.
func (c *Countdown) Duration() int {
	return c.seconds
}
