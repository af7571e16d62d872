// Package presence tracks who is connected to the presence channel, hands out
// sequential ids and resets the sequence once the channel has been empty for
// a while.
package presence

import "time"

// Options tune which optional countdown events are published.
type Options struct {
	// Countdown is the empty-roster grace period. Zero means DefaultCountdown.
	Countdown time.Duration
	// AnnounceCountdown publishes countdownStart, countdownCancel and systemReset.
	AnnounceCountdown bool
	// BroadcastTicks publishes countdownUpdate once per second while running.
	BroadcastTicks bool
	// NewTicker overrides the countdown tick source.
	NewTicker TickerFunc
	// Observers are notified after connects, disconnects, countdown
	// transitions and resets.
	Observers []Observer
}

// ConnectResult is returned to the transport so it can send the id to the
// joining client only.
type ConnectResult struct {
	ID    int
	Count int
}

// CountdownSnapshot describes the countdown at a point in time.
type CountdownSnapshot struct {
	Active    bool `json:"active"`
	Remaining int  `json:"remaining"`
	Duration  int  `json:"duration"`
}

// Snapshot is a read-only view of the coordinator state.
type Snapshot struct {
	Count     int               `json:"count"`
	Roster    []RosterEntry     `json:"roster"`
	Countdown CountdownSnapshot `json:"countdown"`
	NextID    int               `json:"nextId"`
}

// Coordinator applies connect, disconnect and tick events to the registry and
// countdown and publishes the resulting state. Every method must be called
// from the same goroutine.
type Coordinator struct {
	registry  *Registry
	countdown *Countdown
	out       Broadcaster
	observers []Observer
	announce  bool
	ticks     bool
}

func NewCoordinator(registry *Registry, out Broadcaster, opts Options) *Coordinator {
	if registry == nil {
		registry = NewRegistry()
	}
	if out == nil {
		out = Discard{}
	}
	duration := opts.Countdown
	if duration <= 0 {
		duration = DefaultCountdown
	}
	return &Coordinator{
		registry:  registry,
		countdown: NewCountdown(duration, opts.NewTicker),
		out:       out,
		observers: opts.Observers,
		announce:  opts.AnnounceCountdown,
		ticks:     opts.BroadcastTicks,
	}
}

// OnConnect registers token. A running countdown is cancelled before the id
// is allocated, so the new client continues the current sequence.
func (c *Coordinator) OnConnect(token string) ConnectResult {
	if c.countdown.Cancel() {
		for _, o := range c.observers {
			o.CountdownCancelled()
		}
		if c.announce {
			c.out.PublishCountdownCancel()
		}
	}
	record := c.registry.Add(token)
	count := c.registry.Count()
	for _, o := range c.observers {
		o.Connected(record)
	}
	c.publishState(count)
	return ConnectResult{ID: record.ID, Count: count}
}

// OnDisconnect removes token. Unknown tokens are ignored and publish nothing.
// The countdown starts when the last client leaves.
func (c *Coordinator) OnDisconnect(token string) (ClientRecord, bool) {
	record, ok := c.registry.Remove(token)
	if !ok {
		return ClientRecord{}, false
	}
	count := c.registry.Count()
	for _, o := range c.observers {
		o.Disconnected(record)
	}
	c.publishState(count)
	if count == 0 && c.countdown.Start() {
		seconds := c.countdown.Duration()
		for _, o := range c.observers {
			o.CountdownStarted(seconds)
		}
		if c.announce {
			c.out.PublishCountdownStart(seconds)
		}
	}
	return record, true
}

// OnTick advances the countdown by one second and performs the id reset when
// it completes.
func (c *Coordinator) OnTick() {
	if !c.countdown.Running() {
		return
	}
	remaining, done := c.countdown.Tick()
	if !done {
		if c.ticks {
			c.out.PublishCountdownUpdate(remaining)
		}
		return
	}
	c.registry.ResetIDSequence()
	for _, o := range c.observers {
		o.Reset()
	}
	if c.announce {
		c.out.PublishSystemReset()
	}
}

// Ticks delivers countdown ticks while running and is nil otherwise.
func (c *Coordinator) Ticks() <-chan time.Time {
	return c.countdown.C()
}

func (c *Coordinator) Snapshot() Snapshot {
	return Snapshot{
		Count:  c.registry.Count(),
		Roster: c.registry.List(),
		Countdown: CountdownSnapshot{
			Active:    c.countdown.Running(),
			Remaining: c.countdown.Remaining(),
			Duration:  c.countdown.Duration(),
		},
		NextID: c.registry.NextID(),
	}
}

// Stop releases the countdown ticker, if any.
func (c *Coordinator) Stop() {
	c.countdown.Cancel()
}

func (c *Coordinator) publishState(count int) {
	c.out.PublishCount(count)
	c.out.PublishRoster(c.registry.List())
}
