package presence

// Broadcaster delivers presence events to every connected endpoint.
// Implementations must not block the caller.
type Broadcaster interface {
	PublishCount(count int)
	PublishRoster(roster []RosterEntry)
	PublishCountdownStart(seconds int)
	PublishCountdownUpdate(remaining int)
	PublishCountdownCancel()
	PublishSystemReset()
}

// Observer is told about registry and countdown transitions after they
// happen, whether or not the countdown is announced to clients.
type Observer interface {
	Connected(record ClientRecord)
	Disconnected(record ClientRecord)
	CountdownStarted(seconds int)
	CountdownCancelled()
	Reset()
}

// Fanout forwards every event to each broadcaster in order.
type Fanout []Broadcaster

func (f Fanout) PublishCount(count int) {
	for _, b := range f {
		b.PublishCount(count)
	}
}

func (f Fanout) PublishRoster(roster []RosterEntry) {
	for _, b := range f {
		b.PublishRoster(roster)
	}
}

func (f Fanout) PublishCountdownStart(seconds int) {
	for _, b := range f {
		b.PublishCountdownStart(seconds)
	}
}

func (f Fanout) PublishCountdownUpdate(remaining int) {
	for _, b := range f {
		b.PublishCountdownUpdate(remaining)
	}
}

func (f Fanout) PublishCountdownCancel() {
	for _, b := range f {
		b.PublishCountdownCancel()
	}
}

func (f Fanout) PublishSystemReset() {
	for _, b := range f {
		b.PublishSystemReset()
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) PublishCount(int)            {}
func (Discard) PublishRoster([]RosterEntry) {}
func (Discard) PublishCountdownStart(int)   {}
func (Discard) PublishCountdownUpdate(int)  {}
func (Discard) PublishCountdownCancel()     {}
func (Discard) PublishSystemReset()         {}
func (Discard) Connected(ClientRecord)      {}
func (Discard) Disconnected(ClientRecord)   {}
func (Discard) CountdownStarted(int)        {}
func (Discard) CountdownCancelled()         {}
func (Discard) Reset()                      {}
