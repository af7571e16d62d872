package internal

import (
	"context"
	"errors"
	"log"

	"livecount/internal/presence"
)

// ErrHubStopped is returned by calls made after the hub loop has exited.
var ErrHubStopped = errors.New("hub stopped")

// HubOptions configures a Hub.
type HubOptions struct {
	Presence presence.Options
	// Extra receives every published event after the websocket fan-out.
	Extra []presence.Broadcaster
}

// Hub owns the presence coordinator and every websocket client. All state is
// touched only from run, which serialises connects, disconnects, snapshot
// requests and countdown ticks.
type Hub struct {
	coordinator *presence.Coordinator
	clients     map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	snapshots   chan chan presence.Snapshot
	done        chan struct{}
}

func NewHub(opts HubOptions) *Hub {
	hub := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		snapshots:  make(chan chan presence.Snapshot),
		done:       make(chan struct{}),
	}
	out := append(presence.Fanout{hub}, opts.Extra...)
	hub.coordinator = presence.NewCoordinator(presence.NewRegistry(), out, opts.Presence)
	return hub
}

// Run processes hub events until ctx is cancelled. Call it exactly once.
func (hub *Hub) Run(ctx context.Context) {
	defer hub.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-hub.register:
			hub.clients[client] = true
			result := hub.coordinator.OnConnect(client.token)
			if payload, err := encodeEvent(EventUserID, result.ID); err == nil {
				hub.deliver(client, payload)
			}
		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				close(client.send)
			}
			hub.coordinator.OnDisconnect(client.token)
		case reply := <-hub.snapshots:
			reply <- hub.coordinator.Snapshot()
		case <-hub.coordinator.Ticks():
			hub.coordinator.OnTick()
		}
	}
}

// shutdown closes every remaining client and reports it as disconnected, so
// observers see each session end. Run's caller flushes the journal after.
func (hub *Hub) shutdown() {
	remaining := make([]*Client, 0, len(hub.clients))
	for client := range hub.clients {
		delete(hub.clients, client)
		close(client.send)
		remaining = append(remaining, client)
	}
	for _, client := range remaining {
		hub.coordinator.OnDisconnect(client.token)
	}
	hub.coordinator.Stop()
	close(hub.done)
}

// Done is closed once Run has returned.
func (hub *Hub) Done() <-chan struct{} {
	return hub.done
}

// Snapshot asks the loop for the current presence state.
func (hub *Hub) Snapshot(ctx context.Context) (presence.Snapshot, error) {
	reply := make(chan presence.Snapshot, 1)
	select {
	case hub.snapshots <- reply:
	case <-hub.done:
		return presence.Snapshot{}, ErrHubStopped
	case <-ctx.Done():
		return presence.Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return presence.Snapshot{}, ctx.Err()
	}
}

func (hub *Hub) join(client *Client) bool {
	select {
	case hub.register <- client:
		return true
	case <-hub.done:
		return false
	}
}

func (hub *Hub) leave(client *Client) {
	select {
	case hub.unregister <- client:
	case <-hub.done:
	}
}

// The Publish methods satisfy presence.Broadcaster and run on the hub loop.

func (hub *Hub) PublishCount(count int) {
	hub.broadcast(EventUserCount, count)
}

func (hub *Hub) PublishRoster(roster []presence.RosterEntry) {
	hub.broadcast(EventUserList, rosterItems(roster))
}

func (hub *Hub) PublishCountdownStart(seconds int) {
	hub.broadcast(EventCountdownStart, seconds)
}

func (hub *Hub) PublishCountdownUpdate(remaining int) {
	hub.broadcast(EventCountdownUpdate, remaining)
}

func (hub *Hub) PublishCountdownCancel() {
	hub.broadcast(EventCountdownCancel, nil)
}

func (hub *Hub) PublishSystemReset() {
	hub.broadcast(EventSystemReset, nil)
}

func (hub *Hub) broadcast(kind string, data any) {
	payload, err := encodeEvent(kind, data)
	if err != nil {
		log.Printf("encode %s: %v", kind, err)
		return
	}
	for client := range hub.clients {
		hub.deliver(client, payload)
	}
}

// deliver queues payload without blocking. A client whose buffer is full is
// dropped from delivery; its read pump will report the disconnect.
func (hub *Hub) deliver(client *Client, payload []byte) {
	if _, ok := hub.clients[client]; !ok {
		return
	}
	select {
	case client.send <- payload:
	default:
		close(client.send)
		delete(hub.clients, client)
	}
}
