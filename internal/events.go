package internal

import (
	"encoding/json"
	"time"

	"livecount/internal/presence"
)

// Event names sent over the websocket.
const (
	EventUserID          = "userId"
	EventUserCount       = "userCount"
	EventUserList        = "userList"
	EventCountdownStart  = "countdownStart"
	EventCountdownUpdate = "countdownUpdate"
	EventCountdownCancel = "countdownCancel"
	EventSystemReset     = "systemReset"
)

// Envelope is the JSON frame both ends exchange. Data is null for events
// without a payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RosterItem mirrors presence.RosterEntry with the connection time rendered
// as an RFC 3339 string.
type RosterItem struct {
	ID             int    `json:"id"`
	ConnectionTime string `json:"connectionTime"`
}

func encodeEvent(kind string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: kind, Data: raw})
}

func rosterItems(roster []presence.RosterEntry) []RosterItem {
	items := make([]RosterItem, 0, len(roster))
	for _, entry := range roster {
		items = append(items, RosterItem{
			ID:             entry.ID,
			ConnectionTime: entry.ConnectionTime.UTC().Format(time.RFC3339Nano),
		})
	}
	return items
}
