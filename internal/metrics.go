package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"livecount/internal/presence"
)

// Metrics counts presence activity. It observes the coordinator, so its
// counters move in the same order as the registry.
type Metrics struct {
	presence.Discard

	connects         atomic.Uint64
	disconnects      atomic.Uint64
	resets           atomic.Uint64
	countdownCancels atomic.Uint64
	rejectedUpgrades atomic.Uint64
	activeConns      atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Connected(presence.ClientRecord) {
	m.connects.Add(1)
	m.activeConns.Add(1)
}

func (m *Metrics) Disconnected(presence.ClientRecord) {
	m.disconnects.Add(1)
	m.activeConns.Add(-1)
}

func (m *Metrics) Reset() {
	m.resets.Add(1)
}

func (m *Metrics) CountdownCancelled() {
	m.countdownCancels.Add(1)
}

func (m *Metrics) IncRejectedUpgrade() {
	m.rejectedUpgrades.Add(1)
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"connects_total":          m.connects.Load(),
		"disconnects_total":       m.disconnects.Load(),
		"resets_total":            m.resets.Load(),
		"countdown_cancels_total": m.countdownCancels.Load(),
		"rejected_upgrades_total": m.rejectedUpgrades.Load(),
		"active_connections":      m.activeConns.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
