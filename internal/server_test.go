package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livecount/internal/storage"
)

func startTestServer(t *testing.T, opts ServerOptions) (*Server, *httptest.Server) {
	t.Helper()
	server := NewServer(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.Run(ctx)
		close(done)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.ServeWS)
	mux.HandleFunc("/roster", server.HandleRoster)
	mux.HandleFunc("/history", server.HandleHistory)
	mux.HandleFunc("/healthz", server.HandleHealth)
	mux.Handle("/metrics", server.MetricsHandler())
	httpServer := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		<-done
		httpServer.Close()
	})
	return server, httpServer
}

func dial(t *testing.T, httpServer *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var envelope Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("read: %v", err)
	}
	return envelope
}

func expectInt(t *testing.T, conn *websocket.Conn, kind string, want int) {
	t.Helper()
	envelope := readEnvelope(t, conn)
	if envelope.Type != kind {
		t.Fatalf("expected %s, got %s (%s)", kind, envelope.Type, envelope.Data)
	}
	var got int
	if err := json.Unmarshal(envelope.Data, &got); err != nil {
		t.Fatalf("decode %s: %v", kind, err)
	}
	if got != want {
		t.Fatalf("%s: expected %d, got %d", kind, want, got)
	}
}

func expectRoster(t *testing.T, conn *websocket.Conn, want ...int) {
	t.Helper()
	envelope := readEnvelope(t, conn)
	if envelope.Type != EventUserList {
		t.Fatalf("expected userList, got %s", envelope.Type)
	}
	var items []RosterItem
	if err := json.Unmarshal(envelope.Data, &items); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	if len(items) != len(want) {
		t.Fatalf("expected roster %v, got %+v", want, items)
	}
	for i, item := range items {
		if item.ID != want[i] {
			t.Fatalf("expected roster %v, got %+v", want, items)
		}
		if _, err := time.Parse(time.RFC3339Nano, item.ConnectionTime); err != nil {
			t.Fatalf("connection time %q is not RFC 3339: %v", item.ConnectionTime, err)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestPresenceOverWebsocket(t *testing.T) {
	server, httpServer := startTestServer(t, ServerOptions{AnnounceCountdown: true})

	first := dial(t, httpServer)
	expectInt(t, first, EventUserCount, 1)
	expectRoster(t, first, 1)
	expectInt(t, first, EventUserID, 1)

	second := dial(t, httpServer)
	expectInt(t, first, EventUserCount, 2)
	expectRoster(t, first, 1, 2)
	expectInt(t, second, EventUserCount, 2)
	expectRoster(t, second, 1, 2)
	expectInt(t, second, EventUserID, 2)

	_ = first.Close()
	expectInt(t, second, EventUserCount, 1)
	expectRoster(t, second, 2)

	resp, err := http.Get(httpServer.URL + "/roster")
	if err != nil {
		t.Fatalf("GET /roster: %v", err)
	}
	defer resp.Body.Close()
	var roster rosterResponse
	if err := json.NewDecoder(resp.Body).Decode(&roster); err != nil {
		t.Fatalf("decode /roster: %v", err)
	}
	if roster.Count != 1 || len(roster.Users) != 1 || roster.Users[0].ID != 2 || roster.Countdown.Active {
		t.Fatalf("unexpected roster response %+v", roster)
	}

	_ = second.Close()
	waitFor(t, "countdown to start", func() bool {
		snap, err := server.Hub().Snapshot(context.Background())
		return err == nil && snap.Count == 0 && snap.Countdown.Active
	})

	third := dial(t, httpServer)
	if envelope := readEnvelope(t, third); envelope.Type != EventCountdownCancel {
		t.Fatalf("expected countdownCancel first, got %s", envelope.Type)
	}
	expectInt(t, third, EventUserCount, 1)
	expectRoster(t, third, 3)
	expectInt(t, third, EventUserID, 3)
}

func TestCountdownExpiryResetsSequence(t *testing.T) {
	server, httpServer := startTestServer(t, ServerOptions{Countdown: time.Second, AnnounceCountdown: true})

	first := dial(t, httpServer)
	expectInt(t, first, EventUserCount, 1)
	expectRoster(t, first, 1)
	expectInt(t, first, EventUserID, 1)
	_ = first.Close()

	waitFor(t, "id sequence reset", func() bool {
		snap, err := server.Hub().Snapshot(context.Background())
		return err == nil && !snap.Countdown.Active && snap.NextID == 1
	})

	next := dial(t, httpServer)
	expectInt(t, next, EventUserCount, 1)
	expectRoster(t, next, 1)
	expectInt(t, next, EventUserID, 1)
}

func TestUpgradeRateLimit(t *testing.T) {
	server, httpServer := startTestServer(t, ServerOptions{UpgradeLimit: 1, UpgradeWindow: time.Minute})
	dial(t, httpServer)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %+v", resp)
	}
	if server.metrics.rejectedUpgrades.Load() != 1 {
		t.Fatalf("expected one rejected upgrade")
	}
}

func TestMaxConnsPerIP(t *testing.T) {
	_, httpServer := startTestServer(t, ServerOptions{MaxConnsPerIP: 1})
	first := dial(t, httpServer)
	expectInt(t, first, EventUserCount, 1)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil || resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected second connection to be refused, err=%v", err)
	}

	_ = first.Close()
	waitFor(t, "slot release", func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	})
}

func TestHistoryEndpoint(t *testing.T) {
	_, disabled := startTestServer(t, ServerOptions{})
	resp, err := http.Get(disabled.URL + "/history")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without journal, got %d", resp.StatusCode)
	}

	store := newJournalStore(t)
	_, enabled := startTestServer(t, ServerOptions{Store: store})
	conn := dial(t, enabled)
	expectInt(t, conn, EventUserCount, 1)

	waitFor(t, "journaled session", func() bool {
		resp, err := http.Get(enabled.URL + "/history?limit=5")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var history historyResponse
		if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
			return false
		}
		return len(history.Sessions) == 1 && history.Sessions[0].ClientID == 1
	})

	resp, err = http.Get(enabled.URL + "/history?limit=zero")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, httpServer := startTestServer(t, ServerOptions{})
	conn := dial(t, httpServer)
	expectInt(t, conn, EventUserCount, 1)

	resp, err := http.Get(httpServer.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(httpServer.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if payload["connects_total"] != 1 || payload["active_connections"] != 1 {
		t.Fatalf("unexpected metrics %+v", payload)
	}
}

func TestRosterRejectsPost(t *testing.T) {
	server := NewServer(ServerOptions{})
	rec := httptest.NewRecorder()
	server.HandleRoster(rec, httptest.NewRequest(http.MethodPost, "/roster", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSnapshotAfterStop(t *testing.T) {
	server := NewServer(ServerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	server.Run(ctx)
	if _, err := server.Hub().Snapshot(context.Background()); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}

func TestShutdownClosesOpenSessions(t *testing.T) {
	store := newJournalStore(t)
	server := NewServer(ServerOptions{Store: store})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		server.Run(ctx)
		close(done)
	}()
	httpServer := httptest.NewServer(http.HandlerFunc(server.ServeWS))
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	expectInt(t, conn, EventUserCount, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}

	sessions, err := store.RecentSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].DisconnectedAt == nil {
		t.Fatalf("expected the session closed at shutdown, got %+v", sessions)
	}
	if active := server.metrics.activeConns.Load(); active != 0 {
		t.Fatalf("expected no active connections after shutdown, got %d", active)
	}
}

func newJournalStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}
