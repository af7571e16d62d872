package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	retryDelay  = 2 * time.Second
	dialTimeout = 5 * time.Second
)

type (
	connectedMsg     struct{ conn *websocket.Conn }
	eventMsg         Envelope
	disconnectedMsg  struct{ err error }
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
	// skipMsg stands in for frames the watcher does not display.
	skipMsg struct{}
)

func (model *WatchModel) connectCmd() tea.Cmd {
	serverURL := model.serverURL
	return func() tea.Msg {
		target, err := normalizeWatchURL(serverURL)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		dialer := websocket.Dialer{HandshakeTimeout: dialTimeout, Proxy: http.ProxyFromEnvironment}
		conn, _, err := dialer.Dial(target, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// readOnceCmd reads a single frame; Update re-arms it after every event.
func readOnceCmd(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		if conn == nil {
			return disconnectedMsg{err: fmt.Errorf("websocket not connected")}
		}
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		if messageType != websocket.TextMessage {
			return skipMsg{}
		}
		var envelope Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return eventMsg{Type: "invalid", Data: json.RawMessage(payload)}
		}
		return eventMsg(envelope)
	}
}

func scheduleReconnect() tea.Cmd {
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "watcher quit"))
	_ = conn.Close()
}

// normalizeWatchURL accepts ws, wss, http and https URLs and maps the HTTP
// schemes onto their websocket equivalents.
func normalizeWatchURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	return parsed.String(), nil
}
