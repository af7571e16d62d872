package internal

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (model *WatchModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		switch typedMessage.String() {
		case "ctrl+c", "esc", "q":
			closeConn(model.conn)
			model.conn = nil
			return model, tea.Quit
		case "r":
			if model.connected || model.connecting {
				return model, nil
			}
			model.connecting = true
			return model, tea.Batch(model.spinner.Tick, model.connectCmd())
		}
		return model, nil

	case tea.WindowSizeMsg:
		model.width = typedMessage.Width
		return model, nil

	case spinner.TickMsg:
		if !model.connecting {
			return model, nil
		}
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(typedMessage)
		return model, cmd

	case connectedMsg:
		model.conn = typedMessage.conn
		model.connected = true
		model.connecting = false
		model.lastError = nil
		model.addNotice("connected to " + model.serverURL)
		return model, readOnceCmd(model.conn)

	case eventMsg:
		if err := model.applyEvent(Envelope(typedMessage)); err != nil {
			model.addNotice(err.Error())
		}
		return model, readOnceCmd(model.conn)

	case skipMsg:
		return model, readOnceCmd(model.conn)

	case disconnectedMsg:
		if model.conn != nil {
			_ = model.conn.Close()
		}
		model.conn = nil
		model.connected = false
		model.connecting = false
		model.lastError = typedMessage.err
		model.userID = 0
		model.addNotice("disconnected, retrying")
		return model, scheduleReconnect()

	case connectFailedMsg:
		model.connecting = false
		model.lastError = typedMessage.err
		return model, scheduleReconnect()

	case reconnectMsg:
		if model.connected || model.connecting {
			return model, nil
		}
		model.connecting = true
		return model, tea.Batch(model.spinner.Tick, model.connectCmd())
	}
	return model, nil
}

// applyEvent folds one server event into the model.
func (model *WatchModel) applyEvent(envelope Envelope) error {
	switch envelope.Type {
	case EventUserID:
		return decodeInto(envelope, &model.userID)
	case EventUserCount:
		return decodeInto(envelope, &model.count)
	case EventUserList:
		var roster []RosterItem
		if err := decodeInto(envelope, &roster); err != nil {
			return err
		}
		sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
		model.roster = roster
	case EventCountdownCancel:
		model.addNotice("rejoined before the id reset")
	case EventCountdownStart, EventCountdownUpdate, EventSystemReset:
		// Only sent while the roster is empty, which never includes a
		// connected watcher.
	default:
		return fmt.Errorf("unknown event %q", envelope.Type)
	}
	return nil
}

func decodeInto(envelope Envelope, out any) error {
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", envelope.Type, err)
	}
	return nil
}
