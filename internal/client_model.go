package internal

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

const maxNotices = 6

// WatchModel is the Bubble Tea state for the presence watcher.
type WatchModel struct {
	serverURL  string
	conn       *websocket.Conn
	spinner    spinner.Model
	connecting bool
	connected  bool
	lastError  error
	userID     int
	count      int
	roster     []RosterItem
	notices    []notice
	width      int
}

type notice struct {
	at   time.Time
	text string
}

func NewWatchModel(serverURL string) *WatchModel {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	return &WatchModel{
		serverURL:  serverURL,
		spinner:    spin,
		connecting: true,
	}
}

func (model *WatchModel) Init() tea.Cmd {
	return tea.Batch(model.spinner.Tick, model.connectCmd())
}

func (model *WatchModel) addNotice(text string) {
	model.notices = append(model.notices, notice{at: time.Now(), text: text})
	if len(model.notices) > maxNotices {
		model.notices = model.notices[len(model.notices)-maxNotices:]
	}
}

// RunWatch starts the terminal watcher against a websocket URL.
func RunWatch(serverURL string) error {
	program := tea.NewProgram(NewWatchModel(serverURL), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
