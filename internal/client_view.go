package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	statLabelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	statValueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	rosterBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 2).MarginTop(1)
	selfStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	peerStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	hintStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
)

func (model *WatchModel) View() string {
	sections := []string{
		appTitleStyle.Render("livecount"),
		model.renderStatus(),
		model.renderStats(),
		model.renderRoster(),
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, hintStyle.Render("r) reconnect  •  q) quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *WatchModel) renderStatus() string {
	switch {
	case model.connected:
		return connectedStyle.Render("● connected")
	case model.connecting:
		return connectingStyle.Render(model.spinner.View() + " connecting to " + model.serverURL)
	case model.lastError != nil:
		return errorStyle.Render("✕ " + model.lastError.Error())
	default:
		return statusStyle.Render("disconnected")
	}
}

func (model *WatchModel) renderStats() string {
	you := "-"
	if model.userID > 0 {
		you = fmt.Sprintf("#%d", model.userID)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		statLabelStyle.Render("you "), statValueStyle.Render(you),
		statLabelStyle.Render("   online "), statValueStyle.Render(fmt.Sprintf("%d", model.count)),
	)
}

func (model *WatchModel) renderRoster() string {
	if len(model.roster) == 0 {
		return rosterBoxStyle.Render(statLabelStyle.Render("nobody here"))
	}
	lines := make([]string, 0, len(model.roster))
	for _, item := range model.roster {
		since := item.ConnectionTime
		if parsed, err := time.Parse(time.RFC3339Nano, item.ConnectionTime); err == nil {
			since = parsed.Local().Format("15:04:05")
		}
		style := peerStyle
		if item.ID == model.userID {
			style = selfStyle
		}
		lines = append(lines, style.Render(fmt.Sprintf("#%-4d", item.ID))+" "+timestampStyle.Render("since "+since))
	}
	return rosterBoxStyle.Render(strings.Join(lines, "\n"))
}

func (model *WatchModel) renderNotices() string {
	if len(model.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(model.notices))
	for _, n := range model.notices {
		lines = append(lines, timestampStyle.Render(n.at.Format("15:04:05"))+" "+systemMessageStyle.Render(n.text))
	}
	return statusStyle.Render(strings.Join(lines, "\n"))
}
