package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatshare/pkg/share"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	sharingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("11"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model
type model struct {
	coord   *share.Coordinator
	rooms   []share.Room
	roomIdx int

	status  string
	lastErr string
}

func newModel(coord *share.Coordinator, rooms []share.Room) model {
	m := model{
		coord:  coord,
		rooms:  rooms,
		status: "joined " + rooms[0].Name,
	}
	coord.SwitchRoom(rooms[0])
	return m
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "s":
			m.lastErr = ""
			if err := m.coord.Current().StartShare(); err != nil {
				m.lastErr = err.Error()
			} else {
				m.status = "sharing to " + m.currentRoom().Name
			}
			return m, nil

		case "x":
			m.coord.Current().StopShare()
			m.status = "stopped sharing"
			return m, nil

		case "r":
			m.coord.Current().RequestActiveShares()
			m.status = "requested active shares"
			return m, nil

		default:
			if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
				idx := int(key[0] - '1')
				if idx < len(m.rooms) && idx != m.roomIdx {
					m.roomIdx = idx
					m.coord.SwitchRoom(m.rooms[idx])
					m.status = "joined " + m.rooms[idx].Name
					m.lastErr = ""
				}
			}
			return m, nil
		}
	}
	return m, nil
}

func (m model) currentRoom() share.Room {
	return m.rooms[m.roomIdx]
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ChatShare"))
	b.WriteString("\n\n")

	// Room list
	var rooms strings.Builder
	rooms.WriteString(titleStyle.Render("Rooms"))
	rooms.WriteString("\n")
	for i, r := range m.rooms {
		line := fmt.Sprintf("[%d] %s", i+1, r.Name)
		if i == m.roomIdx {
			rooms.WriteString(selectedStyle.Render("> " + line))
		} else {
			rooms.WriteString(normalStyle.Render("  " + line))
		}
		rooms.WriteString("\n")
	}

	// Active shares in the viewed room
	var shares strings.Builder
	shares.WriteString(titleStyle.Render("Active shares"))
	shares.WriteString("\n")
	mgr := m.coord.Current()
	sessions := mgr.Store().Snapshot()
	if len(sessions) == 0 {
		shares.WriteString(dimStyle.Render("  nobody is sharing"))
		shares.WriteString("\n")
	}
	for _, s := range sessions {
		state := "announced"
		if s.Media != nil {
			state = "streaming"
		}
		line := fmt.Sprintf("  %s (%s)", s.DisplayName, state)
		shares.WriteString(normalStyle.Render(line))
		shares.WriteString("\n")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(rooms.String()),
		" ",
		boxStyle.Render(shares.String()),
	))
	b.WriteString("\n")

	if mgr.Sharing() {
		target := m.coord.Outbound().RoomID()
		b.WriteString(sharingStyle.Render("● sharing to " + target))
		b.WriteString("\n")
	}

	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("Error: " + m.lastErr))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("1-9 switch room · s share · x stop · r refresh · q quit"))
	b.WriteString("\n")

	return b.String()
}

// RunTUI runs the interactive client until the user quits.
func RunTUI(coord *share.Coordinator, rooms []share.Room) error {
	if len(rooms) == 0 {
		return fmt.Errorf("no rooms to join")
	}
	p := tea.NewProgram(newModel(coord, rooms))
	_, err := p.Run()
	return err
}
