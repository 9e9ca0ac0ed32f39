package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

// truncateToWidth cuts s to at most width display cells, marking the cut
func truncateToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}

func separatorLine(width int) string {
	if width < 2 {
		return strings.Repeat("─", width)
	}
	return "├" + strings.Repeat("─", width-2) + "┤"
}

func formatInfoLine(text string, width int) string {
	if width < 2 {
		return padToWidth(text, width)
	}
	return "│" + padToWidth(truncateToWidth(text, width-2), width-2) + "│"
}

// Status is a snapshot of the ingestion pipeline
type Status struct {
	ChainID         string
	LatestHeight    int64
	Cursor          int64
	Pending         int64
	InFlight        []int64
	Processed       uint64
	Failures        uint64
	LastCompleted   int64
	LastCompletedAt time.Time
	LastErrorHeight int64
	LastError       string
	LastErrorAt     time.Time
}

// Lag is how far the cursor trails the chain tip
func (s Status) Lag() int64 {
	if s.LatestHeight <= s.Cursor {
		return 0
	}
	return s.LatestHeight - s.Cursor
}

// UpdateMsg is sent when the status snapshot changes
type UpdateMsg struct {
	Status Status
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Model holds the TUI state
type Model struct {
	status Status
	width  int
	height int
	now    func() time.Time
}

// NewModel creates a new TUI model
func NewModel() Model {
	return Model{now: time.Now}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case UpdateMsg:
		m.status = msg.Status
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	s := m.status

	chain := s.ChainID
	if chain == "" {
		chain = "N/A"
	}
	lines := []string{
		fmt.Sprintf("chain: %s", chain),
		fmt.Sprintf("latest=%d cursor=%d lag=%d", s.LatestHeight, s.Cursor, s.Lag()),
		fmt.Sprintf("pending=%d in-flight=%d", s.Pending, len(s.InFlight)),
		fmt.Sprintf("processed=%d failed attempts=%d", s.Processed, s.Failures),
	}
	if s.LastCompleted > 0 {
		lines = append(lines, fmt.Sprintf("last done: %d (%s ago)", s.LastCompleted, m.since(s.LastCompletedAt)))
	} else {
		lines = append(lines, "last done: N/A")
	}

	body := m.renderBox(lines)
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(padToWidth("chain-indexer", m.width)),
		body,
		m.renderInFlight(),
		m.renderLastError(),
	)
}

func (m Model) since(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	return m.now().Sub(t).Truncate(time.Second).String()
}

func (m Model) renderBox(lines []string) string {
	top := "┌" + strings.Repeat("─", max(m.width-2, 0)) + "┐"
	rows := make([]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, formatInfoLine(" "+l, m.width))
	}
	return top + "\n" + strings.Join(rows, "\n") + "\n" + separatorLine(m.width)
}

// renderInFlight lists in-flight heights, lowest first, as many as fit
func (m Model) renderInFlight() string {
	if len(m.status.InFlight) == 0 {
		return formatInfoLine(" in-flight: none", m.width)
	}
	heights := append([]int64(nil), m.status.InFlight...)
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	parts := make([]string, len(heights))
	for i, h := range heights {
		parts[i] = fmt.Sprintf("%d", h)
	}
	return formatInfoLine(" in-flight: "+strings.Join(parts, " "), m.width)
}

func (m Model) renderLastError() string {
	bottom := "└" + strings.Repeat("─", max(m.width-2, 0)) + "┘"
	if m.status.LastError == "" {
		return okStyle.Render(formatInfoLine(" no errors", m.width)) + "\n" + bottom
	}
	text := fmt.Sprintf(" last error at %d (%s ago): %s",
		m.status.LastErrorHeight, m.since(m.status.LastErrorAt), m.status.LastError)
	return errorStyle.Render(formatInfoLine(text, m.width)) + "\n" + bottom
}

// Run starts the TUI program and feeds it snapshots until updateCh closes
func Run(updateCh <-chan Status) error {
	p := tea.NewProgram(NewModel(), tea.WithAltScreen())

	go func() {
		for st := range updateCh {
			p.Send(UpdateMsg{Status: st})
		}
		// Channel closed, quit TUI
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
