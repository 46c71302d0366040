package inspector

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mickamy/iproto/clipboard"
)

type viewMode int

const (
	viewList viewMode = iota
	viewDetail
)

// maxEvents bounds how many captured frames the TUI keeps in memory;
// older frames are dropped once the ring fills, the same bound the
// teacher's Broker.subscriberBuffer places on a slow consumer, just
// applied to the TUI's own history instead of a channel.
const maxEvents = 5000

// Model is the Bubble Tea model for the iproto-inspect TUI: a live,
// scrolling view of frames a Tap is capturing, grounded on the
// teacher's tui.Model list+inspect pair, narrowed to one stream and
// stripped of SQL-specific features (transactions, EXPLAIN, the
// filter DSL) that have no IPROTO analogue.
type Model struct {
	events <-chan Event
	cancel func()

	frames []Event
	cursor int
	follow bool
	width  int
	height int
	err    error
	view   viewMode

	searchMode   bool
	searchQuery  string
	searchCursor int

	detailScroll int
}

// eventMsg carries one captured Event off the broker channel.
type eventMsg Event

// closedMsg signals the broker channel was closed (subscriber torn
// down from outside, e.g. the Tap's underlying stream died).
type closedMsg struct{}

// New returns a Model subscribed to broker. unsub is called when the
// program quits.
func New(broker *Broker) Model {
	ch, unsub := broker.Subscribe()
	return Model{
		events: ch,
		cancel: unsub,
		follow: true,
	}
}

// Init starts the receive loop.
func (m Model) Init() tea.Cmd {
	return recvEvent(m.events)
}

func recvEvent(ch <-chan Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.frames = append(m.frames, Event(msg))
		if len(m.frames) > maxEvents {
			m.frames = m.frames[len(m.frames)-maxEvents:]
			m.cursor = max(m.cursor-1, 0)
		}
		if m.follow && m.view == viewList {
			m.cursor = len(m.visibleFrames()) - 1
		}
		return m, recvEvent(m.events)

	case closedMsg:
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case viewDetail:
			return m.updateDetail(msg)
		case viewList:
			return m.updateList(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchMode {
		return m.updateSearch(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	case "enter":
		if len(m.visibleFrames()) > 0 {
			m.view = viewDetail
			m.detailScroll = 0
		}
		return m, nil
	case "c":
		if ev := m.cursorEvent(); ev != nil {
			_ = clipboard.Copy(context.Background(), ev.Preview)
		}
		return m, nil
	case "/":
		m.searchMode = true
		m.searchQuery = ""
		m.searchCursor = 0
		return m, nil
	case "esc":
		if m.searchQuery != "" {
			m.searchQuery = ""
			m.cursor = min(m.cursor, max(len(m.visibleFrames())-1, 0))
		}
		return m, nil
	case "j", "down":
		return m.navigate(1), nil
	case "k", "up":
		return m.navigate(-1), nil
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.searchMode = false
		m.cursor = min(m.cursor, max(len(m.visibleFrames())-1, 0))
		return m, nil
	case "backspace":
		if m.searchCursor > 0 {
			runes := []rune(m.searchQuery)
			m.searchQuery = string(runes[:m.searchCursor-1]) + string(runes[m.searchCursor:])
			m.searchCursor--
		}
		return m, nil
	case "ctrl+c":
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}

	r := msg.Runes
	if len(r) == 0 {
		return m, nil
	}
	runes := []rune(m.searchQuery)
	m.searchQuery = string(runes[:m.searchCursor]) + string(r) + string(runes[m.searchCursor:])
	m.searchCursor += len(r)
	return m, nil
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	case "q", "esc":
		m.view = viewList
		return m, nil
	case "c":
		if ev := m.cursorEvent(); ev != nil {
			_ = clipboard.Copy(context.Background(), ev.Preview)
		}
		return m, nil
	case "j", "down":
		m.detailScroll++
		return m, nil
	case "k", "up":
		if m.detailScroll > 0 {
			m.detailScroll--
		}
		return m, nil
	}
	return m, nil
}

func (m Model) navigate(delta int) Model {
	n := len(m.visibleFrames())
	if n == 0 {
		return m
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	m.follow = m.cursor == n-1
	return m
}

// visibleFrames returns frames matching the current search query
// (case-insensitive substring over the preview and type name), or all
// frames when searchQuery is empty.
func (m Model) visibleFrames() []Event {
	if m.searchQuery == "" {
		return m.frames
	}
	q := strings.ToLower(m.searchQuery)
	out := make([]Event, 0, len(m.frames))
	for _, ev := range m.frames {
		if strings.Contains(strings.ToLower(ev.Preview), q) ||
			strings.Contains(strings.ToLower(ev.Type.String()), q) {
			out = append(out, ev)
		}
	}
	return out
}

func (m Model) cursorEvent() *Event {
	frames := m.visibleFrames()
	if m.cursor < 0 || m.cursor >= len(frames) {
		return nil
	}
	return &frames[m.cursor]
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	if len(m.frames) == 0 {
		return "Waiting for IPROTO frames..."
	}

	if m.view == viewDetail {
		return m.renderDetail()
	}

	footer := "  q: quit  j/k: navigate  enter: inspect  c: copy  /: search  esc: clear"
	if m.searchMode {
		footer = "  / " + renderInputWithCursor(m.searchQuery, m.searchCursor)
	}

	return strings.Join([]string{m.renderList(), footer}, "\n")
}

func (m Model) listHeight() int {
	return max(m.height-4, 3)
}

func (m Model) renderList() string {
	innerWidth := max(m.width-4, 20)
	frames := m.visibleFrames()

	title := fmt.Sprintf(" iproto-inspect (%d frames) ", len(frames))
	border := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Width(innerWidth)

	rows := m.listHeight()
	start := 0
	if len(frames) > rows {
		start = max(m.cursor-rows/2, 0)
		if start+rows > len(frames) {
			start = len(frames) - rows
		}
	}
	end := min(start+rows, len(frames))

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %-4s %-8s %-9s %-6s %s\n", "Sync", "Dir", "Type", "Size", "Preview"))
	for i := start; i < end; i++ {
		ev := frames[i]
		marker := "  "
		if i == m.cursor {
			marker = "▶ "
		}
		status := ""
		if ev.IsError {
			status = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(" E")
		}
		line := fmt.Sprintf("%s%-4d %-8s %-9s %-6d %s%s",
			marker, ev.Sync, ev.Direction, ev.Type, ev.Size, truncate(ev.Preview, max(innerWidth-40, 10)), status)
		b.WriteString(line + "\n")
	}

	header := title
	content := strings.TrimRight(b.String(), "\n")
	return border.Render(content) + "\n" + header
}

func (m Model) renderDetail() string {
	ev := m.cursorEvent()
	if ev == nil {
		return ""
	}
	innerWidth := max(m.width-4, 20)

	var lines []string
	lines = append(lines, fmt.Sprintf("Sync:      %d", ev.Sync))
	lines = append(lines, fmt.Sprintf("Direction: %s", ev.Direction))
	lines = append(lines, fmt.Sprintf("Type:      %s", ev.Type))
	lines = append(lines, fmt.Sprintf("Size:      %d bytes", ev.Size))
	if ev.IsError {
		lines = append(lines, "Error:     yes")
	}
	if ev.Preview != "" {
		lines = append(lines, "", "Preview:")
		for l := range strings.SplitSeq(ev.Preview, "\n") {
			lines = append(lines, "  "+l)
		}
	}

	visibleRows := max(m.height-2, 3)
	maxScroll := max(len(lines)-visibleRows, 0)
	if m.detailScroll > maxScroll {
		m.detailScroll = maxScroll
	}
	end := min(m.detailScroll+visibleRows, len(lines))
	content := strings.Join(lines[m.detailScroll:end], "\n")

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(innerWidth).
		Render(content)

	footer := "  q/esc: back  j/k: scroll  c: copy"
	return box + "\n" + footer
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return s[:maxLen]
	}
	return s[:maxLen-1] + "…"
}

func renderInputWithCursor(text string, cursorPos int) string {
	runes := []rune(text)
	if cursorPos >= len(runes) {
		return text + "█"
	}
	return string(runes[:cursorPos]) + "█" + string(runes[cursorPos:])
}
