// Package tui implements the interactive chat interface: a Bubble Tea
// program with a message viewport, an input line and an online-user
// sidebar.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dmitrijs2005/lantern/internal/client/histcache"
	"github.com/dmitrijs2005/lantern/internal/client/state"
	"github.com/dmitrijs2005/lantern/internal/protocol"
)

const sidebarWidth = 20

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	selfStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("36"))

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1).
			Width(sidebarWidth)

	adminMark = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Connection is the slice of the network client the UI drives.
// *conn.Client satisfies it.
type Connection interface {
	SendChat(text string) error
	SendDM(recipient, text string) error
	RequestUsers() error
	RequestUsersDetailed() error
	RequestDMHistory(partner string) error
	SendAdmin(command, actor string, args ...string) error
	Leave() error
	Close() error
	PingRTT() time.Duration
	Events() <-chan protocol.Event
}

// eventMsg wraps one decoded server frame for the Bubble Tea loop.
type eventMsg protocol.Event

// disconnectedMsg is delivered when the event channel closes.
type disconnectedMsg struct{}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	conn  Connection
	state *state.State
	cache *histcache.Cache

	viewport viewport.Model
	input    textinput.Model
	ready    bool
	width    int
	height   int

	admins map[string]struct{}

	// channel history arrives in chunks and is applied on the end marker
	histChunks []string

	status    string
	statusErr bool
	quitting  bool
}

// New builds the model. Cached history is shown immediately; the
// server's authoritative replay overwrites it when it arrives.
func New(c Connection, st *state.State, cache *histcache.Cache) *Model {
	input := textinput.New()
	input.Placeholder = "Message #channel (/help for commands)"
	input.CharLimit = 300
	input.Focus()

	st.SetChannel(cache.Load(st.Username()))

	return &Model{
		conn:   c,
		state:  st,
		cache:  cache,
		input:  input,
		admins: make(map[string]struct{}),
	}
}

func waitForEvent(ch <-chan protocol.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.conn.Events()))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, m.quit()
		case tea.KeyEnter:
			return m, m.submit()
		}

	case eventMsg:
		m.applyEvent(protocol.Event(msg))
		m.refresh()
		if m.quitting {
			return m, tea.Quit
		}
		return m, waitForEvent(m.conn.Events())

	case disconnectedMsg:
		m.setError("disconnected from server")
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize() {
	inputHeight := 1
	chromeHeight := 2 // title and status lines
	h := m.height - inputHeight - chromeHeight
	if h < 1 {
		h = 1
	}
	w := m.width - sidebarWidth
	if w < 20 {
		w = m.width
	}
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = h
	}
	m.input.Width = m.width - 2
	m.refresh()
}

// quit saves the channel transcript, announces departure and stops the
// program.
func (m *Model) quit() tea.Cmd {
	m.quitting = true
	_ = m.cache.Save(m.state.Channel())
	_ = m.conn.Leave()
	_ = m.conn.Close()
	return tea.Quit
}

// submit handles the Enter key: slash commands or an outgoing message.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}

	view, target := m.state.CurrentView()
	if view == state.ViewDM {
		if err := m.conn.SendDM(target, text); err != nil {
			m.setError("send failed: " + err.Error())
			return nil
		}
		m.state.AppendDM(target, renderLine(m.state.Username(), text), true)
	} else {
		line := renderLine(m.state.Username(), text)
		if err := m.conn.SendChat(line); err != nil {
			m.setError("send failed: " + err.Error())
			return nil
		}
		m.state.AppendChannel(line, true)
	}
	m.refresh()
	return nil
}

func renderLine(sender, text string) string {
	return fmt.Sprintf("[%s]: %s", sender, text)
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}

// refresh re-renders the active transcript into the viewport and keeps
// it pinned to the bottom.
func (m *Model) refresh() {
	if !m.ready {
		return
	}

	var lines []histcache.Line
	view, target := m.state.CurrentView()
	if view == state.ViewDM {
		lines = m.state.DM(target)
	} else {
		lines = m.state.Channel()
	}

	rendered := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Self {
			rendered = append(rendered, selfStyle.Render(l.Text))
		} else {
			rendered = append(rendered, l.Text)
		}
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if !m.ready {
		return "connecting..."
	}

	view, target := m.state.CurrentView()
	where := "#channel"
	if view == state.ViewDM {
		where = "@" + target
	}
	title := titleStyle.Render("Lantern") + "  " + where
	if rtt := m.conn.PingRTT(); rtt > 0 {
		title += statusStyle.Render(fmt.Sprintf("  ping %dms", rtt.Milliseconds()))
	}

	status := m.status
	if m.statusErr {
		status = errorStyle.Render(status)
	} else {
		status = statusStyle.Render(status)
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), m.sidebar())

	return title + "\n" + main + "\n" + status + "\n" + m.input.View()
}

func (m *Model) sidebar() string {
	if m.width-sidebarWidth < 20 {
		return ""
	}
	var b strings.Builder
	b.WriteString(statusStyle.Render("online") + "\n")
	for _, u := range m.state.Users() {
		if _, ok := m.admins[u]; ok {
			b.WriteString(adminMark.Render("@"+u) + "\n")
		} else {
			b.WriteString(u + "\n")
		}
	}
	return sidebarStyle.Height(m.viewport.Height).Render(b.String())
}
