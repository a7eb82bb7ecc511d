package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const helpText = `/dm <user>      open a direct conversation
/channel        back to the channel
/users          list contacts with presence
/admin <cmd> <args>   mute, unmute, ban, unban, rename
/exit           quit`

// runCommand executes one slash command from the input line.
func (m *Model) runCommand(text string) tea.Cmd {
	fields := strings.Fields(text)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return m.quit()

	case "/help":
		for _, line := range strings.Split(helpText, "\n") {
			m.state.AppendChannel("[system] "+line, true)
		}

	case "/channel":
		m.state.SwitchToChannel()

	case "/dm":
		if len(args) != 1 {
			m.setError("usage: /dm <user>")
			break
		}
		partner := args[0]
		if partner == m.state.Username() {
			m.setError("cannot DM yourself")
			break
		}
		m.state.SwitchToDM(partner)
		m.state.MarkDMHistoryRequested(partner)
		if err := m.conn.RequestDMHistory(partner); err != nil {
			m.setError("request failed: " + err.Error())
		}

	case "/users":
		if err := m.conn.RequestUsersDetailed(); err != nil {
			m.setError("request failed: " + err.Error())
		}

	case "/admin":
		if len(args) == 0 {
			m.setError("usage: /admin <cmd> [args]")
			break
		}
		if err := m.conn.SendAdmin(args[0], m.state.Username(), args[1:]...); err != nil {
			m.setError("request failed: " + err.Error())
		}

	default:
		m.setError("unknown command " + cmd)
	}

	m.refresh()
	return nil
}
