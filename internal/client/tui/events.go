package tui

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/lantern/internal/client/histcache"
	"github.com/dmitrijs2005/lantern/internal/client/state"
	"github.com/dmitrijs2005/lantern/internal/protocol"
)

// applyEvent folds one server event into the session state.
func (m *Model) applyEvent(ev protocol.Event) {
	me := m.state.Username()

	switch ev.Kind {
	case protocol.EventChat:
		// own channel messages are appended locally at send time, the
		// server never echoes them back
		m.state.AppendChannel(ev.Text, false)

	case protocol.EventUsers:
		m.state.SetUsers(ev.Users)

	case protocol.EventAdmins:
		m.admins = make(map[string]struct{}, len(ev.Users))
		for _, u := range ev.Users {
			m.admins[u] = struct{}{}
		}

	case protocol.EventChannelHistoryChunk:
		m.histChunks = append(m.histChunks, ev.Chunk)

	case protocol.EventChannelHistoryEnd:
		m.applyChannelHistory()

	case protocol.EventDM:
		if ev.Sender == me {
			// delivery ack of an outgoing DM, already shown
			return
		}
		m.state.AppendDM(ev.Sender, renderLine(ev.Sender, ev.Text), false)
		if view, target := m.state.CurrentView(); view != state.ViewDM || target != ev.Sender {
			m.setStatus(fmt.Sprintf("DM from %s (/dm %s to reply)", ev.Sender, ev.Sender))
		}

	case protocol.EventDMHistory:
		m.applyDMHistory(ev)

	case protocol.EventUsersDetailed:
		m.showContacts(ev.Detailed)

	case protocol.EventAdminOK:
		m.setStatus(ev.Text)

	case protocol.EventAdminError, protocol.EventDMFail, protocol.EventError,
		protocol.EventAuthFail, protocol.EventRegisterFail:
		m.setError(ev.Text)

	case protocol.EventBanned:
		m.setError("banned: " + ev.Text)
		m.quitting = true
	}
}

// applyChannelHistory reassembles the chunked JSON backlog and replaces
// the channel transcript with it. Stored texts are already rendered
// lines, only the self flag is recomputed.
func (m *Model) applyChannelHistory() {
	payload := ""
	for _, c := range m.histChunks {
		payload += c
	}
	m.histChunks = nil

	var records []protocol.ChatMessage
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		m.setError("bad history payload")
		return
	}

	me := m.state.Username()
	lines := make([]histcache.Line, 0, len(records))
	for _, r := range records {
		lines = append(lines, histcache.Line{Text: r.Text, Self: r.Sender == me})
	}
	m.state.SetChannel(lines)
}

// applyDMHistory replaces one conversation with the server's stored
// copy. The reply names the partner; the request marker is only a
// fallback for servers that omit it.
func (m *Model) applyDMHistory(ev protocol.Event) {
	partner := ev.Partner
	if partner == "" {
		partner = m.state.TakeDMHistoryTarget()
	}
	if partner == "" {
		return
	}

	var records []protocol.ChatMessage
	if err := json.Unmarshal([]byte(ev.Payload), &records); err != nil {
		m.setError("bad history payload")
		return
	}

	me := m.state.Username()
	lines := make([]histcache.Line, 0, len(records))
	for _, r := range records {
		lines = append(lines, histcache.Line{
			Text: renderLine(r.Sender, r.Text),
			Self: r.Sender == me,
		})
	}
	m.state.SetDM(partner, lines)
}

// showContacts prints the detailed contact list into the current view
// as local-only lines.
func (m *Model) showContacts(entries []protocol.UserStatus) {
	m.state.AppendChannel("[system] contacts:", true)
	for _, e := range entries {
		status := "offline"
		if e.Online {
			status = "online"
		}
		m.state.AppendChannel(fmt.Sprintf("  %s (%s)", e.Username, status), true)
	}
}
