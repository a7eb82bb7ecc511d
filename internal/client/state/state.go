// Package state holds the client-side view of the chat session: the
// channel transcript, per-partner DM conversations, the online user set
// and which view is on screen. All methods are safe for concurrent use
// by the receive loop and the UI.
package state

import (
	"sort"
	"sync"

	"github.com/dmitrijs2005/lantern/internal/client/histcache"
)

// View names the transcript currently on screen.
type View string

const (
	ViewChannel View = "channel"
	ViewDM      View = "dm"
)

// State is the shared session model.
type State struct {
	mu sync.RWMutex

	username    string
	maxMessages int

	channel []histcache.Line
	users   []string
	dms     map[string][]histcache.Line

	view     View
	dmTarget string

	// pendingDMTarget remembers which partner a DM history request was
	// sent for. The server reply does not quote the request, so a burst
	// of requests can attach a reply to the wrong partner. Kept simple:
	// last request wins.
	pendingDMTarget string
}

func New(username string, maxMessages int) *State {
	return &State{
		username:    username,
		maxMessages: maxMessages,
		dms:         make(map[string][]histcache.Line),
		view:        ViewChannel,
	}
}

func (s *State) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// SetUsername rebinds the local identity after a server-side rename.
func (s *State) SetUsername(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = name
}

// AppendChannel adds one line to the channel transcript, evicting the
// oldest when over the cap.
func (s *State) AppendChannel(text string, self bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = appendCapped(s.channel, histcache.Line{Text: text, Self: self}, s.maxMessages)
}

// SetChannel replaces the transcript wholesale, used when server history
// arrives or the disk cache is restored.
func (s *State) SetChannel(lines []histcache.Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) > s.maxMessages {
		lines = lines[len(lines)-s.maxMessages:]
	}
	s.channel = append([]histcache.Line(nil), lines...)
}

func (s *State) Channel() []histcache.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]histcache.Line(nil), s.channel...)
}

// AppendDM adds one line to the conversation with partner.
func (s *State) AppendDM(partner, text string, self bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dms[partner] = appendCapped(s.dms[partner], histcache.Line{Text: text, Self: self}, s.maxMessages)
}

// SetDM replaces the conversation with partner, used for history replay.
func (s *State) SetDM(partner string, lines []histcache.Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) > s.maxMessages {
		lines = lines[len(lines)-s.maxMessages:]
	}
	s.dms[partner] = append([]histcache.Line(nil), lines...)
}

func (s *State) DM(partner string) []histcache.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]histcache.Line(nil), s.dms[partner]...)
}

// DMPartners lists partners with an open conversation, sorted.
func (s *State) DMPartners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.dms))
	for p := range s.dms {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SetUsers replaces the online user set.
func (s *State) SetUsers(users []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append([]string(nil), users...)
}

func (s *State) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.users...)
}

// SwitchToDM opens the conversation with partner.
func (s *State) SwitchToDM(partner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = ViewDM
	s.dmTarget = partner
	if _, ok := s.dms[partner]; !ok {
		s.dms[partner] = nil
	}
}

// SwitchToChannel returns to the channel transcript.
func (s *State) SwitchToChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = ViewChannel
	s.dmTarget = ""
}

// CurrentView returns the active view and, for ViewDM, the partner.
func (s *State) CurrentView() (View, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view, s.dmTarget
}

// MarkDMHistoryRequested records which partner the next history reply
// belongs to.
func (s *State) MarkDMHistoryRequested(partner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingDMTarget = partner
}

// TakeDMHistoryTarget consumes the pending request marker.
func (s *State) TakeDMHistoryTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.pendingDMTarget
	s.pendingDMTarget = ""
	return target
}

func appendCapped(lines []histcache.Line, l histcache.Line, limit int) []histcache.Line {
	lines = append(lines, l)
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}
