package state

import (
	"sort"
	"strings"

	"github.com/dmitrijs2005/lantern/internal/protocol"
)

// dmKey canonicalizes the unordered user pair, so (a,b) and (b,a) address
// the same conversation.
func dmKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "," + b
}

// AddChannelMessage appends to the channel log, evicting the oldest entries
// past the cap, and returns the stored record.
func (s *ServerState) AddChannelMessage(sender, text string) protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := protocol.ChatMessage{Sender: sender, Text: text, Timestamp: s.timestamp()}
	s.channel = append(s.channel, msg)
	if len(s.channel) > MaxChannelMessages {
		s.channel = s.channel[len(s.channel)-MaxChannelMessages:]
	}
	s.saveHistoryLocked()
	return msg
}

// ChannelHistory returns up to limit most recent channel messages,
// newest-last.
func (s *ServerState) ChannelHistory(limit int) []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.channel
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	// never nil, an empty log must marshal as a JSON array
	return append(make([]protocol.ChatMessage, 0, len(msgs)), msgs...)
}

// AddDM appends to the (sender, recipient) conversation with FIFO cap
// enforcement and returns the stored record.
func (s *ServerState) AddDM(sender, recipient, text string) protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dmKey(sender, recipient)
	msg := protocol.ChatMessage{Sender: sender, Text: text, Timestamp: s.timestamp()}
	log := append(s.dm[key], msg)
	if len(log) > MaxDMMessagesPerConv {
		log = log[len(log)-MaxDMMessagesPerConv:]
	}
	s.dm[key] = log
	s.saveHistoryLocked()
	return msg
}

// DMHistory returns up to limit most recent messages of the (a, b)
// conversation, newest-last. The key is unordered, so DMHistory(a, b) and
// DMHistory(b, a) are identical.
func (s *ServerState) DMHistory(a, b string, limit int) []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.dm[dmKey(a, b)]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	// never nil, see ChannelHistory
	return append(make([]protocol.ChatMessage, 0, len(msgs)), msgs...)
}

// LastDMTimes maps each of username's DM partners to the timestamp of the
// newest message in that conversation. Used to rank contacts by recency,
// including partners who are offline.
func (s *ServerState) LastDMTimes(username string) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]float64)
	for key, msgs := range s.dm {
		if len(msgs) == 0 {
			continue
		}
		u1, u2, _ := strings.Cut(key, ",")
		var other string
		switch username {
		case u1:
			other = u2
		case u2:
			other = u1
		default:
			continue
		}
		ts := msgs[len(msgs)-1].Timestamp
		if ts > out[other] {
			out[other] = ts
		}
	}
	return out
}

// DMPartners returns the sorted list of users that have a conversation with
// username.
func (s *ServerState) DMPartners(username string) []string {
	times := s.LastDMTimes(username)
	out := make([]string, 0, len(times))
	for u := range times {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// rekeyDMLocked rewrites every conversation key mentioning oldName. Caller
// holds the lock.
func (s *ServerState) rekeyDMLocked(oldName, newName string) {
	rekeyed := make(map[string][]protocol.ChatMessage, len(s.dm))
	for key, msgs := range s.dm {
		u1, u2, _ := strings.Cut(key, ",")
		if u1 == oldName {
			u1 = newName
		}
		if u2 == oldName {
			u2 = newName
		}
		rekeyed[dmKey(u1, u2)] = msgs
	}
	s.dm = rekeyed
}
