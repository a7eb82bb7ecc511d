package protocol

import (
	"strconv"
	"strings"
)

// EventKind identifies the type of a parsed server message.
type EventKind int

const (
	EventChat EventKind = iota // relayed chat line or join/left notice
	EventPing
	EventRegisterOK
	EventRegisterFail
	EventAuthOK
	EventAuthFail
	EventUsers
	EventUsersDetailed
	EventAdmins
	EventChannelHistoryChunk
	EventChannelHistoryEnd
	EventDM
	EventDMFail
	EventDMHistory
	EventAdminOK
	EventAdminError
	EventBanned
	EventError
)

// Event is one server-to-client message decoded by the client's receive
// loop. Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Text string // chat line, failure reason, or admin detail

	Token string // EventAuthOK

	Users    []string     // EventUsers, EventAdmins
	Detailed []UserStatus // EventUsersDetailed

	Sender    string // EventDM
	Timestamp int64  // EventDM

	ChunkIndex int    // EventChannelHistoryChunk
	Chunk      string // EventChannelHistoryChunk

	Partner string // EventDMHistory
	Payload string // EventDMHistory JSON
}

// ParseEvent decodes one server frame. Anything that is not a recognized
// verb is surfaced as chat text, which covers relayed messages and the
// "[user joined]" style notices.
func ParseEvent(raw string) Event {
	if raw == VerbPing {
		return Event{Kind: EventPing}
	}
	if raw == VerbChannelHistoryEnd {
		return Event{Kind: EventChannelHistoryEnd}
	}
	if raw == VerbRegisterOK {
		return Event{Kind: EventRegisterOK}
	}

	verb, rest, _ := strings.Cut(raw, "|")
	switch verb {
	case VerbRegisterFail:
		return Event{Kind: EventRegisterFail, Text: rest}
	case VerbAuthOK:
		return Event{Kind: EventAuthOK, Token: rest}
	case VerbAuthFail:
		return Event{Kind: EventAuthFail, Text: rest}
	case VerbUsers:
		return Event{Kind: EventUsers, Users: splitList(rest)}
	case VerbAdmins:
		return Event{Kind: EventAdmins, Users: splitList(rest)}
	case VerbUsersDetailed:
		return Event{Kind: EventUsersDetailed, Detailed: parseDetailed(rest)}
	case VerbChannelHistory:
		idxStr, chunk, ok := strings.Cut(rest, "|")
		if !ok {
			break
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			break
		}
		return Event{Kind: EventChannelHistoryChunk, ChunkIndex: idx, Chunk: chunk}
	case VerbDM:
		parts := strings.SplitN(rest, "|", 3)
		if len(parts) < 3 {
			break
		}
		ts, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			break
		}
		return Event{Kind: EventDM, Sender: parts[0], Timestamp: ts, Text: parts[2]}
	case VerbDMFail:
		return Event{Kind: EventDMFail, Text: rest}
	case VerbDMHistory:
		partner, payload, ok := strings.Cut(rest, "|")
		if !ok {
			break
		}
		return Event{Kind: EventDMHistory, Partner: partner, Payload: payload}
	case VerbAdminOK:
		return Event{Kind: EventAdminOK, Text: rest}
	case VerbAdminError:
		return Event{Kind: EventAdminError, Text: rest}
	case VerbBanned:
		return Event{Kind: EventBanned, Text: rest}
	case VerbError:
		return Event{Kind: EventError, Text: rest}
	}

	return Event{Kind: EventChat, Text: raw}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}

func parseDetailed(s string) []UserStatus {
	var out []UserStatus
	for _, entry := range strings.Split(s, ";") {
		parts := strings.Split(entry, ",")
		if len(parts) != 3 {
			continue
		}
		ts, _ := strconv.ParseFloat(parts[2], 64)
		out = append(out, UserStatus{
			Username: parts[0],
			Online:   parts[1] == "online",
			LastDM:   ts,
		})
	}
	return out
}
