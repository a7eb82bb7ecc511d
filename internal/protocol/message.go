package protocol

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lantern/internal/common"
)

// Client-to-server verbs.
const (
	VerbRegister          = "[REGISTER]"
	VerbLogin             = "[LOGIN]"
	VerbJoin              = "[JOIN]"
	VerbLeave             = "[LEAVE]"
	VerbDM                = "[DM]"
	VerbReqUsers          = "[REQ_USERS]"
	VerbReqUsersDetailed  = "[REQ_USERS_DETAILED]"
	VerbReqDMHistory      = "[REQ_DM_HISTORY]"
	VerbReqChannelHistory = "[REQ_CHANNEL_HISTORY]"
	VerbAdminCmd          = "[ADMIN_CMD]"
	VerbPing              = "[ping]"
)

// Server-to-client verbs.
const (
	VerbRegisterOK        = "[REGISTER_OK]"
	VerbRegisterFail      = "[REGISTER_FAIL]"
	VerbAuthOK            = "[AUTH_OK]"
	VerbAuthFail          = "[AUTH_FAIL]"
	VerbUsers             = "[USERS]"
	VerbUsersDetailed     = "[USERS_DETAILED]"
	VerbAdmins            = "[ADMINS]"
	VerbChannelHistory    = "[CHANNEL_HISTORY]"
	VerbChannelHistoryEnd = "[CHANNEL_HISTORY_END]"
	VerbDMFail            = "[DM_FAIL]"
	VerbDMHistory         = "[DM_HISTORY]"
	VerbAdminOK           = "[ADMIN_OK]"
	VerbAdminError        = "[ADMIN_ERROR]"
	VerbBanned            = "[BANNED]"
	VerbError             = "[ERROR]"
)

// HistoryChunkSize is the maximum chunk of the JSON history payload carried
// by a single [CHANNEL_HISTORY] frame.
const HistoryChunkSize = 4000

// ChatMessage is the wire-level history record carried in JSON payloads and
// persisted by the history store. Timestamp is Unix seconds.
type ChatMessage struct {
	Sender    string  `json:"sender"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// Kind identifies the type of a parsed client request.
type Kind int

const (
	KindChat Kind = iota // plain channel text, the fallback
	KindPing
	KindRegister
	KindLogin
	KindJoin
	KindLeave
	KindDM
	KindReqUsers
	KindReqUsersDetailed
	KindReqDMHistory
	KindReqChannelHistory
	KindAdmin
)

// Request is the tagged result of parsing one inbound frame. Exactly one
// parse step produces it; handlers switch on Kind and never re-inspect the
// raw text, so illegal transitions are checked structurally.
type Request struct {
	Kind Kind

	// Register / Login / Join.
	Username string
	Password string

	// DM and channel chat.
	Recipient string
	Text      string

	// DM history partner.
	Partner string

	// Admin command.
	Command string
	Actor   string
	Token   string
	Args    []string
}

// ParseRequest turns one inbound frame into a typed Request. A recognized
// verb with missing arguments yields the verb's Kind plus
// common.ErrMalformedFrame so the dispatcher can reply with the right
// failure message. Unrecognized text is channel chat.
func ParseRequest(raw string) (Request, error) {
	if raw == VerbPing {
		return Request{Kind: KindPing}, nil
	}

	verb, rest, hasArgs := strings.Cut(raw, "|")
	switch verb {
	case VerbRegister, VerbLogin:
		kind := KindRegister
		if verb == VerbLogin {
			kind = KindLogin
		}
		user, pass, ok := strings.Cut(rest, "|")
		if !hasArgs || !ok {
			return Request{Kind: kind}, malformed(verb)
		}
		return Request{Kind: kind, Username: strings.TrimSpace(user), Password: pass}, nil

	case VerbJoin:
		if !hasArgs {
			return Request{Kind: KindJoin}, malformed(verb)
		}
		return Request{Kind: KindJoin, Username: strings.TrimSpace(rest)}, nil

	case VerbLeave:
		return Request{Kind: KindLeave}, nil

	case VerbDM:
		recipient, text, ok := strings.Cut(rest, "|")
		if !hasArgs || !ok {
			return Request{Kind: KindDM}, malformed(verb)
		}
		return Request{Kind: KindDM, Recipient: strings.TrimSpace(recipient), Text: text}, nil

	case VerbReqUsers:
		return Request{Kind: KindReqUsers}, nil

	case VerbReqUsersDetailed:
		return Request{Kind: KindReqUsersDetailed}, nil

	case VerbReqDMHistory:
		if !hasArgs || strings.TrimSpace(rest) == "" {
			return Request{Kind: KindReqDMHistory}, malformed(verb)
		}
		return Request{Kind: KindReqDMHistory, Partner: strings.TrimSpace(rest)}, nil

	case VerbReqChannelHistory:
		return Request{Kind: KindReqChannelHistory}, nil

	case VerbAdminCmd:
		parts := strings.Split(rest, "|")
		if !hasArgs || len(parts) < 3 {
			return Request{Kind: KindAdmin}, malformed(verb)
		}
		return Request{
			Kind:    KindAdmin,
			Command: parts[0],
			Actor:   parts[1],
			Token:   parts[2],
			Args:    parts[3:],
		}, nil
	}

	return Request{Kind: KindChat, Text: raw}, nil
}

func malformed(verb string) error {
	return fmt.Errorf("%w: %s", common.ErrMalformedFrame, verb)
}

// Formatting helpers for server-to-client messages.

func RegisterOK() string                { return VerbRegisterOK }
func RegisterFail(reason string) string { return VerbRegisterFail + "|" + reason }
func AuthOK(token string) string        { return VerbAuthOK + "|" + token }
func AuthFail(reason string) string     { return VerbAuthFail + "|" + reason }
func Admins(names []string) string      { return VerbAdmins + "|" + strings.Join(names, ";") }
func Users(names []string) string       { return VerbUsers + "|" + strings.Join(names, ";") }
func DMFail(reason string) string       { return VerbDMFail + "|" + reason }
func AdminOK(detail string) string      { return VerbAdminOK + "|" + detail }
func AdminError(reason string) string   { return VerbAdminError + "|" + reason }
func Banned(reason string) string       { return VerbBanned + "|" + reason }
func ErrorMsg(reason string) string     { return VerbError + "|" + reason }
func Ping() string                      { return VerbPing }

func DirectMessage(sender string, ts int64, text string) string {
	return fmt.Sprintf("%s|%s|%d|%s", VerbDM, sender, ts, text)
}

func DMHistory(partner, payload string) string {
	return VerbDMHistory + "|" + partner + "|" + payload
}

func ChannelHistoryChunk(index int, chunk string) string {
	return fmt.Sprintf("%s|%d|%s", VerbChannelHistory, index, chunk)
}

func ChannelHistoryEnd() string { return VerbChannelHistoryEnd }

func JoinedNotice(username string) string { return "[" + username + " joined]" }
func LeftNotice(username string) string   { return "[" + username + " left]" }

// UserStatus is one entry of a [USERS_DETAILED] reply: a DM contact with
// online state and last-DM timestamp, used by clients to rank contacts.
type UserStatus struct {
	Username string
	Online   bool
	LastDM   float64
}

func UsersDetailed(entries []UserStatus) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		status := "offline"
		if e.Online {
			status = "online"
		}
		parts = append(parts, fmt.Sprintf("%s,%s,%g", e.Username, status, e.LastDM))
	}
	return VerbUsersDetailed + "|" + strings.Join(parts, ";")
}
