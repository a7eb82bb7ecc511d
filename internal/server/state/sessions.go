package state

import (
	"fmt"

	"github.com/dmitrijs2005/lantern/internal/common"
)

// Login validates credentials, rejects banned users with their stored
// reason, issues a fresh session token (overwriting and thereby invalidating
// any prior one), and records a pending-auth entry for connID so the JOIN
// that follows on the same connection can be matched up.
//
// A previous login's socket is deliberately left alone: it holds a stale
// token and will be evicted by the idle reaper. Forcibly closing it here
// would be a behavior change over the deployed protocol.
func (s *ServerState) Login(connID, username, password string) (string, error) {
	if !s.ValidateUser(username, password) {
		return "", common.ErrUnauthorized
	}
	if banned, reason := s.BanInfo(username); banned {
		return "", fmt.Errorf("%w: %s", common.ErrBanned, reason)
	}

	token, err := common.MakeRandHexString(32)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[username] = token
	s.pendingAuth[connID] = username
	return token, nil
}

// ConsumeJoin pops the pending-auth entry for connID and reports whether it
// matches username. The entry is one-time use either way.
func (s *ServerState) ConsumeJoin(connID, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.pendingAuth[connID]
	delete(s.pendingAuth, connID)
	return ok && pending == username
}

// DropPendingAuth discards any login intent left on a connection that went
// away before joining.
func (s *ServerState) DropPendingAuth(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingAuth, connID)
}

// SessionToken returns the current token for username, if any.
func (s *ServerState) SessionToken(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.sessions[username]
	return tok, ok
}

// ClearSession invalidates username's token.
func (s *ServerState) ClearSession(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, username)
}

// AuthorizeAdmin gates every admin command. The connection's bound username
// must equal the claimed actor, the actor's current session token must equal
// the supplied one (exact string comparison), and the actor must be in the
// admin set. The three checks fail independently with distinct reasons.
func (s *ServerState) AuthorizeAdmin(boundUser, actor, token string) error {
	if boundUser != actor {
		return common.ErrUnauthorized
	}

	s.mu.Lock()
	current, ok := s.sessions[actor]
	s.mu.Unlock()
	if !ok || current != token {
		return common.ErrInvalidToken
	}

	if !s.IsAdmin(actor) {
		return common.ErrNotAdmin
	}
	return nil
}
