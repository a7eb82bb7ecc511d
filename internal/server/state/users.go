package state

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/dmitrijs2005/lantern/internal/common"
)

// usernameChars is the allowed username alphabet. Whitespace, pipes, brackets
// and most punctuation would collide with the wire format, so registration
// rejects them outright.
const usernameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-"

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

// ValidUsername reports whether name is acceptable for registration and
// rename: non-empty, at most MaxUsernameLen characters, restricted alphabet.
func ValidUsername(name string) bool {
	if name == "" || len(name) > MaxUsernameLen {
		return false
	}
	for _, r := range name {
		if !strings.ContainsRune(usernameChars, r) {
			return false
		}
	}
	return true
}

// RegisterUser creates a new credential record with a fresh random salt.
func (s *ServerState) RegisterUser(username, password string) error {
	username = strings.TrimSpace(username)
	if !ValidUsername(username) {
		return common.ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return common.ErrNameTaken
	}

	salt, err := common.MakeRandHexString(16)
	if err != nil {
		return err
	}
	s.users[username] = &User{
		Salt: salt,
		Hash: hashPassword(password, salt),
	}
	s.saveUsersLocked()
	return nil
}

// ValidateUser checks a password against the stored record. A legacy
// plain-text record that matches is upgraded in place to a salted hash.
func (s *ServerState) ValidateUser(username, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return false
	}

	if u.Salt != "" && u.Hash != "" {
		return u.Hash == hashPassword(password, u.Salt)
	}

	if u.LegacyPassword != nil && *u.LegacyPassword == password {
		salt, err := common.MakeRandHexString(16)
		if err != nil {
			return true // auth succeeded; upgrade retried on next login
		}
		u.Salt = salt
		u.Hash = hashPassword(password, salt)
		u.LegacyPassword = nil
		s.saveUsersLocked()
		return true
	}
	return false
}

func (s *ServerState) UserExists(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[username]
	return ok
}

// BanInfo returns whether the user is banned and the stored reason.
func (s *ServerState) BanInfo(username string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return false, ""
	}
	return u.Banned, u.BanReason
}

func (s *ServerState) IsMuted(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return ok && u.Muted
}

// SetBanned flips the ban flag. reason is stored only when banning.
func (s *ServerState) SetBanned(username string, banned bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return common.ErrNotFound
	}
	if !banned && !u.Banned {
		return common.ErrNotBanned
	}
	u.Banned = banned
	if banned {
		u.BanReason = reason
	} else {
		u.BanReason = ""
	}
	s.saveUsersLocked()
	return nil
}

func (s *ServerState) SetMuted(username string, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return common.ErrNotFound
	}
	u.Muted = muted
	s.saveUsersLocked()
	return nil
}

// RenameUser migrates the credential record, any open session token, DM
// conversation keys and admin-set membership from old to new in one step
// under the lock. Live connection bindings live in the presence table and
// are migrated by the moderation engine in the same protocol operation.
func (s *ServerState) RenameUser(oldName, newName string) error {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" || !ValidUsername(newName) {
		return common.ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[oldName]
	if !ok {
		return common.ErrNotFound
	}
	if _, taken := s.users[newName]; taken {
		return common.ErrNameTaken
	}

	s.users[newName] = u
	delete(s.users, oldName)

	if tok, ok := s.sessions[oldName]; ok {
		s.sessions[newName] = tok
		delete(s.sessions, oldName)
	}

	s.rekeyDMLocked(oldName, newName)

	if _, ok := s.admins[oldName]; ok {
		delete(s.admins, oldName)
		s.admins[newName] = struct{}{}
		s.saveAdminsLocked()
	}

	s.saveUsersLocked()
	s.saveHistoryLocked()
	return nil
}

// IsAdmin reports admin-set membership.
func (s *ServerState) IsAdmin(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.admins[username]
	return ok
}

// Admins returns the sorted admin list.
func (s *ServerState) Admins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminsLocked()
}

func (s *ServerState) adminsLocked() []string {
	out := make([]string, 0, len(s.admins))
	for a := range s.admins {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// AddAdmin is used by operator tooling and tests to seed the admin set.
func (s *ServerState) AddAdmin(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[username] = struct{}{}
	s.saveAdminsLocked()
}
