// Package state owns all shared mutable server state: the credential store,
// session registry, pending-auth records, channel and DM history, and the
// admin set. One mutex guards every map; callers go through methods and never
// see raw references, which keeps the lock discipline enforceable. The lock
// is scoped to one operation and is never held across a network write.
//
// Everything persists as whole-file JSON snapshots (users.json, messages.json,
// config.json) rewritten on each mutation with a write-then-replace. The
// dataset is small and mutations are rare next to chat traffic, so the
// simplicity wins.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/lantern/internal/filex"
	"github.com/dmitrijs2005/lantern/internal/logging"
	"github.com/dmitrijs2005/lantern/internal/protocol"
)

const (
	MaxChannelMessages   = 2000
	MaxDMMessagesPerConv = 5000
	MaxUsernameLen       = 16
)

const (
	usersFile   = "users.json"
	historyFile = "messages.json"
	adminsFile  = "config.json"
)

// User is one credential record. Legacy records (a bare password string, or
// an object carrying legacy_password) are migrated to this form at load; the
// unsalted password itself is upgraded to a salted hash on the first
// successful validation.
type User struct {
	Salt           string  `json:"salt"`
	Hash           string  `json:"hash"`
	LegacyPassword *string `json:"legacy_password,omitempty"`
	Banned         bool    `json:"banned"`
	BanReason      string  `json:"ban_reason,omitempty"`
	Muted          bool    `json:"muted"`
}

// ServerState is the single aggregate behind every protocol operation.
type ServerState struct {
	mu  sync.Mutex
	dir string
	log logging.Logger

	users       map[string]*User
	sessions    map[string]string // username -> current token
	pendingAuth map[string]string // connection id -> username
	channel     []protocol.ChatMessage
	dm          map[string][]protocol.ChatMessage // "a,b" sorted pair -> log
	admins      map[string]struct{}

	now func() time.Time // test seam
}

// New loads the snapshots under dir (creating it if needed), runs the
// one-time legacy credential migration, and returns a ready aggregate.
func New(dir string, log logging.Logger) (*ServerState, error) {
	if _, err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}

	s := &ServerState{
		dir:         dir,
		log:         log.With("module", "state"),
		users:       make(map[string]*User),
		sessions:    make(map[string]string),
		pendingAuth: make(map[string]string),
		dm:          make(map[string][]protocol.ChatMessage),
		admins:      make(map[string]struct{}),
		now:         time.Now,
	}

	migrated, err := s.loadUsers()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if err := s.loadHistory(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if err := s.loadAdmins(); err != nil {
		return nil, fmt.Errorf("load admins: %w", err)
	}

	if migrated > 0 {
		s.log.Info(context.Background(), "migrated legacy user records", "count", migrated)
		s.saveUsersLocked()
	}
	return s, nil
}

// loadUsers reads users.json, accepting both the structured format and the
// legacy one where a record is a bare plain-text password string. Returns
// the number of records migrated.
func (s *ServerState) loadUsers() (int, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, usersFile))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, err
	}

	migrated := 0
	for name, entry := range raw {
		var u User
		if err := json.Unmarshal(entry, &u); err == nil {
			s.users[name] = &u
			continue
		}
		var legacy string
		if err := json.Unmarshal(entry, &legacy); err != nil {
			return 0, fmt.Errorf("user %q: unrecognized record", name)
		}
		s.users[name] = &User{LegacyPassword: &legacy}
		migrated++
	}
	return migrated, nil
}

func (s *ServerState) loadHistory() error {
	data, err := os.ReadFile(filepath.Join(s.dir, historyFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap historySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.channel = capTail(snap.Channel, MaxChannelMessages)
	for key, msgs := range snap.DM {
		s.dm[key] = capTail(msgs, MaxDMMessagesPerConv)
	}
	return nil
}

func (s *ServerState) loadAdmins() error {
	data, err := os.ReadFile(filepath.Join(s.dir, adminsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap adminsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	for _, a := range snap.Admins {
		if a != "" {
			s.admins[a] = struct{}{}
		}
	}
	return nil
}

type historySnapshot struct {
	Channel []protocol.ChatMessage            `json:"channel"`
	DM      map[string][]protocol.ChatMessage `json:"dm"`
}

type adminsSnapshot struct {
	Admins []string `json:"admins"`
}

// saveUsersLocked, saveHistoryLocked and saveAdminsLocked rewrite the
// corresponding snapshot. Persistence failures are logged, not propagated:
// the in-memory state is still authoritative for the running process.
func (s *ServerState) saveUsersLocked() {
	data, err := json.Marshal(s.users)
	if err == nil {
		err = filex.WriteFileAtomic(filepath.Join(s.dir, usersFile), data, 0o600)
	}
	if err != nil {
		s.log.Warn(context.Background(), "users snapshot failed", "error", err)
	}
}

func (s *ServerState) saveHistoryLocked() {
	snap := historySnapshot{Channel: s.channel, DM: s.dm}
	data, err := json.Marshal(snap)
	if err == nil {
		err = filex.WriteFileAtomic(filepath.Join(s.dir, historyFile), data, 0o600)
	}
	if err != nil {
		s.log.Warn(context.Background(), "history snapshot failed", "error", err)
	}
}

func (s *ServerState) saveAdminsLocked() {
	snap := adminsSnapshot{Admins: s.adminsLocked()}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err == nil {
		err = filex.WriteFileAtomic(filepath.Join(s.dir, adminsFile), data, 0o600)
	}
	if err != nil {
		s.log.Warn(context.Background(), "admins snapshot failed", "error", err)
	}
}

func capTail(msgs []protocol.ChatMessage, max int) []protocol.ChatMessage {
	if len(msgs) > max {
		return append([]protocol.ChatMessage(nil), msgs[len(msgs)-max:]...)
	}
	return msgs
}

func (s *ServerState) timestamp() float64 {
	return float64(s.now().UnixNano()) / float64(time.Second)
}
