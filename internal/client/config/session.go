package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/lantern/internal/filex"
)

const sessionFileName = ".lantern_session"

// Session holds remembered credentials so the client can log back in
// without prompting. Stored next to the config file.
type Session struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loadSession overlays cfg with the saved session, if any. An explicit
// -u flag or config username wins over the remembered one; the password
// is only reused when it belongs to the selected username.
func loadSession(cfg *Config) {
	data, err := os.ReadFile(cfg.SessionPath)
	if err != nil {
		return
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return
	}
	if cfg.Username == "" {
		cfg.Username = s.Username
	}
	if cfg.Username == s.Username {
		cfg.Password = s.Password
	}
}

// HasSession reports whether the config carries a complete saved login.
func (c *Config) HasSession() bool {
	return c.Username != "" && c.Password != ""
}

// SaveSession persists credentials for the next run.
func (c *Config) SaveSession(username, password string) error {
	data, err := json.Marshal(Session{Username: username, Password: password})
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(c.SessionPath, data, 0o600)
}

// ClearSession removes the saved credentials. A missing file is fine.
func (c *Config) ClearSession() error {
	err := os.Remove(c.SessionPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
