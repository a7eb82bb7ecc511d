// Package histcache persists the channel view to a per-user JSON file in
// the system temp directory, so a restarted client can show recent chat
// before the server replays history.
package histcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/lantern/internal/filex"
)

// Line is one rendered chat line. Self marks lines authored by the
// local user so the view can style them differently.
type Line struct {
	Text string
	Self bool
}

type record struct {
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
}

type snapshot struct {
	Messages []record `json:"messages"`
	Count    int      `json:"count"`
}

// Cache reads and writes the history file for one username.
type Cache struct {
	path        string
	maxMessages int
}

var senderRe = regexp.MustCompile(`^\[([^\]]+)\](?:\s*:|\s|$)`)

// New returns a cache for username. The file lives in os.TempDir so it
// survives restarts but not reboots.
func New(username string, maxMessages int) *Cache {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(username)
	if safe == "" {
		safe = "default"
	}
	return &Cache{
		path:        filepath.Join(os.TempDir(), "lantern_chat_history_"+safe+".json"),
		maxMessages: maxMessages,
	}
}

// extractSender pulls the username out of a rendered line like
// "[alice]: hi" or "[bob] joined". Returns "" when the line does not
// carry a sender.
func extractSender(text string) string {
	m := senderRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	sender := m[1]
	for _, suffix := range []string{" joined", " left"} {
		sender = strings.TrimSuffix(sender, suffix)
	}
	return sender
}

// Save writes the last maxMessages lines to disk. The sender is stored
// per record so Load can recompute Self for whichever user loads it.
// Failures are returned but callers typically ignore them, losing the
// cache is not worth interrupting a chat session.
func (c *Cache) Save(lines []Line) error {
	if len(lines) > c.maxMessages {
		lines = lines[len(lines)-c.maxMessages:]
	}

	records := make([]record, 0, len(lines))
	for _, l := range lines {
		records = append(records, record{Text: l.Text, Sender: extractSender(l.Text)})
	}

	data, err := json.Marshal(snapshot{Messages: records, Count: len(records)})
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(c.path, data, 0o600)
}

// Load reads cached lines, marking as Self those sent by currentUsername.
// A missing or corrupt file yields an empty slice.
func (c *Cache) Load(currentUsername string) []Line {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}

	lines := make([]Line, 0, len(snap.Messages))
	for _, r := range snap.Messages {
		sender := r.Sender
		if sender == "" {
			sender = extractSender(r.Text)
		}
		lines = append(lines, Line{Text: r.Text, Self: sender != "" && sender == currentUsername})
	}

	if len(lines) > c.maxMessages {
		lines = lines[len(lines)-c.maxMessages:]
	}
	return lines
}

// Clear deletes the history file. A missing file is fine.
func (c *Cache) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
