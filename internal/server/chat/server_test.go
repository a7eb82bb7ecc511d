package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/lantern/internal/logging"
	"github.com/dmitrijs2005/lantern/internal/protocol"
	"github.com/dmitrijs2005/lantern/internal/server/config"
	"github.com/dmitrijs2005/lantern/internal/server/state"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))
}

// startServer runs a chat server on an ephemeral port and returns it with
// its state aggregate and dial address.
func startServer(t *testing.T, mutate func(*config.Config)) (*Server, *state.ServerState, string) {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	st, err := state.New(cfg.DataDir, testLogger())
	require.NoError(t, err)

	srv := NewServer(cfg, testLogger(), st)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, listener)

	return srv, st, listener.Addr().String()
}

type testClient struct {
	t    *testing.T
	nc   net.Conn
	conn *protocol.Conn
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	return &testClient{t: t, nc: nc, conn: protocol.NewConn(nc)}
}

func (c *testClient) send(text string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteFrame(text))
}

func (c *testClient) recv() (string, error) {
	c.nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	return c.conn.ReadFrame()
}

// expect asserts the next frame exactly.
func (c *testClient) expect(want string) {
	c.t.Helper()
	got, err := c.recv()
	require.NoError(c.t, err)
	require.Equal(c.t, want, got)
}

// waitFor skips frames until one starts with prefix, then returns it.
func (c *testClient) waitFor(prefix string) string {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := c.recv()
		require.NoError(c.t, err, "waiting for %q", prefix)
		if strings.HasPrefix(got, prefix) {
			return got
		}
	}
	c.t.Fatalf("timed out waiting for %q", prefix)
	return ""
}

// expectSilence asserts no frame arrives within d.
func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()
	c.nc.SetReadDeadline(time.Now().Add(d))
	got, err := c.conn.ReadFrame()
	require.Error(c.t, err, "expected silence, got %q", got)
}

// login registers (ignoring "taken"), logs in and joins as username,
// consuming the join-time pushes. Returns the session token.
func (c *testClient) login(username string) string {
	c.t.Helper()
	c.send("[REGISTER]|" + username + "|pw-" + username)
	got, err := c.recv()
	require.NoError(c.t, err)
	require.Contains(c.t, []string{"[REGISTER_OK]", "[REGISTER_FAIL]|Username taken"}, got)

	c.send("[LOGIN]|" + username + "|pw-" + username)
	authOK := c.waitFor("[AUTH_OK]|")
	token := strings.TrimPrefix(authOK, "[AUTH_OK]|")
	require.Len(c.t, token, 64)

	c.send("[JOIN]|" + username)
	c.waitFor("[CHANNEL_HISTORY_END]")
	return token
}

func TestJoinWithoutLoginFails(t *testing.T) {
	_, _, addr := startServer(t, nil)
	c := dial(t, addr)

	c.send("[JOIN]|alice")
	c.expect("[AUTH_FAIL]|Please login first")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, st, addr := startServer(t, nil)
	require.NoError(t, st.RegisterUser("alice", "right"))

	c := dial(t, addr)
	c.send("[LOGIN]|alice|wrong")
	c.expect("[AUTH_FAIL]|Bad username or password")

	c.send("[LOGIN]|ghost|pw")
	c.expect("[AUTH_FAIL]|Bad username or password")

	// the connection stays usable
	c.send("[LOGIN]|alice|right")
	c.waitFor("[AUTH_OK]|")
}

func TestJoinNameMustMatchLogin(t *testing.T) {
	_, st, addr := startServer(t, nil)
	require.NoError(t, st.RegisterUser("alice", "pw"))

	c := dial(t, addr)
	c.send("[LOGIN]|alice|pw")
	c.waitFor("[AUTH_OK]|")

	c.send("[JOIN]|mallory")
	c.expect("[AUTH_FAIL]|Please login first")

	// the pending entry was consumed, a matching join now fails too
	c.send("[JOIN]|alice")
	c.expect("[AUTH_FAIL]|Please login first")
}

func TestJoinFlow(t *testing.T) {
	_, _, addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.send("[REGISTER]|alice|pw")
	alice.expect("[REGISTER_OK]")
	alice.send("[LOGIN]|alice|pw")
	alice.waitFor("[AUTH_OK]|")

	alice.send("[JOIN]|alice")
	alice.expect("[USERS]|alice")
	alice.expect("[ADMINS]|")
	alice.expect("[CHANNEL_HISTORY]|0|[]")
	alice.expect("[CHANNEL_HISTORY_END]")

	// the second joiner is announced to the first
	bob := dial(t, addr)
	bob.login("bob")

	alice.expect("[bob joined]")
	alice.expect("[USERS]|alice;bob")
}

func TestChannelChat(t *testing.T) {
	_, st, addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.login("alice")
	bob := dial(t, addr)
	bob.login("bob")
	alice.waitFor("[USERS]|alice;bob")

	alice.send("hello everyone")
	assert.Equal(t, "hello everyone", bob.waitFor("hello"))

	// the sender does not get an echo of channel chat
	alice.expectSilence(200 * time.Millisecond)

	// attributed to the registered username in history
	hist := st.ChannelHistory(0)
	require.Len(t, hist, 1)
	assert.Equal(t, "alice", hist[0].Sender)
	assert.Equal(t, "hello everyone", hist[0].Text)
}

func TestMutedUserCannotPost(t *testing.T) {
	_, st, addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.login("alice")
	bob := dial(t, addr)
	bob.login("bob")
	alice.waitFor("[USERS]|alice;bob")

	require.NoError(t, st.SetMuted("alice", true))

	alice.send("should not appear")
	alice.expect("[ERROR]|You are muted")

	assert.Empty(t, st.ChannelHistory(0))
	bob.expectSilence(200 * time.Millisecond)
}

func TestDirectMessages(t *testing.T) {
	_, st, addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.login("alice")
	bob := dial(t, addr)
	bob.login("bob")
	alice.waitFor("[USERS]|alice;bob")

	alice.send("[DM]|bob|hi")

	got := bob.waitFor("[DM]|")
	ev := protocol.ParseEvent(got)
	assert.Equal(t, protocol.EventDM, ev.Kind)
	assert.Equal(t, "alice", ev.Sender)
	assert.Equal(t, "hi", ev.Text)

	// sender receives the identical echo as the ack
	assert.Equal(t, got, alice.waitFor("[DM]|"))

	// history request returns exactly one entry
	alice.send("[REQ_DM_HISTORY]|bob")
	reply := alice.waitFor("[DM_HISTORY]|bob|")
	var msgs []protocol.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(reply, "[DM_HISTORY]|bob|")), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Equal(t, "hi", msgs[0].Text)

	// offline delivery: carol is registered but not connected
	require.NoError(t, st.RegisterUser("carol", "pw"))
	alice.send("[DM]|carol|are you there")
	alice.waitFor("[DM]|") // persisted and acked even though carol is offline
	require.Len(t, st.DMHistory("carol", "alice", 0), 1)
}

func TestDMValidation(t *testing.T) {
	_, _, addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.login("alice")

	alice.send("[DM]|ghost|hello?")
	alice.expect("[DM_FAIL]|User ghost not found")

	alice.send("[DM]|alice|talking to myself")
	alice.expect("[DM_FAIL]|Invalid recipient")
}

func TestChannelHistoryChunking(t *testing.T) {
	_, st, addr := startServer(t, nil)

	long := strings.Repeat("x", 3000)
	st.AddChannelMessage("alice", long)
	st.AddChannelMessage("alice", long)
	st.AddChannelMessage("alice", long)

	c := dial(t, addr)
	c.send("[REGISTER]|bob|pw")
	c.expect("[REGISTER_OK]")
	c.send("[LOGIN]|bob|pw")
	c.waitFor("[AUTH_OK]|")
	c.send("[JOIN]|bob")
	c.waitFor("[ADMINS]|")

	var payload strings.Builder
	chunks := 0
	for {
		got, err := c.recv()
		require.NoError(t, err)
		if got == "[CHANNEL_HISTORY_END]" {
			break
		}
		ev := protocol.ParseEvent(got)
		require.Equal(t, protocol.EventChannelHistoryChunk, ev.Kind)
		assert.Equal(t, chunks, ev.ChunkIndex)
		assert.LessOrEqual(t, len(ev.Chunk), protocol.HistoryChunkSize)
		payload.WriteString(ev.Chunk)
		chunks++
	}
	assert.Greater(t, chunks, 1, "payload should span multiple chunks")

	var msgs []protocol.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(payload.String()), &msgs))
	require.Len(t, msgs, 3)
	assert.Equal(t, long, msgs[0].Text)
}

func TestLeave(t *testing.T) {
	_, _, addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.login("alice")
	bob := dial(t, addr)
	bob.login("bob")
	alice.waitFor("[USERS]|alice;bob")

	bob.send("[LEAVE]")

	alice.expect("[bob left]")
	alice.expect("[USERS]|alice")
}

func TestPingEchoed(t *testing.T) {
	_, _, addr := startServer(t, nil)
	c := dial(t, addr)
	c.login("alice")

	c.send("[ping]")
	c.expect("[ping]")
}

func TestOperationsRequireJoin(t *testing.T) {
	_, _, addr := startServer(t, nil)
	c := dial(t, addr)

	c.send("just chatting")
	c.expect("[ERROR]|Join the channel first")

	c.send("[REQ_USERS]")
	c.expect("[ERROR]|Join the channel first")
}

func TestIdleReaperEvictsSilentConnections(t *testing.T) {
	_, _, addr := startServer(t, func(c *config.Config) {
		c.IdleTimeout = 300 * time.Millisecond
		c.ReapInterval = 50 * time.Millisecond
	})

	alice := dial(t, addr)
	alice.login("alice")
	bob := dial(t, addr)
	bob.login("bob")
	alice.waitFor("[USERS]|alice;bob")

	// alice keeps pinging, bob goes silent
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(50 * time.Millisecond):
				alice.conn.WriteFrame("[ping]")
			}
		}
	}()

	assert.Equal(t, "[bob left]", alice.waitFor("[bob left]"))
	alice.waitFor("[USERS]|alice")
}
