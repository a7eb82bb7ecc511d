package conn

import (
	"context"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/lantern/internal/common"
	"github.com/dmitrijs2005/lantern/internal/logging"
	"github.com/dmitrijs2005/lantern/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})))
}

// scriptedServer accepts exactly one connection and hands it to fn as a
// framed conn, so each test can play the server side of the dialogue.
func scriptedServer(t *testing.T, fn func(sc *protocol.Conn)) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		sc := protocol.NewConn(nc)
		defer sc.Close()
		fn(sc)
	}()

	return l.Addr().String()
}

func dialTest(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr, 50*time.Millisecond, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDial_Refused(t *testing.T) {
	// grab a free port and close it again so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = Dial(context.Background(), addr, time.Second, testLogger())
	assert.Error(t, err)
}

func TestRegisterAndLogin(t *testing.T) {
	addr := scriptedServer(t, func(sc *protocol.Conn) {
		msg, err := sc.ReadFrame()
		if err != nil || msg != "[REGISTER]|alice|pw" {
			return
		}
		_ = sc.WriteFrame(protocol.RegisterOK())

		msg, err = sc.ReadFrame()
		if err != nil || msg != "[LOGIN]|alice|pw" {
			return
		}
		_ = sc.WriteFrame(protocol.AuthOK("deadbeef"))
	})

	c := dialTest(t, addr)

	require.NoError(t, c.Register("alice", "pw"))

	token, err := c.Login("alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", token)
	assert.Equal(t, "deadbeef", c.Token())
}

func TestRegister_NameTaken(t *testing.T) {
	addr := scriptedServer(t, func(sc *protocol.Conn) {
		_, _ = sc.ReadFrame()
		_ = sc.WriteFrame(protocol.RegisterFail("Username taken"))
	})

	c := dialTest(t, addr)

	err := c.Register("alice", "pw")
	assert.ErrorIs(t, err, common.ErrNameTaken)
}

func TestLogin_BadCredentials(t *testing.T) {
	addr := scriptedServer(t, func(sc *protocol.Conn) {
		_, _ = sc.ReadFrame()
		_ = sc.WriteFrame(protocol.AuthFail("Bad username or password"))
	})

	c := dialTest(t, addr)

	_, err := c.Login("alice", "wrong")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestLogin_Banned(t *testing.T) {
	addr := scriptedServer(t, func(sc *protocol.Conn) {
		_, _ = sc.ReadFrame()
		_ = sc.WriteFrame(protocol.AuthFail("banned: spamming"))
	})

	c := dialTest(t, addr)

	_, err := c.Login("alice", "pw")
	assert.ErrorIs(t, err, common.ErrBanned)
}

func TestEventsDeliveredAfterStart(t *testing.T) {
	addr := scriptedServer(t, func(sc *protocol.Conn) {
		msg, err := sc.ReadFrame()
		if err != nil || msg != "[JOIN]|alice" {
			return
		}
		_ = sc.WriteFrame(protocol.Users([]string{"alice", "bob"}))
		_ = sc.WriteFrame("[bob]: hello")
		_ = sc.WriteFrame(protocol.DirectMessage("bob", 1700000000, "psst"))
	})

	c := dialTest(t, addr)
	require.NoError(t, c.Join("alice"))
	c.Start(context.Background())

	ev := <-c.Events()
	assert.Equal(t, protocol.EventUsers, ev.Kind)
	assert.Equal(t, []string{"alice", "bob"}, ev.Users)

	ev = <-c.Events()
	assert.Equal(t, protocol.EventChat, ev.Kind)
	assert.Equal(t, "[bob]: hello", ev.Text)

	ev = <-c.Events()
	assert.Equal(t, protocol.EventDM, ev.Kind)
	assert.Equal(t, "bob", ev.Sender)
	assert.Equal(t, "psst", ev.Text)
}

func TestEventsClosedOnServerDisconnect(t *testing.T) {
	addr := scriptedServer(t, func(sc *protocol.Conn) {
		_ = sc.WriteFrame("[bob]: bye")
	})

	c := dialTest(t, addr)
	c.Start(context.Background())

	ev, ok := <-c.Events()
	require.True(t, ok)
	assert.Equal(t, "[bob]: bye", ev.Text)

	_, ok = <-c.Events()
	assert.False(t, ok)
}

func TestKeepalive_MeasuresRTT(t *testing.T) {
	addr := scriptedServer(t, func(sc *protocol.Conn) {
		for {
			msg, err := sc.ReadFrame()
			if err != nil {
				return
			}
			if msg == protocol.Ping() {
				_ = sc.WriteFrame(protocol.Ping())
			}
		}
	})

	c := dialTest(t, addr)
	c.Start(context.Background())

	require.Eventually(t, func() bool {
		return c.PingRTT() > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSendHelpersFrameCorrectly(t *testing.T) {
	got := make(chan string, 8)
	addr := scriptedServer(t, func(sc *protocol.Conn) {
		for {
			msg, err := sc.ReadFrame()
			if err != nil {
				close(got)
				return
			}
			got <- msg
		}
	})

	c := dialTest(t, addr)
	c.token = "tok"

	require.NoError(t, c.SendChat("hello all"))
	require.NoError(t, c.SendDM("bob", "psst"))
	require.NoError(t, c.RequestUsers())
	require.NoError(t, c.RequestDMHistory("bob"))
	require.NoError(t, c.SendAdmin("mute", "alice", "bob"))
	require.NoError(t, c.Leave())

	expected := []string{
		"hello all",
		"[DM]|bob|psst",
		"[REQ_USERS]",
		"[REQ_DM_HISTORY]|bob",
		"[ADMIN_CMD]|mute|alice|tok|bob",
		"[LEAVE]",
	}
	for _, want := range expected {
		select {
		case msg := <-got:
			assert.Equal(t, want, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
