// Package conn implements the client side of the chat protocol: dialing,
// the register/login/join handshake, the background receive loop and the
// keepalive pinger.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/lantern/internal/common"
	"github.com/dmitrijs2005/lantern/internal/logging"
	"github.com/dmitrijs2005/lantern/internal/protocol"
)

// handshakeTimeout bounds each synchronous reply during register/login.
const handshakeTimeout = 15 * time.Second

// Client is one authenticated connection to the chat server. The
// handshake methods (Register, Login, Join) are synchronous and must be
// called before Start; after Start all server traffic is delivered on
// the Events channel.
type Client struct {
	conn *protocol.Conn
	nc   net.Conn
	log  logging.Logger

	keepalive time.Duration
	events    chan protocol.Event

	token string

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	// keepalive round-trip bookkeeping, nanoseconds
	pingSentAt atomic.Int64
	rtt        atomic.Int64
}

// Dial connects to the chat server at addr.
func Dial(ctx context.Context, addr string, keepalive time.Duration, log logging.Logger) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		conn:      protocol.NewConn(nc),
		nc:        nc,
		log:       log.With("server", addr),
		keepalive: keepalive,
		events:    make(chan protocol.Event, 64),
		done:      make(chan struct{}),
	}, nil
}

// roundTrip sends one frame and reads the next reply, with a deadline so
// a dead server cannot hang the handshake.
func (c *Client) roundTrip(req string) (protocol.Event, error) {
	_ = c.nc.SetDeadline(time.Now().Add(handshakeTimeout))
	defer c.nc.SetDeadline(time.Time{})

	if err := c.conn.WriteFrame(req); err != nil {
		return protocol.Event{}, err
	}
	raw, err := c.conn.ReadFrame()
	if err != nil {
		return protocol.Event{}, err
	}
	return protocol.ParseEvent(raw), nil
}

// Register creates an account. Must be called before Start.
func (c *Client) Register(username, password string) error {
	ev, err := c.roundTrip(protocol.VerbRegister + "|" + username + "|" + password)
	if err != nil {
		return err
	}
	switch ev.Kind {
	case protocol.EventRegisterOK:
		return nil
	case protocol.EventRegisterFail:
		if strings.Contains(ev.Text, "taken") {
			return fmt.Errorf("%w: %s", common.ErrNameTaken, ev.Text)
		}
		return fmt.Errorf("register: %s", ev.Text)
	default:
		return fmt.Errorf("register: unexpected reply %q", ev.Text)
	}
}

// Login authenticates and stores the session token. Must be called
// before Start.
func (c *Client) Login(username, password string) (string, error) {
	ev, err := c.roundTrip(protocol.VerbLogin + "|" + username + "|" + password)
	if err != nil {
		return "", err
	}
	switch ev.Kind {
	case protocol.EventAuthOK:
		c.token = ev.Token
		return ev.Token, nil
	case protocol.EventBanned:
		return "", fmt.Errorf("%w: %s", common.ErrBanned, ev.Text)
	case protocol.EventAuthFail:
		if strings.Contains(strings.ToLower(ev.Text), "banned") {
			return "", fmt.Errorf("%w: %s", common.ErrBanned, ev.Text)
		}
		return "", fmt.Errorf("%w: %s", common.ErrUnauthorized, ev.Text)
	default:
		return "", fmt.Errorf("login: unexpected reply %q", ev.Text)
	}
}

// Token returns the session token obtained by Login.
func (c *Client) Token() string { return c.token }

// Join enters the channel. The server replies with the user list,
// admin list and channel history; those frames are not consumed here,
// they arrive as events once Start runs.
func (c *Client) Join(username string) error {
	return c.conn.WriteFrame(protocol.VerbJoin + "|" + username)
}

// Start launches the receive loop and the keepalive pinger. The Events
// channel is closed when the connection drops.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.receiveLoop(ctx)
		go c.keepaliveLoop(ctx)
	})
}

// Events delivers decoded server messages. Closed on disconnect.
func (c *Client) Events() <-chan protocol.Event { return c.events }

func (c *Client) receiveLoop(ctx context.Context) {
	defer close(c.events)
	for {
		raw, err := c.conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, common.ErrStreamClosed) && ctx.Err() == nil {
				c.log.Warn(ctx, "connection lost", "error", err)
			}
			c.shutdown()
			return
		}

		ev := protocol.ParseEvent(raw)
		if ev.Kind == protocol.EventPing {
			if sent := c.pingSentAt.Load(); sent > 0 {
				c.rtt.Store(time.Now().UnixNano() - sent)
			}
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			c.shutdown()
			return
		}
	}
}

func (c *Client) keepaliveLoop(ctx context.Context) {
	t := time.NewTicker(c.keepalive)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.pingSentAt.Store(time.Now().UnixNano())
			if err := c.conn.WriteFrame(protocol.Ping()); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// PingRTT returns the last measured keepalive round-trip, zero until the
// first ping completes.
func (c *Client) PingRTT() time.Duration {
	return time.Duration(c.rtt.Load())
}

// SendChat posts text to the channel.
func (c *Client) SendChat(text string) error {
	return c.conn.WriteFrame(text)
}

// SendDM sends a direct message.
func (c *Client) SendDM(recipient, text string) error {
	return c.conn.WriteFrame(protocol.VerbDM + "|" + recipient + "|" + text)
}

// RequestUsers asks for the online user list.
func (c *Client) RequestUsers() error {
	return c.conn.WriteFrame(protocol.VerbReqUsers)
}

// RequestUsersDetailed asks for DM contacts with presence and last-DM times.
func (c *Client) RequestUsersDetailed() error {
	return c.conn.WriteFrame(protocol.VerbReqUsersDetailed)
}

// RequestDMHistory asks for the stored conversation with partner.
func (c *Client) RequestDMHistory(partner string) error {
	return c.conn.WriteFrame(protocol.VerbReqDMHistory + "|" + partner)
}

// RequestChannelHistory asks for a fresh replay of channel history.
func (c *Client) RequestChannelHistory() error {
	return c.conn.WriteFrame(protocol.VerbReqChannelHistory)
}

// SendAdmin issues a moderation command using the stored session token.
func (c *Client) SendAdmin(command, actor string, args ...string) error {
	parts := append([]string{protocol.VerbAdminCmd, command, actor, c.token}, args...)
	return c.conn.WriteFrame(strings.Join(parts, "|"))
}

// Leave announces departure. The server closes the connection after.
func (c *Client) Leave() error {
	return c.conn.WriteFrame(protocol.VerbLeave)
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}
