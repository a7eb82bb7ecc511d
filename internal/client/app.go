// Package client wires configuration, authentication and the TUI into a
// runnable chat client.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/dmitrijs2005/lantern/internal/client/config"
	"github.com/dmitrijs2005/lantern/internal/client/conn"
	"github.com/dmitrijs2005/lantern/internal/client/histcache"
	"github.com/dmitrijs2005/lantern/internal/client/state"
	"github.com/dmitrijs2005/lantern/internal/client/tui"
	"github.com/dmitrijs2005/lantern/internal/common"
	"github.com/dmitrijs2005/lantern/internal/logging"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// App is the interactive chat client.
type App struct {
	config *config.Config
	logger logging.Logger
	in     io.Reader
	out    io.Writer
}

// NewApp assembles the client. Logs go to stderr so they do not fight
// the TUI for stdout.
func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))
	return &App{config: c, logger: logger, in: os.Stdin, out: os.Stdout}, nil
}

// credentials returns the login to use, prompting when the session file
// has no complete saved login. Register reports whether the user asked
// to create a new account.
func (a *App) credentials() (username, password string, register bool, err error) {
	if a.config.HasSession() {
		return a.config.Username, a.config.Password, false, nil
	}

	r := bufio.NewReader(a.in)

	username = a.config.Username
	if username == "" {
		fmt.Fprint(a.out, "Username: ")
		line, err := r.ReadString('\n')
		if err != nil {
			return "", "", false, err
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return "", "", false, errors.New("username is required")
	}

	fmt.Fprint(a.out, "Register a new account? [y/N]: ")
	answer, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", false, err
	}
	register = strings.EqualFold(strings.TrimSpace(answer), "y")

	fmt.Fprint(a.out, "Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", "", false, err
	}

	return username, string(pw), register, nil
}

// Run connects, authenticates and hands the terminal to the TUI. It
// returns when the user quits or the server disconnects.
func (a *App) Run(ctx context.Context) error {
	username, password, register, err := a.credentials()
	if err != nil {
		return err
	}

	cl, err := conn.Dial(ctx, a.config.ServerAddr, a.config.KeepaliveInterval, a.logger)
	if err != nil {
		return err
	}
	defer cl.Close()

	if register {
		if err := cl.Register(username, password); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Account created.")
	}

	if _, err := cl.Login(username, password); err != nil {
		if errors.Is(err, common.ErrUnauthorized) && a.config.HasSession() {
			// the remembered password no longer works, drop it
			_ = a.config.ClearSession()
		}
		return err
	}

	if err := a.config.SaveSession(username, password); err != nil {
		a.logger.Warn(ctx, "could not save session", "error", err)
	}

	if err := cl.Join(username); err != nil {
		return err
	}

	st := state.New(username, a.config.MaxMessages)
	cache := histcache.New(username, a.config.MaxMessages)
	model := tui.New(cl, st, cache)

	cl.Start(ctx)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
