package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lantern/internal/common"
	"github.com/dmitrijs2005/lantern/internal/protocol"
	"github.com/dmitrijs2005/lantern/internal/server/metrics"
)

// SystemUser attributes moderation notices in the channel history.
const SystemUser = "system"

// handleAdmin runs the moderation pipeline: three independent authorization
// checks, then the command itself. Failures go back to the actor only;
// successes are acknowledged to the actor and announced in the channel.
func (s *Server) handleAdmin(ctx context.Context, w *worker, req protocol.Request) {
	if !s.requireJoined(ctx, w) {
		return
	}
	bound, ok := w.username()
	if !ok {
		return
	}

	if err := s.state.AuthorizeAdmin(bound, req.Actor, req.Token); err != nil {
		metrics.AuthFailuresTotal.Inc()
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			w.send(ctx, protocol.AdminError("Connection is not bound to "+req.Actor))
		case errors.Is(err, common.ErrInvalidToken):
			w.send(ctx, protocol.AdminError("Invalid session token"))
		case errors.Is(err, common.ErrNotAdmin):
			w.send(ctx, protocol.AdminError("You are not an admin"))
		default:
			w.send(ctx, protocol.AdminError("Authorization failed"))
		}
		return
	}

	switch req.Command {
	case "mute":
		s.adminSetMuted(ctx, w, req, true)
	case "unmute":
		s.adminSetMuted(ctx, w, req, false)
	case "ban":
		s.adminBan(ctx, w, req)
	case "unban":
		s.adminUnban(ctx, w, req)
	case "changeusername":
		s.adminRename(ctx, w, req)
	default:
		w.send(ctx, protocol.AdminError("Unknown command: "+req.Command))
	}
}

func (s *Server) adminTarget(ctx context.Context, w *worker, req protocol.Request) (string, bool) {
	if len(req.Args) < 1 || strings.TrimSpace(req.Args[0]) == "" {
		w.send(ctx, protocol.AdminError("Target username required"))
		return "", false
	}
	target := strings.TrimSpace(req.Args[0])
	if !s.state.UserExists(target) {
		w.send(ctx, protocol.AdminError("User "+target+" not found"))
		return "", false
	}
	return target, true
}

func (s *Server) adminSetMuted(ctx context.Context, w *worker, req protocol.Request, muted bool) {
	target, ok := s.adminTarget(ctx, w, req)
	if !ok {
		return
	}
	if err := s.state.SetMuted(target, muted); err != nil {
		w.send(ctx, protocol.AdminError("User "+target+" not found"))
		return
	}

	verb := "unmuted"
	if muted {
		verb = "muted"
	}
	detail := fmt.Sprintf("%s was %s by %s", target, verb, req.Actor)
	s.log.Info(ctx, "moderation action", "action", verb, "target", target, "actor", req.Actor)
	s.announce(detail)
	w.send(ctx, protocol.AdminOK(detail))
}

// adminBan flips the ban flag, then kicks every live connection bound to
// the target with a dedicated ban notice before closing it.
func (s *Server) adminBan(ctx context.Context, w *worker, req protocol.Request) {
	target, ok := s.adminTarget(ctx, w, req)
	if !ok {
		return
	}
	reason := ""
	if len(req.Args) > 1 {
		reason = strings.Join(req.Args[1:], "|")
	}

	if err := s.state.SetBanned(target, true, reason); err != nil {
		w.send(ctx, protocol.AdminError("Ban failed: "+err.Error()))
		return
	}
	s.state.ClearSession(target)

	kicked := false
	for _, c := range s.table.FindAll(target) {
		// remove first so the victim's worker cleanup does not emit a
		// duplicate leave notice
		if _, ok := s.table.Unregister(c.ID); ok {
			c.Conn.WriteFrame(protocol.Banned(reason))
			c.Conn.Close()
			kicked = true
		}
	}
	if kicked {
		s.broadcastLeave(target)
	}

	detail := fmt.Sprintf("%s was banned by %s", target, req.Actor)
	if reason != "" {
		detail += " (" + reason + ")"
	}
	s.log.Info(ctx, "moderation action", "action", "ban", "target", target, "actor", req.Actor, "reason", reason)
	s.announce(detail)
	w.send(ctx, protocol.AdminOK(detail))
}

func (s *Server) adminUnban(ctx context.Context, w *worker, req protocol.Request) {
	target, ok := s.adminTarget(ctx, w, req)
	if !ok {
		return
	}
	if err := s.state.SetBanned(target, false, ""); err != nil {
		if errors.Is(err, common.ErrNotBanned) {
			w.send(ctx, protocol.AdminError("User "+target+" is not banned"))
			return
		}
		w.send(ctx, protocol.AdminError("Unban failed: "+err.Error()))
		return
	}

	detail := fmt.Sprintf("%s was unbanned by %s", target, req.Actor)
	s.log.Info(ctx, "moderation action", "action", "unban", "target", target, "actor", req.Actor)
	s.announce(detail)
	w.send(ctx, protocol.AdminOK(detail))
}

// adminRename migrates the credential record, session token, DM history
// keys, admin-set membership and live connection bindings in one protocol
// operation, then re-broadcasts the refreshed lists.
func (s *Server) adminRename(ctx context.Context, w *worker, req protocol.Request) {
	if len(req.Args) < 2 || strings.TrimSpace(req.Args[0]) == "" || strings.TrimSpace(req.Args[1]) == "" {
		w.send(ctx, protocol.AdminError("Old and new username required"))
		return
	}
	oldName := strings.TrimSpace(req.Args[0])
	newName := strings.TrimSpace(req.Args[1])

	if err := s.state.RenameUser(oldName, newName); err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			w.send(ctx, protocol.AdminError("User "+oldName+" not found"))
		case errors.Is(err, common.ErrNameTaken):
			w.send(ctx, protocol.AdminError("Username "+newName+" is taken"))
		case errors.Is(err, common.ErrInvalidName):
			w.send(ctx, protocol.AdminError("Invalid username"))
		default:
			w.send(ctx, protocol.AdminError("Rename failed: "+err.Error()))
		}
		return
	}
	s.table.Rename(oldName, newName)

	dropped := s.table.Broadcast(protocol.Admins(s.state.Admins()), "")
	dropped += s.table.Broadcast(protocol.Users(s.table.ListOnline()), "")
	metrics.BroadcastDropsTotal.Add(float64(dropped))

	detail := fmt.Sprintf("%s is now known as %s", oldName, newName)
	s.log.Info(ctx, "moderation action", "action", "rename", "old", oldName, "new", newName, "actor", req.Actor)
	s.announce(detail)
	w.send(ctx, protocol.AdminOK(detail))
}

// announce records a system-authored channel message and broadcasts it.
func (s *Server) announce(detail string) {
	text := "[" + SystemUser + "] " + detail
	s.state.AddChannelMessage(SystemUser, text)
	dropped := s.table.Broadcast(text, "")
	metrics.BroadcastDropsTotal.Add(float64(dropped))
}
