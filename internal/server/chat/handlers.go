package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/dmitrijs2005/lantern/internal/common"
	"github.com/dmitrijs2005/lantern/internal/protocol"
	"github.com/dmitrijs2005/lantern/internal/server/metrics"
	"github.com/dmitrijs2005/lantern/internal/server/presence"
)

// dispatch routes one parsed request to its handler, enforcing the
// connection state machine: REGISTER/LOGIN before joining, JOIN only with a
// matching pending login, everything else only when joined.
func (s *Server) dispatch(ctx context.Context, w *worker, req protocol.Request, parseErr error) {
	if parseErr != nil {
		s.rejectMalformed(ctx, w, req.Kind)
		return
	}

	switch req.Kind {
	case protocol.KindPing:
		w.send(ctx, protocol.Ping())

	case protocol.KindRegister:
		s.handleRegister(ctx, w, req)

	case protocol.KindLogin:
		s.handleLogin(ctx, w, req)

	case protocol.KindJoin:
		s.handleJoin(ctx, w, req)

	case protocol.KindLeave:
		s.handleLeave(ctx, w)

	case protocol.KindChat:
		s.handleChat(ctx, w, req)

	case protocol.KindDM:
		s.handleDM(ctx, w, req)

	case protocol.KindReqUsers:
		if s.requireJoined(ctx, w) {
			w.send(ctx, protocol.Users(s.table.ListOnline()))
		}

	case protocol.KindReqUsersDetailed:
		s.handleReqUsersDetailed(ctx, w)

	case protocol.KindReqDMHistory:
		s.handleReqDMHistory(ctx, w, req)

	case protocol.KindReqChannelHistory:
		if s.requireJoined(ctx, w) {
			s.sendChannelHistory(ctx, w)
		}

	case protocol.KindAdmin:
		s.handleAdmin(ctx, w, req)
	}
}

// rejectMalformed answers a recognized verb that arrived with missing
// arguments. The connection stays open; only framing violations are fatal.
func (s *Server) rejectMalformed(ctx context.Context, w *worker, kind protocol.Kind) {
	const reason = "Invalid format"
	switch kind {
	case protocol.KindRegister:
		w.send(ctx, protocol.RegisterFail(reason))
	case protocol.KindLogin, protocol.KindJoin:
		w.send(ctx, protocol.AuthFail(reason))
	case protocol.KindDM:
		w.send(ctx, protocol.DMFail(reason))
	case protocol.KindAdmin:
		w.send(ctx, protocol.AdminError(reason))
	default:
		w.send(ctx, protocol.ErrorMsg(reason))
	}
}

// requireJoined gates operations that only make sense inside the channel.
func (s *Server) requireJoined(ctx context.Context, w *worker) bool {
	if w.state != stateJoined {
		w.send(ctx, protocol.ErrorMsg("Join the channel first"))
		return false
	}
	return true
}

func (s *Server) handleRegister(ctx context.Context, w *worker, req protocol.Request) {
	err := s.state.RegisterUser(req.Username, req.Password)
	switch {
	case err == nil:
		s.log.Info(ctx, "new user registered", "user", req.Username)
		w.send(ctx, protocol.RegisterOK())
	case errors.Is(err, common.ErrNameTaken):
		w.send(ctx, protocol.RegisterFail("Username taken"))
	case errors.Is(err, common.ErrInvalidName):
		w.send(ctx, protocol.RegisterFail("Invalid username"))
	default:
		w.send(ctx, protocol.RegisterFail("Registration failed"))
	}
}

func (s *Server) handleLogin(ctx context.Context, w *worker, req protocol.Request) {
	token, err := s.state.Login(w.id, req.Username, req.Password)
	if err != nil {
		metrics.AuthFailuresTotal.Inc()
		if errors.Is(err, common.ErrBanned) {
			w.send(ctx, protocol.AuthFail(err.Error()))
			// a banned user gets the reason and nothing else
			w.state = stateClosed
			return
		}
		w.send(ctx, protocol.AuthFail("Bad username or password"))
		return
	}

	w.state = statePendingJoin
	s.log.Info(ctx, "user authenticated", "user", req.Username)
	w.send(ctx, protocol.AuthOK(token))
}

func (s *Server) handleJoin(ctx context.Context, w *worker, req protocol.Request) {
	if w.state == stateJoined {
		return
	}
	if !s.state.ConsumeJoin(w.id, req.Username) {
		metrics.AuthFailuresTotal.Inc()
		w.state = stateConnected
		w.send(ctx, protocol.AuthFail("Please login first"))
		return
	}

	w.state = stateJoined
	s.table.Register(&presence.Client{ID: w.id, Username: req.Username, Conn: w.conn})
	s.log.Info(ctx, "client joined", "user", req.Username)

	dropped := s.table.Broadcast(protocol.JoinedNotice(req.Username), w.id)
	dropped += s.table.Broadcast(protocol.Users(s.table.ListOnline()), "")
	metrics.BroadcastDropsTotal.Add(float64(dropped))

	// the joiner alone gets the admin list and the channel backlog
	w.send(ctx, protocol.Admins(s.state.Admins()))
	s.sendChannelHistory(ctx, w)
}

func (s *Server) handleLeave(ctx context.Context, w *worker) {
	// cleanup broadcasts the departure once the loop unwinds
	w.state = stateClosed
}

func (s *Server) handleChat(ctx context.Context, w *worker, req protocol.Request) {
	if !s.requireJoined(ctx, w) {
		return
	}
	sender, ok := w.username()
	if !ok {
		return
	}

	if s.state.IsMuted(sender) {
		w.send(ctx, protocol.ErrorMsg("You are muted"))
		return
	}

	s.state.AddChannelMessage(sender, req.Text)
	metrics.MessagesTotal.WithLabelValues("channel").Inc()

	dropped := s.table.Broadcast(req.Text, w.id)
	metrics.BroadcastDropsTotal.Add(float64(dropped))
}

func (s *Server) handleDM(ctx context.Context, w *worker, req protocol.Request) {
	if !s.requireJoined(ctx, w) {
		return
	}
	sender, ok := w.username()
	if !ok {
		return
	}

	if req.Recipient == "" || req.Recipient == sender {
		w.send(ctx, protocol.DMFail("Invalid recipient"))
		return
	}
	if !s.state.UserExists(req.Recipient) {
		w.send(ctx, protocol.DMFail("User "+req.Recipient+" not found"))
		return
	}

	msg := s.state.AddDM(sender, req.Recipient, req.Text)
	metrics.MessagesTotal.WithLabelValues("dm").Inc()

	payload := protocol.DirectMessage(sender, int64(msg.Timestamp), req.Text)
	s.table.SendToUser(req.Recipient, payload)
	// echo back to the sender as the delivery ack
	w.send(ctx, payload)
}

func (s *Server) handleReqUsersDetailed(ctx context.Context, w *worker) {
	if !s.requireJoined(ctx, w) {
		return
	}
	requester, ok := w.username()
	if !ok {
		return
	}

	online := make(map[string]struct{})
	for _, u := range s.table.ListOnline() {
		online[u] = struct{}{}
	}
	lastDM := s.state.LastDMTimes(requester)

	all := make(map[string]struct{}, len(online)+len(lastDM))
	for u := range online {
		all[u] = struct{}{}
	}
	for u := range lastDM {
		all[u] = struct{}{}
	}

	names := make([]string, 0, len(all))
	for u := range all {
		names = append(names, u)
	}
	sort.Strings(names)

	entries := make([]protocol.UserStatus, 0, len(names))
	for _, u := range names {
		_, isOnline := online[u]
		entries = append(entries, protocol.UserStatus{
			Username: u,
			Online:   isOnline,
			LastDM:   lastDM[u],
		})
	}
	w.send(ctx, protocol.UsersDetailed(entries))
}

func (s *Server) handleReqDMHistory(ctx context.Context, w *worker, req protocol.Request) {
	if !s.requireJoined(ctx, w) {
		return
	}
	requester, ok := w.username()
	if !ok {
		return
	}

	history := s.state.DMHistory(requester, req.Partner, s.cfg.HistoryLimit)
	payload, err := json.Marshal(history)
	if err != nil {
		w.log.Error(ctx, "dm history marshal failed", "error", err)
		return
	}
	w.send(ctx, protocol.DMHistory(req.Partner, string(payload)))
}

// sendChannelHistory pushes the channel backlog as a JSON array split into
// bounded chunks, terminated by an end-of-history marker so the client
// knows when to reassemble and parse.
func (s *Server) sendChannelHistory(ctx context.Context, w *worker) {
	history := s.state.ChannelHistory(s.cfg.HistoryLimit)
	payload, err := json.Marshal(history)
	if err != nil {
		w.log.Error(ctx, "channel history marshal failed", "error", err)
		return
	}

	for i := 0; i*protocol.HistoryChunkSize < len(payload); i++ {
		start := i * protocol.HistoryChunkSize
		end := start + protocol.HistoryChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		w.send(ctx, protocol.ChannelHistoryChunk(i, string(payload[start:end])))
	}
	w.send(ctx, protocol.ChannelHistoryEnd())
}
