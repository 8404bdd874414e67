package lobby

import (
	"crypto/rand"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"monopoly_server/internal/board"
	"monopoly_server/internal/game"
	"monopoly_server/internal/logger"
	"monopoly_server/internal/metrics"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// Registry maps lobby codes to sessions and connections to the lobby they
// play in. It is safe for concurrent use.
type Registry struct {
	board *board.Board
	rules game.Rules
	rng   game.Randomizer
	store ResultStore

	mu        sync.RWMutex
	sessions  map[string]*Session
	connLobby map[string]string
	closed    bool

	// newCode is swapped in tests.
	newCode func() string
}

func NewRegistry(b *board.Board, rules game.Rules, rng game.Randomizer, store ResultStore) *Registry {
	return &Registry{
		board:     b,
		rules:     rules,
		rng:       rng,
		store:     store,
		sessions:  make(map[string]*Session),
		connLobby: make(map[string]string),
		newCode:   randomCode,
	}
}

func randomCode() string {
	var sb strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is unrecoverable for code generation
			panic(err)
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String()
}

// CreateLobby opens a new lobby with conn as its host.
func (r *Registry) CreateLobby(conn Conn, hostName string) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", game.NewError(game.CodeInvalidState, "server is shutting down")
	}
	if _, ok := r.connLobby[conn.ID()]; ok {
		r.mu.Unlock()
		return "", game.NewError(game.CodeAlreadyInLobby, "already in a lobby")
	}
	id := r.newCode()
	for r.sessions[id] != nil {
		id = r.newCode()
	}
	s := newSession(id, r.board, r.rules, r.rng, r.store, r.remove)
	r.sessions[id] = s
	metrics.LobbiesCreated.Inc()
	metrics.LobbiesActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	go s.run()

	if err := s.join(conn, hostName, true); err != nil {
		s.End("")
		return "", err
	}
	if !r.bind(conn, s) {
		return "", errSessionGone
	}
	logger.Info("lobby created", "lobby", id, "conn", conn.ID())
	return id, nil
}

// JoinLobby adds conn to an existing lobby. Codes are case-insensitive.
func (r *Registry) JoinLobby(conn Conn, lobbyID, name string) error {
	id := strings.ToUpper(strings.TrimSpace(lobbyID))

	r.mu.RLock()
	_, busy := r.connLobby[conn.ID()]
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if busy {
		return game.NewError(game.CodeAlreadyInLobby, "already in a lobby")
	}
	if !ok {
		return game.NewError(game.CodeNotFound, "lobby %q not found", id)
	}
	if err := s.join(conn, name, false); err != nil {
		return err
	}
	if !r.bind(conn, s) {
		return errSessionGone
	}
	return nil
}

// bind records conn as a member of s unless s has already gone away.
func (r *Registry) bind(conn Conn, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.ID] != s {
		return false
	}
	r.connLobby[conn.ID()] = s.ID
	return true
}

func (r *Registry) unbind(conn Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.connLobby[conn.ID()]
	if !ok {
		return nil
	}
	delete(r.connLobby, conn.ID())
	return r.sessions[id]
}

func (r *Registry) sessionFor(conn Conn) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.connLobby[conn.ID()]
	if !ok {
		return nil
	}
	return r.sessions[id]
}

// remove is called by a session from its own goroutine once it has stopped.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.ID] != s {
		return
	}
	delete(r.sessions, s.ID)
	for connID, lobbyID := range r.connLobby {
		if lobbyID == s.ID {
			delete(r.connLobby, connID)
		}
	}
	metrics.LobbiesActive.Set(float64(len(r.sessions)))
	logger.Info("lobby removed", "lobby", s.ID)
}

var knownTypes = map[string]bool{
	MsgGameCreate: true, MsgRequestJoin: true, MsgGameStart: true,
	MsgRequestRoll: true, MsgFinishTurn: true, MsgChoiceResponse: true,
	MsgRequestUpgrade: true, MsgRequestMortgage: true, MsgRequestUnmortgage: true,
	MsgLeaveGame: true, MsgGameEnd: true,
}

// RouteMessage decodes one inbound frame from conn and hands it to the
// right place. Errors are answered on conn.
func (r *Registry) RouteMessage(conn Conn, raw []byte) {
	env, err := Decode(raw)
	if err != nil {
		r.reply(conn, err)
		return
	}
	label := env.Type
	if !knownTypes[label] {
		label = "unknown"
	}
	metrics.Messages.WithLabelValues(label).Inc()

	switch env.Type {
	case MsgGameCreate:
		var p CreatePayload
		if err := env.DecodeData(&p); err != nil {
			r.reply(conn, err)
			return
		}
		if _, err := r.CreateLobby(conn, p.HostName); err != nil {
			r.reply(conn, err)
		}
		return
	case MsgRequestJoin:
		var p JoinPayload
		if err := env.DecodeData(&p); err != nil {
			r.reply(conn, err)
			return
		}
		if err := r.JoinLobby(conn, p.LobbyID, p.Name); err != nil {
			r.reply(conn, err)
		}
		return
	case MsgLeaveGame:
		if s := r.unbind(conn); s != nil {
			s.Leave(conn)
			return
		}
		r.reply(conn, game.NewError(game.CodeUnknownSession, "not in a lobby"))
		return
	}

	if !knownTypes[env.Type] {
		r.reply(conn, game.NewError(game.CodeUnknownMessage, "unknown message type %q", env.Type))
		return
	}
	s := r.sessionFor(conn)
	if s == nil || !s.Submit(conn, env) {
		r.reply(conn, game.NewError(game.CodeUnknownSession, "not in a lobby"))
	}
}

func (r *Registry) reply(conn Conn, err error) {
	metrics.Errors.WithLabelValues(string(game.CodeOf(err))).Inc()
	conn.Send(ErrorFrame(err))
}

// RemoveConnection is called when a transport connection closes.
func (r *Registry) RemoveConnection(conn Conn) {
	if s := r.unbind(conn); s != nil {
		s.Leave(conn)
	}
}

// Get returns a snapshot of one lobby.
func (r *Registry) Get(lobbyID string) (Snapshot, error) {
	id := strings.ToUpper(strings.TrimSpace(lobbyID))
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, game.NewError(game.CodeNotFound, "lobby %q not found", id)
	}
	snap, ok := s.Snapshot()
	if !ok {
		return Snapshot{}, game.NewError(game.CodeNotFound, "lobby %q not found", id)
	}
	return snap, nil
}

// List returns snapshots of lobbies still waiting for players, oldest first.
func (r *Registry) List() []Snapshot {
	out := []Snapshot{}
	for _, s := range r.all() {
		if snap, ok := s.Snapshot(); ok && snap.Status == StatusLobby {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].LobbyID < out[j].LobbyID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// End force-closes a lobby, sending GAME_END with reason to its players.
func (r *Registry) End(lobbyID, reason string) error {
	id := strings.ToUpper(strings.TrimSpace(lobbyID))
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return game.NewError(game.CodeNotFound, "lobby %q not found", id)
	}
	s.End(reason)
	return nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartCleanup periodically ends lobbies that never started a game and are
// older than maxAge, and finished games that ended more than grace ago. It
// stops when stop is closed.
func (r *Registry) StartCleanup(interval, maxAge, grace time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.cleanupStale(maxAge, grace)
			case <-stop:
				return
			}
		}
	}()
}

func (r *Registry) cleanupStale(maxAge, grace time.Duration) {
	now := time.Now()
	for _, s := range r.all() {
		snap, ok := s.Snapshot()
		if !ok {
			continue
		}
		switch {
		case snap.Status == StatusLobby && now.Sub(snap.CreatedAt) > maxAge:
			logger.Info("cleaning up stale lobby", "lobby", s.ID)
			s.End("lobby expired")
		case snap.Status == StatusFinished && snap.FinishedAt != nil && now.Sub(*snap.FinishedAt) > grace:
			logger.Info("cleaning up finished game", "lobby", s.ID)
			s.End("game over")
		}
	}
}

// Close ends every lobby and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	for _, s := range r.all() {
		s.End("server shutting down")
	}
}
