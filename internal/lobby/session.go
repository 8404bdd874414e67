package lobby

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"monopoly_server/internal/board"
	"monopoly_server/internal/domain"
	"monopoly_server/internal/game"
	"monopoly_server/internal/logger"
	"monopoly_server/internal/metrics"

	"github.com/google/uuid"
)

type Status string

const (
	StatusLobby      Status = "LOBBY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

const (
	maxNameLen   = 24
	saveTimeout  = 5 * time.Second
	requestQueue = 64
)

type member struct {
	conn      Conn
	playerID  string
	name      string
	pawn      string
	connected bool
}

// PlayerSummary is the public view of a lobby member.
type PlayerSummary struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Pawn      string `json:"pawn"`
	Connected bool   `json:"connected"`
	Balance   *int64 `json:"balance,omitempty"`
	Bankrupt  bool   `json:"bankrupt,omitempty"`
}

// Snapshot is a consistent copy of a session's public state.
type Snapshot struct {
	LobbyID     string          `json:"lobbyId"`
	Status      Status          `json:"status"`
	HostID      string          `json:"hostId"`
	Players     []PlayerSummary `json:"players"`
	MaxPlayers  int             `json:"maxPlayers"`
	Turn        int             `json:"turn,omitempty"`
	CurrentTurn string          `json:"currentTurn,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

// JoinSnapshot is the lobby view sent to a joining player.
type JoinSnapshot struct {
	Snapshot
	Board *board.Board `json:"board"`
	Pawns []board.Pawn `json:"pawns"`
}

// Requests handled by the session goroutine.
type request interface{ isRequest() }

type joinReq struct {
	conn  Conn
	name  string
	host  bool
	reply chan error
}

type actionReq struct {
	conn Conn
	env  Envelope
}

type leaveReq struct{ conn Conn }

type timeoutReq struct{ choiceID string }

type endReq struct {
	reason string
	reply  chan struct{}
}

type snapshotReq struct{ reply chan Snapshot }

func (joinReq) isRequest()     {}
func (actionReq) isRequest()   {}
func (leaveReq) isRequest()    {}
func (timeoutReq) isRequest()  {}
func (endReq) isRequest()      {}
func (snapshotReq) isRequest() {}

// Session owns one lobby and its game. All state is confined to the run
// goroutine; other goroutines talk to it through requests.
type Session struct {
	ID string

	board *board.Board
	rules game.Rules
	rng   game.Randomizer
	store ResultStore
	log   *slog.Logger

	reqs    chan request
	done    chan struct{}
	onClose func(*Session)

	status     Status
	hostID     string
	members    []*member
	engine     *game.Engine
	timer      *time.Timer
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	closed     bool
}

func newSession(id string, b *board.Board, rules game.Rules, rng game.Randomizer, store ResultStore, onClose func(*Session)) *Session {
	return &Session{
		ID:        id,
		board:     b,
		rules:     rules,
		rng:       rng,
		store:     store,
		log:       logger.ForLobby(id),
		reqs:      make(chan request, requestQueue),
		done:      make(chan struct{}),
		onClose:   onClose,
		status:    StatusLobby,
		createdAt: time.Now(),
	}
}

// Done is closed when the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) enqueue(r request) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.reqs <- r:
		return true
	case <-s.done:
		return false
	}
}

var errSessionGone = game.NewError(game.CodeUnknownSession, "lobby no longer exists")

func (s *Session) join(conn Conn, name string, host bool) error {
	reply := make(chan error, 1)
	if !s.enqueue(joinReq{conn: conn, name: name, host: host, reply: reply}) {
		return errSessionGone
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return errSessionGone
	}
}

// Submit hands an inbound message from conn to the session.
func (s *Session) Submit(conn Conn, env Envelope) bool {
	return s.enqueue(actionReq{conn: conn, env: env})
}

func (s *Session) Leave(conn Conn) {
	s.enqueue(leaveReq{conn: conn})
}

// End tears the session down, notifying players with GAME_END.
func (s *Session) End(reason string) {
	reply := make(chan struct{})
	if !s.enqueue(endReq{reason: reason, reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-s.done:
	}
}

func (s *Session) Snapshot() (Snapshot, bool) {
	reply := make(chan Snapshot, 1)
	if !s.enqueue(snapshotReq{reply: reply}) {
		return Snapshot{}, false
	}
	select {
	case snap := <-reply:
		return snap, true
	case <-s.done:
		return Snapshot{}, false
	}
}

func (s *Session) run() {
	s.log.Info("session started")
	for {
		select {
		case r := <-s.reqs:
			s.handle(r)
			if s.closed {
				s.log.Info("session stopped")
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) handle(r request) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("session panic", "panic", p, "stack", string(debug.Stack()))
			s.fault(fmt.Errorf("panic: %v", p))
		}
	}()

	switch r := r.(type) {
	case joinReq:
		r.reply <- s.handleJoin(r.conn, r.name, r.host)
	case actionReq:
		s.handleAction(r.conn, r.env)
	case leaveReq:
		s.handleLeave(r.conn)
	case timeoutReq:
		s.handleTimeout(r.choiceID)
	case endReq:
		s.teardown(r.reason)
		close(r.reply)
	case snapshotReq:
		r.reply <- s.snapshot()
	}
}

func (s *Session) memberByConn(conn Conn) *member {
	for _, m := range s.members {
		if m.conn != nil && m.conn.ID() == conn.ID() {
			return m
		}
	}
	return nil
}

func (s *Session) connected() []*member {
	var out []*member
	for _, m := range s.members {
		if m.connected {
			out = append(out, m)
		}
	}
	return out
}

func (s *Session) handleJoin(conn Conn, name string, host bool) error {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLen {
		return game.NewError(game.CodeProtocol, "name must be 1-%d characters", maxNameLen)
	}
	if s.status != StatusLobby {
		return game.NewError(game.CodeAlreadyStarted, "game already started")
	}
	if len(s.members) >= s.board.MaxPlayers() {
		return game.NewError(game.CodeLobbyFull, "lobby is full")
	}
	for _, m := range s.members {
		if strings.EqualFold(m.name, name) {
			return game.NewError(game.CodeNameTaken, "name %q is taken", name)
		}
	}

	m := &member{
		conn:      conn,
		playerID:  uuid.NewString(),
		name:      name,
		pawn:      s.freePawn(),
		connected: true,
	}
	s.members = append(s.members, m)

	if host || s.hostID == "" {
		s.hostID = m.playerID
		s.sendTo(m, game.EventNewGame, map[string]any{
			"lobbyId":  s.ID,
			"playerId": m.playerID,
			"pawn":     m.pawn,
			"board":    s.board,
			"pawns":    s.board.Pawns,
		})
	} else {
		snap := JoinSnapshot{Snapshot: s.snapshot(), Board: s.board, Pawns: s.board.Pawns}
		s.sendTo(m, game.EventJoinGame, map[string]any{
			"playerId":      m.playerID,
			"pawn":          m.pawn,
			"lobbySnapshot": snap,
		})
	}
	s.broadcastExcept(m, game.EventNewPlayer, PlayerSummary{PlayerID: m.playerID, Name: m.name, Pawn: m.pawn, Connected: true})

	s.log.Info("player joined", "player", m.playerID, "name", m.name, "host", s.hostID == m.playerID)
	return nil
}

func (s *Session) freePawn() string {
	used := make(map[string]bool, len(s.members))
	for _, m := range s.members {
		used[m.pawn] = true
	}
	for _, p := range s.board.Pawns {
		if !used[p.Name] {
			return p.Name
		}
	}
	return ""
}

func (s *Session) handleAction(conn Conn, env Envelope) {
	m := s.memberByConn(conn)
	if m == nil || !m.connected {
		s.reject(conn, game.NewError(game.CodeUnknownSession, "not in this lobby"))
		return
	}

	var events []game.Event
	var err error

	switch env.Type {
	case MsgGameStart:
		err = s.start(m)
	case MsgGameEnd:
		if m.playerID != s.hostID {
			err = game.NewError(game.CodeNotHost, "only the host can end the game")
			break
		}
		s.teardown("host ended the game")
		return
	case MsgLeaveGame:
		s.handleLeave(conn)
		return
	case MsgRequestRoll, MsgFinishTurn, MsgChoiceResponse,
		MsgRequestUpgrade, MsgRequestMortgage, MsgRequestUnmortgage:
		events, err = s.gameAction(m, env)
	default:
		err = game.NewError(game.CodeUnknownMessage, "unknown message type %q", env.Type)
	}

	if err != nil {
		if game.CodeOf(err) == game.CodeInternal {
			s.fault(err)
			return
		}
		s.reject(conn, err)
		return
	}
	s.dispatch(events)
	s.afterEngine()
}

func (s *Session) start(m *member) error {
	if m.playerID != s.hostID {
		return game.NewError(game.CodeNotHost, "only the host can start the game")
	}
	if s.status != StatusLobby {
		return game.NewError(game.CodeAlreadyStarted, "game already started")
	}
	var seats []game.Seat
	for _, mm := range s.connected() {
		seats = append(seats, game.Seat{ID: mm.playerID, Name: mm.name, Pawn: mm.pawn})
	}
	if len(seats) < s.rules.MinPlayers {
		return game.NewError(game.CodeNotEnoughPlayers, "need at least %d players", s.rules.MinPlayers)
	}
	eng, err := game.NewEngine(s.board, s.rules, s.rng, seats)
	if err != nil {
		return err
	}
	s.engine = eng
	s.status = StatusInProgress
	s.startedAt = time.Now()
	s.log.Info("game started", "players", len(seats))
	s.dispatch(eng.Start())
	return nil
}

func (s *Session) gameAction(m *member, env Envelope) ([]game.Event, error) {
	if s.status != StatusInProgress {
		return nil, game.NewError(game.CodeInvalidState, "game is not in progress")
	}
	switch env.Type {
	case MsgRequestRoll:
		return s.engine.Roll(m.playerID)
	case MsgFinishTurn:
		return s.engine.FinishTurn(m.playerID)
	case MsgChoiceResponse:
		var resp game.Response
		if err := env.DecodeData(&resp); err != nil {
			return nil, err
		}
		resp.Decision = strings.ToUpper(strings.TrimSpace(resp.Decision))
		return s.engine.Respond(m.playerID, resp)
	}

	var p PropertyPayload
	if err := env.DecodeData(&p); err != nil {
		return nil, err
	}
	if p.PropertyID == nil {
		return nil, game.NewError(game.CodeProtocol, "propertyId is required")
	}
	switch env.Type {
	case MsgRequestUpgrade:
		return s.engine.Upgrade(m.playerID, *p.PropertyID)
	case MsgRequestMortgage:
		return s.engine.Mortgage(m.playerID, *p.PropertyID)
	default:
		return s.engine.Unmortgage(m.playerID, *p.PropertyID)
	}
}

func (s *Session) handleTimeout(choiceID string) {
	if s.status != StatusInProgress {
		return
	}
	pending := s.engine.Pending()
	if pending == nil || pending.ID != choiceID {
		return
	}
	kind := pending.Kind
	events, err := s.engine.Timeout(choiceID)
	if err != nil {
		if game.CodeOf(err) == game.CodeInternal {
			s.fault(err)
		}
		return
	}
	metrics.ChoiceTimeouts.WithLabelValues(string(kind)).Inc()
	s.log.Info("choice timed out", "choice", choiceID, "kind", kind)
	s.dispatch(events)
	s.afterEngine()
}

func (s *Session) handleLeave(conn Conn) {
	m := s.memberByConn(conn)
	if m == nil || !m.connected {
		return
	}
	m.connected = false
	m.conn = nil
	s.log.Info("player left", "player", m.playerID)

	if s.status == StatusLobby || s.status == StatusFinished {
		for i, mm := range s.members {
			if mm == m {
				s.members = append(s.members[:i], s.members[i+1:]...)
				break
			}
		}
	}

	if m.playerID == s.hostID {
		s.hostID = ""
		if rest := s.connected(); len(rest) > 0 {
			s.hostID = rest[0].playerID
		}
	}

	if len(s.connected()) == 0 {
		if s.status == StatusInProgress {
			if events, err := s.engine.Disconnect(m.playerID); err == nil {
				s.dispatch(events)
			}
			s.afterEngine()
		}
		s.teardown("")
		return
	}

	s.broadcast(game.EventPlayerLeft, map[string]any{"playerId": m.playerID, "hostId": s.hostID})

	if s.status == StatusInProgress {
		events, err := s.engine.Disconnect(m.playerID)
		if err != nil {
			s.fault(err)
			return
		}
		s.dispatch(events)
		s.afterEngine()
	}
}

// afterEngine re-arms the choice timer and records a finished game.
func (s *Session) afterEngine() {
	if s.engine == nil || s.closed {
		return
	}
	s.stopTimer()
	if s.engine.Finished() {
		if s.status == StatusInProgress {
			s.finish()
		}
		return
	}
	c := s.engine.Pending()
	if c == nil || c.Deadline.IsZero() {
		return
	}
	id := c.ID
	s.timer = time.AfterFunc(time.Until(c.Deadline), func() {
		s.enqueue(timeoutReq{choiceID: id})
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) finish() {
	s.status = StatusFinished
	s.finishedAt = time.Now()
	reason := s.engine.OverReason()
	metrics.GamesFinished.WithLabelValues(reason).Inc()
	s.log.Info("game over", "winner", s.engine.Winner(), "reason", reason, "turns", s.engine.Turn())
	s.saveResult(reason)
}

func (s *Session) saveResult(reason string) {
	if s.store == nil || s.engine == nil {
		return
	}
	rec := s.record(reason)
	store := s.store
	log := s.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := store.SaveGame(ctx, rec); err != nil {
			log.Error("save game failed", "error", err)
		}
	}()
}

func (s *Session) record(reason string) *domain.GameRecord {
	standings := s.engine.Standings()
	winner := s.engine.Winner()
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if (a.PlayerID == winner) != (b.PlayerID == winner) {
			return a.PlayerID == winner
		}
		if a.Bankrupt != b.Bankrupt {
			return !a.Bankrupt
		}
		return a.NetWorth > b.NetWorth
	})

	rec := &domain.GameRecord{
		LobbyID:    s.ID,
		Reason:     reason,
		Turns:      s.engine.Turn(),
		StartedAt:  s.startedAt,
		FinishedAt: time.Now(),
	}
	for i, st := range standings {
		pawn := ""
		if p, ok := s.engine.Player(st.PlayerID); ok {
			pawn = p.Pawn
		}
		rec.Players = append(rec.Players, domain.GameRecordPlayer{
			PlayerID: st.PlayerID, Name: st.Name, Pawn: pawn, Place: i + 1,
			Balance: st.Balance, NetWorth: st.NetWorth, Bankrupt: st.Bankrupt,
		})
		if st.PlayerID == winner {
			id, name := st.PlayerID, st.Name
			rec.WinnerID, rec.WinnerName = &id, &name
		}
	}
	return rec
}

// fault handles an invariant violation: players get an INTERNAL error and
// the session shuts down.
func (s *Session) fault(err error) {
	s.log.Error("session fault", "error", err)
	s.broadcast(game.EventError, ErrorPayload{Code: game.CodeInternal, Message: "internal error"})
	s.teardown("internal error")
}

// teardown stops the session. A non-empty reason is sent as GAME_END.
func (s *Session) teardown(reason string) {
	if s.closed {
		return
	}
	if reason != "" {
		s.broadcast(game.EventGameEnd, map[string]any{"reason": reason})
		if s.status == StatusInProgress {
			metrics.GamesFinished.WithLabelValues(reason).Inc()
		}
	}
	s.stopTimer()
	s.status = StatusFinished
	s.closed = true
	close(s.done)
	if s.onClose != nil {
		s.onClose(s)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		LobbyID:    s.ID,
		Status:     s.status,
		HostID:     s.hostID,
		MaxPlayers: s.board.MaxPlayers(),
		CreatedAt:  s.createdAt,
		Players:    []PlayerSummary{},
	}
	if !s.finishedAt.IsZero() {
		at := s.finishedAt
		snap.FinishedAt = &at
	}
	for _, m := range s.members {
		ps := PlayerSummary{PlayerID: m.playerID, Name: m.name, Pawn: m.pawn, Connected: m.connected}
		if s.engine != nil {
			if p, ok := s.engine.Player(m.playerID); ok {
				bal := p.Balance
				ps.Balance = &bal
				ps.Bankrupt = p.Bankrupt
			}
		}
		snap.Players = append(snap.Players, ps)
	}
	if s.engine != nil && !s.engine.Finished() {
		snap.Turn = s.engine.Turn()
		snap.CurrentTurn = s.engine.Current()
	}
	return snap
}

// dispatch delivers engine events to connected members, honouring each
// event's recipients and private payloads.
func (s *Session) dispatch(events []game.Event) {
	for _, ev := range events {
		for _, m := range s.members {
			if !m.connected {
				continue
			}
			payload, ok := ev.PayloadFor(m.playerID)
			if !ok {
				continue
			}
			s.sendTo(m, ev.Kind, payload)
		}
	}
}

func (s *Session) broadcast(kind game.EventKind, payload any) {
	s.broadcastExcept(nil, kind, payload)
}

func (s *Session) broadcastExcept(skip *member, kind game.EventKind, payload any) {
	data, err := Encode(kind, payload)
	if err != nil {
		s.log.Error("encode failed", "type", kind, "error", err)
		return
	}
	for _, m := range s.members {
		if m == skip || !m.connected {
			continue
		}
		s.deliver(m, kind, data)
	}
}

func (s *Session) sendTo(m *member, kind game.EventKind, payload any) {
	data, err := Encode(kind, payload)
	if err != nil {
		s.log.Error("encode failed", "type", kind, "error", err)
		return
	}
	s.deliver(m, kind, data)
}

func (s *Session) deliver(m *member, kind game.EventKind, data []byte) {
	if m.conn == nil {
		return
	}
	if !m.conn.Send(data) {
		metrics.DroppedMessages.Inc()
		s.log.Warn("dropped message", "player", m.playerID, "type", kind)
	}
}

func (s *Session) reject(conn Conn, err error) {
	metrics.Errors.WithLabelValues(string(game.CodeOf(err))).Inc()
	s.log.Debug("rejected message", "conn", conn.ID(), "error", err)
	conn.Send(ErrorFrame(err))
}
