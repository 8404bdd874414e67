package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"monopoly_server/internal/board"
	"monopoly_server/internal/domain"
	"monopoly_server/internal/game"
	"monopoly_server/internal/logger"
)

func init() {
	logger.InitWriter(io.Discard, "error", false)
}

type fakeConn struct {
	id     string
	frames chan []byte
}

func newConn(id string) *fakeConn {
	return &fakeConn{id: id, frames: make(chan []byte, 256)}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) bool {
	select {
	case c.frames <- msg:
		return true
	default:
		return false
	}
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// expect reads frames until one of the given type arrives.
func expect(t *testing.T, c *fakeConn, kind game.EventKind) frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.frames:
			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				t.Fatalf("bad frame %s: %v", raw, err)
			}
			if f.Type == string(kind) {
				return f
			}
		case <-deadline:
			t.Fatalf("%s: no %s frame", c.id, kind)
			return frame{}
		}
	}
}

func expectError(t *testing.T, c *fakeConn, code game.Code) {
	t.Helper()
	f := expect(t, c, game.EventError)
	var p ErrorPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Code != code {
		t.Fatalf("error code = %s (%s), want %s", p.Code, p.Message, code)
	}
}

func send(r *Registry, c *fakeConn, kind string, data any) {
	raw, _ := json.Marshal(map[string]any{"type": kind, "data": data})
	r.RouteMessage(c, raw)
}

type fixedDice struct{ a, b int }

func (d fixedDice) Roll() (int, int) { return d.a, d.b }
func (d fixedDice) Intn(n int) int   { return 0 }

type memStore struct {
	mu   sync.Mutex
	recs []*domain.GameRecord
	done chan struct{}
}

func (m *memStore) SaveGame(ctx context.Context, rec *domain.GameRecord) error {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	close(m.done)
	return nil
}

func newRegistry(rules game.Rules, store ResultStore) *Registry {
	return NewRegistry(board.Default(), rules, fixedDice{2, 3}, store)
}

// lobbyWith creates a lobby hosted by "host" and joined by the given names.
func lobbyWith(t *testing.T, r *Registry, names ...string) (string, *fakeConn, []*fakeConn) {
	t.Helper()
	host := newConn("host")
	id, err := r.CreateLobby(host, "Host")
	if err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}
	var guests []*fakeConn
	for _, n := range names {
		c := newConn(n)
		if err := r.JoinLobby(c, id, n); err != nil {
			t.Fatalf("JoinLobby(%s): %v", n, err)
		}
		guests = append(guests, c)
	}
	return id, host, guests
}

func TestLobbyCode(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	for i := 0; i < 50; i++ {
		if code := randomCode(); !re.MatchString(code) {
			t.Fatalf("bad code %q", code)
		}
	}
}

func TestCreateRetriesOnCollision(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	r.newCode = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}
	first, err := r.CreateLobby(newConn("a"), "A")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.CreateLobby(newConn("b"), "B")
	if err != nil {
		t.Fatal(err)
	}
	if first != "AAAAAA" || second != "BBBBBB" {
		t.Fatalf("codes = %s, %s", first, second)
	}
}

func TestCreateAndJoin(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	host := newConn("host")
	send(r, host, MsgGameCreate, CreatePayload{HostName: "Alice"})

	f := expect(t, host, game.EventNewGame)
	var created struct {
		LobbyID  string `json:"lobbyId"`
		PlayerID string `json:"playerId"`
		Pawn     string `json:"pawn"`
	}
	if err := json.Unmarshal(f.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.LobbyID == "" || created.PlayerID == "" || created.Pawn == "" {
		t.Fatalf("NEW_GAME = %s", f.Data)
	}

	guest := newConn("guest")
	send(r, guest, MsgRequestJoin, JoinPayload{LobbyID: created.LobbyID, Name: "Bob"})

	f = expect(t, guest, game.EventJoinGame)
	var joined struct {
		PlayerID string `json:"playerId"`
		Pawn     string `json:"pawn"`
		Lobby    struct {
			LobbyID string            `json:"lobbyId"`
			HostID  string            `json:"hostId"`
			Players []PlayerSummary   `json:"players"`
			Board   *board.Board      `json:"board"`
			Pawns   []json.RawMessage `json:"pawns"`
		} `json:"lobbySnapshot"`
	}
	if err := json.Unmarshal(f.Data, &joined); err != nil {
		t.Fatal(err)
	}
	if joined.Pawn == created.Pawn {
		t.Errorf("both players got pawn %s", joined.Pawn)
	}
	lobby := joined.Lobby
	if lobby.LobbyID != created.LobbyID || len(lobby.Players) != 2 || lobby.HostID != created.PlayerID {
		t.Errorf("lobby snapshot = %+v", lobby)
	}
	if lobby.Board == nil || len(lobby.Pawns) != board.Default().MaxPlayers() {
		t.Errorf("JOIN_GAME missing board or pawns: %s", f.Data)
	}
	expect(t, host, game.EventNewPlayer)

	snap, err := r.Get(created.LobbyID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != StatusLobby || len(snap.Players) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestJoinErrors(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	id, host, _ := lobbyWith(t, r, "Bob")

	tests := []struct {
		name  string
		conn  Conn
		lobby string
		user  string
		want  game.Code
	}{
		{"unknown lobby", newConn("x1"), "ZZZZZZ", "Carl", game.CodeNotFound},
		{"name taken", newConn("x2"), id, "bob", game.CodeNameTaken},
		{"empty name", newConn("x3"), id, "  ", game.CodeProtocol},
		{"long name", newConn("x4"), id, strings.Repeat("n", maxNameLen+1), game.CodeProtocol},
		{"already in lobby", host, id, "Dave", game.CodeAlreadyInLobby},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.JoinLobby(tt.conn, tt.lobby, tt.user)
			if got := game.CodeOf(err); got != tt.want {
				t.Fatalf("code = %s (%v), want %s", got, err, tt.want)
			}
		})
	}
}

func TestJoinIsCaseInsensitive(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	r.newCode = func() string { return "ABC123" }
	if _, err := r.CreateLobby(newConn("h"), "Host"); err != nil {
		t.Fatal(err)
	}
	if err := r.JoinLobby(newConn("g"), "abc123", "Guest"); err != nil {
		t.Fatalf("JoinLobby: %v", err)
	}
}

func TestLobbyFull(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	max := board.Default().MaxPlayers()
	var names []string
	for i := 1; i < max; i++ {
		names = append(names, fmt.Sprintf("p%d", i))
	}
	id, _, _ := lobbyWith(t, r, names...)

	err := r.JoinLobby(newConn("late"), id, "Late")
	if game.CodeOf(err) != game.CodeLobbyFull {
		t.Fatalf("err = %v", err)
	}
}

func TestStartGuards(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	_, host, _ := lobbyWith(t, r)

	send(r, host, MsgGameStart, nil)
	expectError(t, host, game.CodeNotEnoughPlayers)

	guest := newConn("guest")
	snap := r.List()[0]
	if err := r.JoinLobby(guest, snap.LobbyID, "Guest"); err != nil {
		t.Fatal(err)
	}
	send(r, guest, MsgGameStart, nil)
	expectError(t, guest, game.CodeNotHost)

	send(r, host, MsgGameStart, nil)
	expect(t, guest, game.EventGameStart)

	late := newConn("late")
	if err := r.JoinLobby(late, snap.LobbyID, "Late"); game.CodeOf(err) != game.CodeAlreadyStarted {
		t.Fatalf("join after start: %v", err)
	}
}

func TestRoutingErrors(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	c := newConn("lonely")

	r.RouteMessage(c, []byte("{not json"))
	expectError(t, c, game.CodeProtocol)

	send(r, c, "DANCE", nil)
	expectError(t, c, game.CodeUnknownMessage)

	send(r, c, MsgRequestRoll, nil)
	expectError(t, c, game.CodeUnknownSession)

	send(r, c, MsgRequestJoin, nil)
	expectError(t, c, game.CodeProtocol)
}

func TestGameFlowOverSession(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	_, host, guests := lobbyWith(t, r, "Bob")
	guest := guests[0]

	send(r, host, MsgGameStart, nil)
	expect(t, host, game.EventNextTurn)
	expect(t, guest, game.EventNextTurn)

	send(r, guest, MsgRequestRoll, nil)
	expectError(t, guest, game.CodeNotYourTurn)

	send(r, host, MsgRequestRoll, nil)
	expect(t, guest, game.EventSetPosition)
	f := expect(t, host, game.EventChoice)
	var choice game.ChoicePayload
	if err := json.Unmarshal(f.Data, &choice); err != nil {
		t.Fatal(err)
	}
	if choice.Kind != game.ChoiceBuyOrAuction {
		t.Fatalf("choice = %+v", choice)
	}

	send(r, host, MsgChoiceResponse, game.Response{ChoiceID: choice.ChoiceID, Decision: "buy"})
	expect(t, guest, game.EventPropertyTransfer)

	send(r, host, MsgFinishTurn, nil)
	f = expect(t, guest, game.EventNextTurn)
	var next game.NextTurnPayload
	if err := json.Unmarshal(f.Data, &next); err != nil {
		t.Fatal(err)
	}
	if next.Turn != 2 {
		t.Errorf("turn = %d", next.Turn)
	}

	send(r, guest, MsgRequestUpgrade, map[string]any{})
	expectError(t, guest, game.CodeProtocol)
}

func TestChoiceIsPrivate(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	_, host, guests := lobbyWith(t, r, "Bob")
	guest := guests[0]

	send(r, host, MsgGameStart, nil)
	send(r, host, MsgRequestRoll, nil)
	expect(t, host, game.EventChoice)
	expect(t, guest, game.EventSetPosition)

	send(r, host, MsgFinishTurn, nil)
	expectError(t, host, game.CodeInvalidState)

	select {
	case raw := <-guest.frames:
		var f frame
		_ = json.Unmarshal(raw, &f)
		if f.Type == string(game.EventChoice) {
			t.Fatal("guest received the host's choice")
		}
	default:
	}
}

func TestChoiceTimeoutAppliesDefault(t *testing.T) {
	rules := game.DefaultRules()
	rules.ChoiceTimeout = 30 * time.Millisecond
	r := newRegistry(rules, nil)
	_, host, _ := lobbyWith(t, r, "Bob")

	send(r, host, MsgGameStart, nil)
	send(r, host, MsgRequestRoll, nil)
	f := expect(t, host, game.EventChoice)
	var choice game.ChoicePayload
	if err := json.Unmarshal(f.Data, &choice); err != nil {
		t.Fatal(err)
	}
	if choice.Deadline == 0 {
		t.Error("choice without deadline")
	}

	time.Sleep(150 * time.Millisecond)
	send(r, host, MsgChoiceResponse, game.Response{ChoiceID: choice.ChoiceID, Decision: game.DecisionBuy})
	expectError(t, host, game.CodeNotAwaited)

	// PASS leaves the turn waiting to be finished.
	send(r, host, MsgFinishTurn, nil)
	expect(t, host, game.EventNextTurn)
}

func TestHostLeavesInLobby(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	id, host, guests := lobbyWith(t, r, "Bob", "Cleo")

	snap, _ := r.Get(id)
	bobID := snap.Players[1].PlayerID

	send(r, host, MsgLeaveGame, nil)
	f := expect(t, guests[1], game.EventPlayerLeft)
	var left struct {
		PlayerID string `json:"playerId"`
		HostID   string `json:"hostId"`
	}
	if err := json.Unmarshal(f.Data, &left); err != nil {
		t.Fatal(err)
	}
	if left.HostID != bobID {
		t.Fatalf("new host = %s, want %s", left.HostID, bobID)
	}

	snap, _ = r.Get(id)
	if len(snap.Players) != 2 || snap.HostID != bobID {
		t.Errorf("snapshot = %+v", snap)
	}

	// the old host is free to open a new lobby
	if _, err := r.CreateLobby(host, "Again"); err != nil {
		t.Errorf("CreateLobby after leave: %v", err)
	}
}

func TestLastPlayerLeavingRemovesLobby(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	id, host, _ := lobbyWith(t, r)

	r.RemoveConnection(host)
	waitFor(t, func() bool { return r.Count() == 0 })
	if _, err := r.Get(id); game.CodeOf(err) != game.CodeNotFound {
		t.Fatalf("Get after removal: %v", err)
	}
}

func TestDisconnectMidGameFinishesAndSaves(t *testing.T) {
	store := &memStore{done: make(chan struct{})}
	r := newRegistry(game.DefaultRules(), store)
	id, host, guests := lobbyWith(t, r, "Bob")

	send(r, host, MsgGameStart, nil)
	expect(t, host, game.EventNextTurn)

	r.RemoveConnection(guests[0])
	expect(t, host, game.EventPlayerLeft)
	expect(t, host, game.EventGameOver)

	select {
	case <-store.done:
	case <-time.After(2 * time.Second):
		t.Fatal("game record not saved")
	}
	store.mu.Lock()
	rec := store.recs[0]
	store.mu.Unlock()
	if rec.LobbyID != id || rec.WinnerName == nil || *rec.WinnerName != "Host" {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Players) != 2 || rec.Players[0].Place != 1 || !rec.Players[1].Bankrupt {
		t.Errorf("standings = %+v", rec.Players)
	}

	snap, err := r.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != StatusFinished {
		t.Errorf("status = %s", snap.Status)
	}
}

func TestEndLobby(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	id, host, guests := lobbyWith(t, r, "Bob")

	send(r, guests[0], MsgGameEnd, nil)
	expectError(t, guests[0], game.CodeNotHost)

	if err := r.End(id, "maintenance"); err != nil {
		t.Fatal(err)
	}
	f := expect(t, host, game.EventGameEnd)
	var end struct{ Reason string }
	_ = json.Unmarshal(f.Data, &end)
	if end.Reason != "maintenance" {
		t.Errorf("reason = %q", end.Reason)
	}
	if r.Count() != 0 {
		t.Errorf("count = %d", r.Count())
	}
	if err := r.End(id, "again"); game.CodeOf(err) != game.CodeNotFound {
		t.Errorf("second End: %v", err)
	}
}

func TestCloseRefusesNewLobbies(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	lobbyWith(t, r, "Bob")
	r.Close()
	if r.Count() != 0 {
		t.Fatalf("count after close = %d", r.Count())
	}
	_, err := r.CreateLobby(newConn("new"), "New")
	if !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("create after close: %v", err)
	}
}

func TestCleanupStaleLobbies(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	_, host, _ := lobbyWith(t, r)
	r.cleanupStale(0, time.Hour)
	expect(t, host, game.EventGameEnd)
	if r.Count() != 0 {
		t.Fatalf("count = %d", r.Count())
	}
}

func TestCleanupFinishedGames(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	id, host, guests := lobbyWith(t, r, "Bob")
	send(r, host, MsgGameStart, nil)
	expect(t, host, game.EventNextTurn)

	r.cleanupStale(0, 0)
	if r.Count() != 1 {
		t.Fatal("game in progress was reaped")
	}

	r.RemoveConnection(guests[0])
	expect(t, host, game.EventGameOver)
	snap, err := r.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != StatusFinished || snap.FinishedAt == nil {
		t.Fatalf("snapshot = %+v", snap)
	}

	r.cleanupStale(time.Hour, time.Hour)
	if r.Count() != 1 {
		t.Fatal("finished game reaped inside grace period")
	}
	r.cleanupStale(time.Hour, 0)
	expect(t, host, game.EventGameEnd)
	waitFor(t, func() bool { return r.Count() == 0 })
}

func TestListShowsOpenLobbiesOnly(t *testing.T) {
	r := newRegistry(game.DefaultRules(), nil)
	_, host, _ := lobbyWith(t, r, "Bob")
	open := newConn("open")
	openID, err := r.CreateLobby(open, "Olga")
	if err != nil {
		t.Fatal(err)
	}

	send(r, host, MsgGameStart, nil)
	expect(t, host, game.EventGameStart)

	list := r.List()
	if len(list) != 1 || list[0].LobbyID != openID {
		t.Fatalf("List = %+v", list)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type brokenDice struct{}

func (brokenDice) Roll() (int, int) { panic("dice jammed") }
func (brokenDice) Intn(n int) int   { return 0 }

func TestPanicTearsDownOnlyThatLobby(t *testing.T) {
	r := NewRegistry(board.Default(), game.DefaultRules(), brokenDice{}, nil)
	id, host, guests := lobbyWith(t, r, "Bob")

	other := newConn("other")
	otherID, err := r.CreateLobby(other, "Carol")
	if err != nil {
		t.Fatal(err)
	}

	send(r, host, MsgGameStart, nil)
	expect(t, host, game.EventNextTurn)
	send(r, host, MsgRequestRoll, nil)
	expectError(t, host, game.CodeInternal)
	expectError(t, guests[0], game.CodeInternal)
	expect(t, guests[0], game.EventGameEnd)

	waitFor(t, func() bool { return r.Count() == 1 })
	if _, err := r.Get(id); game.CodeOf(err) != game.CodeNotFound {
		t.Fatalf("faulted lobby still present: %v", err)
	}
	if _, err := r.Get(otherID); err != nil {
		t.Fatalf("other lobby affected: %v", err)
	}
	send(r, host, MsgRequestRoll, nil)
	expectError(t, host, game.CodeUnknownSession)
}
