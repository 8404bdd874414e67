package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"monopoly_server/internal/board"
	"monopoly_server/internal/domain"
	"monopoly_server/internal/game"
	httpserver "monopoly_server/internal/http"
	"monopoly_server/internal/lobby"
	"monopoly_server/internal/logger"
	"monopoly_server/internal/repository"
)

func applyMigrationsToPool(t *testing.T, dbp *pgxpool.Pool) {
	t.Helper()
	migDir := filepath.Join("..", "migrations")
	files, err := os.ReadDir(migDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(migDir, name))
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		if _, err := dbp.Exec(context.Background(), string(b)); err != nil {
			t.Fatalf("apply migration %s: %v", name, err)
		}
	}
}

// startReader runs a single reader goroutine per connection to avoid
// concurrent ReadMessage calls.
func startReader(conn *websocket.Conn) chan map[string]json.RawMessage {
	out := make(chan map[string]json.RawMessage, 64)
	go func() {
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var obj map[string]json.RawMessage
			if json.Unmarshal(msg, &obj) == nil {
				out <- obj
			}
		}
	}()
	return out
}

func waitFor(t *testing.T, ch chan map[string]json.RawMessage, kind string) json.RawMessage {
	t.Helper()
	deadline := time.After(5 * time.Second)
	want := `"` + kind + `"`
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				t.Fatalf("connection closed waiting for %s", kind)
			}
			if string(m["type"]) == want {
				return m["data"]
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, kind string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": kind, "data": data}); err != nil {
		t.Fatalf("write %s: %v", kind, err)
	}
}

func TestE2E_GameIsRecorded(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	logger.InitWriter(io.Discard, "error", false)

	dbp, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer dbp.Close()

	applyMigrationsToPool(t, dbp)

	repo := repository.NewGameHistoryRepository(dbp)
	reg := lobby.NewRegistry(board.Default(), game.DefaultRules(), game.CryptoRandomizer{}, repo)
	defer reg.Close()

	// start server with real routes
	gin.SetMode(gin.TestMode)
	r := gin.New()
	httpserver.RegisterRoutes(r, httpserver.Deps{Registry: reg, History: repo, Version: "e2e"})
	ts := httptest.NewServer(r)
	defer ts.Close()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	d := websocket.DefaultDialer
	connA, _, err := d.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close()
	connB, _, err := d.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	chA := startReader(connA)
	chB := startReader(connB)

	send(t, connA, "GAME_CREATE", map[string]string{"hostName": "Alice"})
	var created struct {
		LobbyID string `json:"lobbyId"`
	}
	if err := json.Unmarshal(waitFor(t, chA, "NEW_GAME"), &created); err != nil {
		t.Fatal(err)
	}

	send(t, connB, "REQUEST_JOIN", map[string]string{"lobbyId": created.LobbyID, "name": "Bob"})
	waitFor(t, chB, "JOIN_GAME")

	send(t, connA, "GAME_START", nil)
	waitFor(t, chB, "GAME_START")

	// B forfeits, A wins
	send(t, connB, "LEAVE_GAME", nil)
	waitFor(t, chA, "GAME_OVER")

	var rec *domain.GameRecord
	deadline := time.Now().Add(5 * time.Second)
	for rec == nil && time.Now().Before(deadline) {
		recent, err := repo.ListRecent(context.Background(), 20)
		if err != nil {
			t.Fatalf("ListRecent: %v", err)
		}
		for _, g := range recent {
			if g.LobbyID == created.LobbyID {
				rec = g
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	if rec == nil {
		t.Fatal("finished game was not stored")
	}
	defer dbp.Exec(context.Background(), `DELETE FROM game_history WHERE id = $1`, rec.ID)

	if rec.WinnerName == nil || *rec.WinnerName != "Alice" || len(rec.Players) != 2 {
		t.Errorf("record = %+v", rec)
	}

	resp, err := http.Get(ts.URL + "/api/v1/history?limit=20")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var body struct {
		Games []domain.GameRecord `json:"games"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, g := range body.Games {
		found = found || g.ID == rec.ID
	}
	if !found {
		t.Error("stored game missing from /api/v1/history")
	}
}
