package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"monopoly_server/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration-style test: runs only if DATABASE_URL env is set.
func TestGameHistoryIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	schema, err := os.ReadFile("../migrations/001_game_history.sql")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewGameHistoryRepository(pool)
	winner := uuid.NewString()
	name := "Alice"
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &domain.GameRecord{
		LobbyID:    "TEST01",
		WinnerID:   &winner,
		WinnerName: &name,
		Reason:     "last player standing",
		Turns:      42,
		Players: []domain.GameRecordPlayer{
			{PlayerID: winner, Name: name, Pawn: "hat", Place: 1, Balance: 2100, NetWorth: 3900},
			{PlayerID: uuid.NewString(), Name: "Bob", Pawn: "car", Place: 2, Bankrupt: true},
		},
		StartedAt:  now.Add(-time.Hour),
		FinishedAt: now,
	}
	if err := repo.SaveGame(ctx, rec); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	if rec.ID == 0 || rec.CreatedAt.IsZero() {
		t.Fatalf("id/created_at not filled: %+v", rec)
	}
	defer pool.Exec(ctx, `DELETE FROM game_history WHERE id = $1`, rec.ID)

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.LobbyID != rec.LobbyID || got.Turns != 42 || len(got.Players) != 2 {
		t.Errorf("got %+v", got)
	}
	if got.WinnerID == nil || *got.WinnerID != winner {
		t.Errorf("winner = %v", got.WinnerID)
	}
	if !got.Players[1].Bankrupt || got.Duration() != time.Hour {
		t.Errorf("players = %+v, duration = %s", got.Players, got.Duration())
	}

	recent, err := repo.ListRecent(ctx, 5)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) == 0 || len(recent) > 5 {
		t.Fatalf("recent = %d rows", len(recent))
	}
}
