package repository

import (
	"context"
	"encoding/json"

	"monopoly_server/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxHistoryLimit = 100

type GameHistoryRepository struct {
	db *pgxpool.Pool
}

func NewGameHistoryRepository(db *pgxpool.Pool) *GameHistoryRepository {
	return &GameHistoryRepository{db: db}
}

// SaveGame stores a finished game and fills in its id and created_at.
func (r *GameHistoryRepository) SaveGame(ctx context.Context, rec *domain.GameRecord) error {
	playersJSON, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}

	return r.db.QueryRow(ctx,
		`INSERT INTO game_history
			(lobby_id, winner_id, winner_name, reason, turns, players, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		rec.LobbyID,
		rec.WinnerID,
		rec.WinnerName,
		rec.Reason,
		rec.Turns,
		playersJSON,
		rec.StartedAt,
		rec.FinishedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// ListRecent returns the most recently finished games.
func (r *GameHistoryRepository) ListRecent(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, lobby_id, winner_id, winner_name, reason, turns, players,
				started_at, finished_at, created_at
		 FROM game_history
		 ORDER BY finished_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetByID returns one stored game, or pgx.ErrNoRows.
func (r *GameHistoryRepository) GetByID(ctx context.Context, id int64) (*domain.GameRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, lobby_id, winner_id, winner_name, reason, turns, players,
				started_at, finished_at, created_at
		 FROM game_history
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := r.scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, pgx.ErrNoRows
	}
	return recs[0], nil
}

func (r *GameHistoryRepository) scanRows(rows pgx.Rows) ([]*domain.GameRecord, error) {
	result := []*domain.GameRecord{}

	for rows.Next() {
		var (
			rec         domain.GameRecord
			playersJSON []byte
		)

		if err := rows.Scan(
			&rec.ID, &rec.LobbyID, &rec.WinnerID, &rec.WinnerName, &rec.Reason,
			&rec.Turns, &playersJSON, &rec.StartedAt, &rec.FinishedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		if len(playersJSON) > 0 {
			if err := json.Unmarshal(playersJSON, &rec.Players); err != nil {
				return nil, err
			}
		}

		result = append(result, &rec)
	}

	return result, rows.Err()
}
