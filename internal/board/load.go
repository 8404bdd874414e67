package board

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed default_board.json
var defaultBoardJSON []byte

//go:embed default_pawns.json
var defaultPawnsJSON []byte

type pawnSet struct {
	Pawns []Pawn `json:"pawns"`
}

// Load reads the board and pawn files. Empty paths select the embedded
// defaults. The result is validated and must be treated as read-only.
func Load(boardPath, pawnsPath string) (*Board, error) {
	boardData := defaultBoardJSON
	if boardPath != "" {
		data, err := os.ReadFile(boardPath)
		if err != nil {
			return nil, fmt.Errorf("read board: %w", err)
		}
		boardData = data
	}

	pawnData := defaultPawnsJSON
	if pawnsPath != "" {
		data, err := os.ReadFile(pawnsPath)
		if err != nil {
			return nil, fmt.Errorf("read pawns: %w", err)
		}
		pawnData = data
	}

	return Parse(boardData, pawnData)
}

// Parse decodes and validates raw board and pawn JSON.
func Parse(boardData, pawnData []byte) (*Board, error) {
	var b Board
	if err := json.Unmarshal(boardData, &b); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}

	var ps pawnSet
	if err := json.Unmarshal(pawnData, &ps); err != nil {
		return nil, fmt.Errorf("decode pawns: %w", err)
	}
	b.Pawns = ps.Pawns

	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid board: %w", err)
	}
	return &b, nil
}

// Default returns the embedded board. It panics only if the embedded files are broken.
func Default() *Board {
	b, err := Parse(defaultBoardJSON, defaultPawnsJSON)
	if err != nil {
		panic(err)
	}
	return b
}
