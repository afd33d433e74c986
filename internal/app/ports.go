package app

import (
	"context"

	"github.com/jaminalder/tictactoe-arena/internal/domain"
	"github.com/jaminalder/tictactoe-arena/internal/history"
	"github.com/jaminalder/tictactoe-arena/internal/leaderboard"
	"github.com/jaminalder/tictactoe-arena/internal/ledger"
)

// Ledger gates matches on payment and books results.
type Ledger interface {
	PayToPlay(ctx context.Context, player string, amount uint64) error
	HasPaid(ctx context.Context, player string) (bool, error)
	CanPlay(ctx context.Context, player string) (bool, error)
	RecordResult(ctx context.Context, player string, outcome domain.Outcome) (ledger.Result, error)
	Stats(ctx context.Context, player string) (ledger.Stats, error)
}

// Leaderboard receives every recorded result.
type Leaderboard interface {
	Sync(ctx context.Context, u leaderboard.Update) error
}

// Archive stores finished matches.
type Archive interface {
	Append(ctx context.Context, r history.Record) error
}

// Opponent plays the AI's turn.
type Opponent interface {
	Move(g domain.Game, score float64) domain.Game
}
