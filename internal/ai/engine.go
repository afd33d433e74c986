// Package ai picks moves for the computer opponent.
//
// The opponent is a short decision tree (win, block, center, corner, any)
// that deliberately plays a random move some of the time. How often it
// blunders grows with the human's difficulty score, so stronger players face
// a weaker opponent.
package ai

import (
	"math/rand/v2"

	"github.com/jaminalder/tictactoe-arena/internal/domain"
)

// Rand is the randomness the engine consumes. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Policy maps a difficulty score to the probability of a deliberate mistake.
type Policy struct {
	// Scores strictly above HighThreshold blunder at HighRate.
	HighThreshold float64
	HighRate      float64
	// Scores from MidThreshold up to HighThreshold blunder at MidRate.
	MidThreshold float64
	MidRate      float64
}

// DefaultPolicy is the tiering used by the hosted game.
var DefaultPolicy = Policy{
	HighThreshold: 100,
	HighRate:      0.4,
	MidThreshold:  50,
	MidRate:       0.2,
}

// FaultyRate returns the chance of a random move for score.
func (p Policy) FaultyRate(score float64) float64 {
	switch {
	case score > p.HighThreshold:
		return p.HighRate
	case score >= p.MidThreshold:
		return p.MidRate
	default:
		return 0
	}
}

var corners = [4]int{0, 2, 6, 8}

const center = 4

// Engine selects and applies AI moves.
type Engine struct {
	Policy Policy
	Rand   Rand
}

// New returns an engine using policy and r. A nil r uses the global source.
func New(policy Policy, r Rand) *Engine {
	if r == nil {
		r = globalRand{}
	}
	return &Engine{Policy: policy, Rand: r}
}

// Move plays the AI's turn in g. score is the human's difficulty score.
// It returns g unchanged if the game is over or it is not the AI's turn.
func (e *Engine) Move(g domain.Game, score float64) domain.Game {
	if g.Over || g.Turn != g.AI {
		return g
	}
	idx := e.Select(g.Board, g.AI, g.Player, score)
	if idx < 0 {
		return g
	}
	return g.AIMove(idx)
}

// Select returns the cell the AI would play on b, or -1 if b is full.
func (e *Engine) Select(b domain.Board, self, opponent domain.Cell, score float64) int {
	free := b.EmptyCells()
	if len(free) == 0 {
		return -1
	}
	if e.Rand.Float64() < e.Policy.FaultyRate(score) {
		return free[e.Rand.IntN(len(free))]
	}
	if idx := completing(b, free, self); idx >= 0 {
		return idx
	}
	if idx := completing(b, free, opponent); idx >= 0 {
		return idx
	}
	if b[center] == domain.Empty {
		return center
	}
	open := make([]int, 0, len(corners))
	for _, c := range corners {
		if b[c] == domain.Empty {
			open = append(open, c)
		}
	}
	if len(open) > 0 {
		return open[e.Rand.IntN(len(open))]
	}
	return free[e.Rand.IntN(len(free))]
}

// completing returns the first free cell where mark would complete a line.
func completing(b domain.Board, free []int, mark domain.Cell) int {
	for _, idx := range free {
		b[idx] = mark
		won := domain.Winner(b) == mark
		b[idx] = domain.Empty
		if won {
			return idx
		}
	}
	return -1
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }
