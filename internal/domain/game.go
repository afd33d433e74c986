package domain

import "errors"

// Cell represents a board cell state. X and O are the two player symbols.
type Cell uint8

const (
	Empty Cell = iota
	X
	O
)

// String returns "X", "O" or "" for an empty cell.
func (c Cell) String() string {
	switch c {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// Other returns the opposing symbol. Empty has no opponent.
func Other(c Cell) Cell {
	switch c {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// ParseCell maps "X"/"O" (any case) to a symbol; anything else is Empty.
func ParseCell(s string) Cell {
	switch s {
	case "X", "x":
		return X
	case "O", "o":
		return O
	default:
		return Empty
	}
}

// Board is a fixed 3x3 board stored row-major.
type Board [9]Cell

// Lines are the winning index triples in scan order: rows, columns, diagonals.
var Lines = [8][3]int{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

// Full reports whether every cell is occupied.
func (b Board) Full() bool {
	for _, c := range b {
		if c == Empty {
			return false
		}
	}
	return true
}

// EmptyCells returns the indices of empty cells in ascending order.
func (b Board) EmptyCells() []int {
	out := make([]int, 0, 9)
	for i, c := range b {
		if c == Empty {
			out = append(out, i)
		}
	}
	return out
}

// Winner returns the symbol on the first completed line, or Empty.
func Winner(b Board) Cell {
	for _, ln := range Lines {
		if b[ln[0]] != Empty && b[ln[0]] == b[ln[1]] && b[ln[0]] == b[ln[2]] {
			return b[ln[0]]
		}
	}
	return Empty
}

// IsDraw reports a full board with no completed line.
func IsDraw(b Board) bool {
	return b.Full() && Winner(b) == Empty
}

// Outcome is the result of a finished match from the human's point of view.
type Outcome string

const (
	Win  Outcome = "win"
	Draw Outcome = "draw"
	Loss Outcome = "loss"
)

// Game holds the state of one match between a human and the AI.
//
// Game is a value: every move returns a new Game and leaves the receiver
// untouched. Board is an array, so copies never share cells.
type Game struct {
	Board  Board
	Turn   Cell
	Player Cell
	AI     Cell
	Winner Cell
	Draw   bool
	Over   bool
	Moves  int
}

// Errors describing why a human move would be ignored.
var (
	ErrOutOfBounds = errors.New("out of bounds")
	ErrOccupied    = errors.New("cell occupied")
	ErrGameOver    = errors.New("game over")
	ErrNotYourTurn = errors.New("not your turn")
)

// New returns a fresh match with the human on player. X always moves first.
// An invalid player symbol falls back to X.
func New(player Cell) Game {
	if player != X && player != O {
		player = X
	}
	return Game{Turn: X, Player: player, AI: Other(player)}
}

// PlayerMove places the human's symbol at idx and hands the turn to the AI.
//
// Moves into an occupied or out-of-range cell, or after the game is over, are
// ignored and g is returned unchanged. PlayerMove does not check that it is
// the human's turn; callers must only invoke it when g.Turn == g.Player.
func (g Game) PlayerMove(idx int) Game {
	if !g.open(idx) {
		return g
	}
	return g.place(idx, g.Player, g.AI)
}

// AIMove places the AI's symbol at idx and hands the turn back to the human.
// It is a no-op when it is not the AI's turn or the move is not legal.
func (g Game) AIMove(idx int) Game {
	if g.Turn != g.AI || !g.open(idx) {
		return g
	}
	return g.place(idx, g.AI, g.Player)
}

// CheckPlayerMove explains why PlayerMove(idx) would be ignored, or returns nil.
func (g Game) CheckPlayerMove(idx int) error {
	switch {
	case g.Over:
		return ErrGameOver
	case idx < 0 || idx > 8:
		return ErrOutOfBounds
	case g.Turn != g.Player:
		return ErrNotYourTurn
	case g.Board[idx] != Empty:
		return ErrOccupied
	}
	return nil
}

// Outcome classifies a finished match. It must only be called once g.Over.
func (g Game) Outcome() Outcome {
	if g.Winner == g.Player {
		return Win
	}
	if g.Draw {
		return Draw
	}
	return Loss
}

func (g Game) open(idx int) bool {
	return !g.Over && idx >= 0 && idx < len(g.Board) && g.Board[idx] == Empty
}

func (g Game) place(idx int, mark, next Cell) Game {
	g.Board[idx] = mark
	g.Moves++
	g.Turn = next
	g.Winner = Winner(g.Board)
	g.Draw = g.Winner == Empty && g.Board.Full()
	g.Over = g.Winner != Empty || g.Draw
	return g
}
