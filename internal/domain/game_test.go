package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boardOf builds a board from a 9-char string of X, O and '.'.
func boardOf(t *testing.T, s string) Board {
	t.Helper()
	require.Len(t, s, 9)
	var b Board
	for i, r := range s {
		b[i] = ParseCell(string(r))
	}
	return b
}

// alternate plays human and AI moves in turn, starting with whoever holds Turn.
func alternate(t *testing.T, g Game, cells ...int) Game {
	t.Helper()
	for i, idx := range cells {
		next := g
		if g.Turn == g.Player {
			next = g.PlayerMove(idx)
		} else {
			next = g.AIMove(idx)
		}
		require.NotEqual(t, g, next, "move %d (cell %d) was ignored", i, idx)
		g = next
	}
	return g
}

func TestNewGameInitialState(t *testing.T) {
	for _, player := range []Cell{X, O} {
		g := New(player)
		assert.Equal(t, X, g.Turn, "X always moves first")
		assert.Equal(t, player, g.Player)
		assert.Equal(t, Other(player), g.AI)
		assert.False(t, g.Over)
		assert.False(t, g.Draw)
		assert.Equal(t, Empty, g.Winner)
		assert.Equal(t, Board{}, g.Board)
	}
	assert.Equal(t, X, New(Empty).Player)
}

func TestPlayerMoveIgnoresIllegalMoves(t *testing.T) {
	g := New(X).PlayerMove(4)
	g = g.AIMove(0)

	assert.Equal(t, g, g.PlayerMove(4), "occupied by self")
	assert.Equal(t, g, g.PlayerMove(0), "occupied by AI")
	assert.Equal(t, g, g.PlayerMove(-1))
	assert.Equal(t, g, g.PlayerMove(9))

	over := alternate(t, New(X), 0, 3, 1, 4, 2)
	require.True(t, over.Over)
	assert.Equal(t, over, over.PlayerMove(8))
	assert.Equal(t, over, over.AIMove(8))
}

func TestMovesDoNotMutateReceiver(t *testing.T) {
	g := New(X)
	next := g.PlayerMove(0)
	assert.Equal(t, Empty, g.Board[0])
	assert.Equal(t, X, next.Board[0])

	after := next.AIMove(1)
	assert.Equal(t, Empty, next.Board[1])
	assert.Equal(t, O, after.Board[1])
}

func TestTurnAlternation(t *testing.T) {
	g := New(X)
	g = g.PlayerMove(0)
	assert.Equal(t, g.AI, g.Turn)
	assert.Equal(t, 1, g.Moves)

	g = g.AIMove(4)
	assert.Equal(t, g.Player, g.Turn)
	assert.Equal(t, 2, g.Moves)
}

func TestAIMoveRequiresAITurn(t *testing.T) {
	g := New(X)
	assert.Equal(t, g, g.AIMove(4), "human holds X and moves first")

	g = New(O)
	next := g.AIMove(4)
	assert.Equal(t, X, next.Board[4])
	assert.Equal(t, O, next.Turn)
}

func TestWinnerOnEveryLine(t *testing.T) {
	for _, side := range []Cell{X, O} {
		for _, ln := range Lines {
			var b Board
			for _, idx := range ln {
				b[idx] = side
			}
			assert.Equal(t, side, Winner(b), "line %v", ln)
			assert.False(t, IsDraw(b))
		}
	}
	assert.Equal(t, Empty, Winner(Board{}))
}

func TestWinnerScansRowsFirst(t *testing.T) {
	// Row 0 and column 2 both complete for O.
	b := boardOf(t, "OOOXXOXXO")
	assert.Equal(t, O, Winner(b))
}

func TestIsDraw(t *testing.T) {
	assert.True(t, IsDraw(boardOf(t, "XOXXOOOXX")))
	assert.False(t, IsDraw(boardOf(t, "XOXXOOOX.")), "not full")
	assert.False(t, IsDraw(boardOf(t, "XXXOOXOXO")), "full with a winner")
}

func TestDrawGame(t *testing.T) {
	// X O X
	// X O O
	// O X X
	g := alternate(t, New(X), 0, 1, 2, 4, 3, 5, 7, 6, 8)
	assert.True(t, g.Over)
	assert.True(t, g.Draw)
	assert.Equal(t, Empty, g.Winner)
	assert.Equal(t, 9, g.Moves)
	assert.Equal(t, Draw, g.Outcome())
}

func TestWinSetsWinnerNotDraw(t *testing.T) {
	// X O O
	// . X .
	// . . X
	g := alternate(t, New(X), 0, 1, 4, 2, 8)
	assert.True(t, g.Over)
	assert.False(t, g.Draw)
	assert.Equal(t, X, g.Winner)
}

func TestOutcome(t *testing.T) {
	win := alternate(t, New(X), 0, 3, 1, 4, 2)
	assert.Equal(t, Win, win.Outcome())

	loss := alternate(t, New(O), 0, 3, 1, 4, 2)
	assert.Equal(t, X, loss.Winner)
	assert.Equal(t, Loss, loss.Outcome())

	draw := Game{Player: X, AI: O, Draw: true, Over: true}
	assert.Equal(t, Draw, draw.Outcome())
}

func TestCheckPlayerMove(t *testing.T) {
	g := New(X)
	assert.NoError(t, g.CheckPlayerMove(0))
	assert.ErrorIs(t, g.CheckPlayerMove(9), ErrOutOfBounds)

	g = g.PlayerMove(0)
	assert.ErrorIs(t, g.CheckPlayerMove(1), ErrNotYourTurn)

	g = g.AIMove(1)
	assert.ErrorIs(t, g.CheckPlayerMove(0), ErrOccupied)

	over := alternate(t, New(X), 0, 3, 1, 4, 2)
	assert.ErrorIs(t, over.CheckPlayerMove(8), ErrGameOver)
}

func TestEmptyCells(t *testing.T) {
	b := boardOf(t, "X.O.X.O..")
	assert.Equal(t, []int{1, 3, 5, 7, 8}, b.EmptyCells())
	assert.Empty(t, boardOf(t, "XOXXOOOXX").EmptyCells())
}
