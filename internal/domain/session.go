package domain

import "sync/atomic"

// Symbol assignment rotates in blocks: the human gets X for assignBlock
// consecutive matches, then O for the next assignBlock, and so on.
const (
	assignBlock = 5
	assignCycle = 2 * assignBlock
)

// Session owns the match counter that drives symbol assignment.
// It is safe for concurrent use.
type Session struct {
	n atomic.Uint64
}

// NewSession returns a session whose counter starts at start.
func NewSession(start uint64) *Session {
	s := &Session{}
	s.n.Store(start)
	return s
}

// Count returns how many matches have been created.
func (s *Session) Count() uint64 { return s.n.Load() }

// CreateMatch starts a new match and advances the counter.
// If override is X or O the human gets that symbol; otherwise the symbol
// follows the counter's position in the rotation cycle.
func (s *Session) CreateMatch(override Cell) Game {
	n := s.n.Add(1) - 1
	player := override
	if player != X && player != O {
		player = X
		if n%assignCycle >= assignBlock {
			player = O
		}
	}
	return New(player)
}
