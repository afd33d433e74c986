// Package leaderboard mirrors match results into a weekly ranking and
// notifies subscribers whenever it changes.
package leaderboard

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jaminalder/tictactoe-arena/internal/domain"
	"github.com/jaminalder/tictactoe-arena/internal/ledger"
)

var ErrNoPlayer = errors.New("player address required")

// Entry is one player's row on the weekly board. Counts cover Week only.
type Entry struct {
	Player       string         `json:"player"`
	Week         string         `json:"week"`
	WeeklyPoints int            `json:"weeklyPoints"`
	Wins         int            `json:"wins"`
	Draws        int            `json:"draws"`
	Losses       int            `json:"losses"`
	LastResult   domain.Outcome `json:"lastResult"`
	LastPoints   int            `json:"lastPoints"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Update is what the game reports after each recorded match.
type Update struct {
	Player       string
	Outcome      domain.Outcome
	Points       int
	WeeklyPoints int
}

// Store is an in-memory leaderboard. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*Entry
	subs    map[chan Entry]struct{}
}

// NewStore returns an empty store. now defaults to time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:     now,
		entries: make(map[string]*Entry),
		subs:    make(map[chan Entry]struct{}),
	}
}

// Sync applies u and notifies subscribers. The weekly total in u is taken as
// authoritative; the store only counts results.
func (s *Store) Sync(ctx context.Context, u Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.Player == "" {
		return ErrNoPlayer
	}
	s.mu.Lock()
	now := s.now()
	week := ledger.WeekKey(now)
	e, ok := s.entries[u.Player]
	if !ok || e.Week != week {
		e = &Entry{Player: u.Player, Week: week}
		s.entries[u.Player] = e
	}
	switch u.Outcome {
	case domain.Win:
		e.Wins++
	case domain.Draw:
		e.Draws++
	case domain.Loss:
		e.Losses++
	}
	e.WeeklyPoints = u.WeeklyPoints
	e.LastResult = u.Outcome
	e.LastPoints = u.Points
	e.UpdatedAt = now
	cp := *e
	for ch := range s.subs {
		select {
		case ch <- cp:
		default:
			// drop for slow subscribers; they re-read Top on the next change
		}
	}
	s.mu.Unlock()
	return nil
}

// Top returns up to n entries of the current week ordered by weekly points,
// highest first. n <= 0 returns all of them.
func (s *Store) Top(n int) []Entry {
	s.mu.Lock()
	week := ledger.WeekKey(s.now())
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Week == week {
			out = append(out, *e)
		}
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(b.WeeklyPoints, a.WeeklyPoints); c != 0 {
			return c
		}
		return cmp.Compare(a.Player, b.Player)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Rank returns player's 1-based rank this week (one more than the number of
// players with strictly more points) and its entry. ok is false for players
// with no result this week.
func (s *Store) Rank(player string) (rank int, e Entry, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	week := ledger.WeekKey(s.now())
	p, ok := s.entries[player]
	if !ok || p.Week != week {
		return 0, Entry{}, false
	}
	rank = 1
	for _, other := range s.entries {
		if other.Week == week && other.WeeklyPoints > p.WeeklyPoints {
			rank++
		}
	}
	return rank, *p, true
}

// Subscribe returns a channel of changed entries. It is closed when ctx ends.
func (s *Store) Subscribe(ctx context.Context) <-chan Entry {
	ch := make(chan Entry, 8)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}
