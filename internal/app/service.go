package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaminalder/tictactoe-arena/internal/domain"
	"github.com/jaminalder/tictactoe-arena/internal/history"
	"github.com/jaminalder/tictactoe-arena/internal/leaderboard"
	"github.com/jaminalder/tictactoe-arena/internal/ledger"
)

// Errors exposed by the service layer.
var (
	ErrNotFound        = errors.New("match not found")
	ErrNotAPlayer      = errors.New("not your match")
	ErrNoPlayer        = errors.New("player address required")
	ErrPaymentRequired = errors.New("pay to play first")
	ErrMatchInProgress = errors.New("match already in progress")
)

// MatchState is the in-memory state tracked per match.
type MatchState struct {
	ID     string
	Player string
	Game   domain.Game
	// Difficulty is the player's weekly points when the match started.
	Difficulty float64
	Moves      []int
	Recorded   bool
	booking    bool
	Result     *ledger.Result
	// RecordErr is set when the ledger rejected the result.
	RecordErr string
	Created   time.Time
	Updated   time.Time
}

func (m *MatchState) clone() *MatchState {
	cp := *m
	cp.Moves = slices.Clone(m.Moves)
	if m.Result != nil {
		r := *m.Result
		cp.Result = &r
	}
	return &cp
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// send delivers b without blocking. It reports false if the buffer is full.
func (s *subscriber) send(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- b:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Deps are the collaborators a Service drives. Leaderboard and Archive are
// optional.
type Deps struct {
	Session     *domain.Session
	Opponent    Opponent
	Ledger      Ledger
	Leaderboard Leaderboard
	Archive     Archive
}

// Options tune a Service.
type Options struct {
	// ThinkDelay is how long the AI waits before moving. Zero moves inline.
	ThinkDelay time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
	Render     func(MatchState) []byte
}

// Service manages matches, AI turns and subscribers.
type Service struct {
	mu     sync.Mutex
	deps   Deps
	delay  time.Duration
	log    *slog.Logger
	now    func() time.Time
	render func(MatchState) []byte

	games  map[string]*MatchState
	active map[string]string // player -> match in progress
	subs   map[string]map[*subscriber]struct{}

	pending sync.WaitGroup
}

// NewService wires a service. Session defaults to a fresh counter.
func NewService(deps Deps, opts Options) *Service {
	if deps.Session == nil {
		deps.Session = domain.NewSession(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Render == nil {
		opts.Render = func(MatchState) []byte { return nil }
	}
	return &Service{
		deps:   deps,
		delay:  opts.ThinkDelay,
		log:    opts.Logger,
		now:    opts.Now,
		render: opts.Render,
		games:  make(map[string]*MatchState),
		active: make(map[string]string),
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(MatchState) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		s.render = func(MatchState) []byte { return nil }
		return
	}
	s.render = renderer
}

// Pay records an entry fee for player.
func (s *Service) Pay(ctx context.Context, player string, amount uint64) error {
	if player == "" {
		return ErrNoPlayer
	}
	if err := s.deps.Ledger.PayToPlay(ctx, player, amount); err != nil {
		return fmt.Errorf("pay to play: %w", err)
	}
	s.log.Info("payment received", "player", player, "amount", amount)
	return nil
}

// HasPaid reports whether player has an unused payment. Ledger errors count
// as unpaid.
func (s *Service) HasPaid(ctx context.Context, player string) bool {
	paid, err := s.deps.Ledger.HasPaid(ctx, player)
	if err != nil {
		s.log.Warn("check payment failed", "player", player, "err", err)
		return false
	}
	return paid
}

// CanPlay reports whether player has games left today. Ledger errors count
// as no.
func (s *Service) CanPlay(ctx context.Context, player string) bool {
	ok, err := s.deps.Ledger.CanPlay(ctx, player)
	if err != nil {
		s.log.Warn("check daily limit failed", "player", player, "err", err)
		return false
	}
	return ok
}

// Stats returns player's ledger record.
func (s *Service) Stats(ctx context.Context, player string) (ledger.Stats, error) {
	return s.deps.Ledger.Stats(ctx, player)
}

// CreateMatch starts a paid match for player. symbol may be domain.Empty to
// follow the session's rotation. If the AI holds X it opens immediately.
func (s *Service) CreateMatch(ctx context.Context, player string, symbol domain.Cell) (*MatchState, error) {
	if player == "" {
		return nil, ErrNoPlayer
	}
	if active, ok := s.Active(player); ok {
		if !active.Game.Over {
			return nil, ErrMatchInProgress
		}
		// The last result never reached the ledger; book it first.
		s.finish(ctx, active.ID)
		if _, ok := s.Active(player); ok {
			return nil, ErrMatchInProgress
		}
	}
	paid, err := s.deps.Ledger.HasPaid(ctx, player)
	if err != nil {
		return nil, fmt.Errorf("check payment: %w", err)
	}
	if !paid {
		return nil, ErrPaymentRequired
	}
	stats, err := s.deps.Ledger.Stats(ctx, player)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	s.mu.Lock()
	if id, ok := s.active[player]; ok && !s.games[id].Recorded {
		s.mu.Unlock()
		return nil, ErrMatchInProgress
	}
	now := s.now()
	ms := &MatchState{
		ID:         uuid.NewString(),
		Player:     player,
		Game:       s.deps.Session.CreateMatch(symbol),
		Difficulty: float64(stats.WeeklyPoints),
		Created:    now,
		Updated:    now,
	}
	s.games[ms.ID] = ms
	s.active[player] = ms.ID
	cp := ms.clone()
	s.mu.Unlock()

	s.log.Info("match created",
		"match", cp.ID, "player", player,
		"symbol", cp.Game.Player.String(), "difficulty", cp.Difficulty)

	if cp.Game.Turn == cp.Game.AI {
		s.scheduleAI(ctx, cp.ID)
		if s.delay <= 0 {
			if latest, ok := s.Get(cp.ID); ok {
				return latest, nil
			}
		}
	}
	return cp, nil
}

// Get returns a copy of the match if present.
func (s *Service) Get(id string) (*MatchState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.games[id]
	if !ok {
		return nil, false
	}
	return ms.clone(), true
}

// Active returns player's unfinished match, if any.
func (s *Service) Active(player string) (*MatchState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[player]
	if !ok {
		return nil, false
	}
	return s.games[id].clone(), true
}

// Play applies the human's move at cell idx (0..8), then lets the AI reply.
// With no think delay the returned state already includes the reply.
func (s *Service) Play(ctx context.Context, id, player string, idx int) (*MatchState, error) {
	s.mu.Lock()
	ms, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if ms.Player != player {
		s.mu.Unlock()
		return nil, ErrNotAPlayer
	}
	if err := ms.Game.CheckPlayerMove(idx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ms.Game = ms.Game.PlayerMove(idx)
	ms.Moves = append(ms.Moves, idx)
	ms.Updated = s.now()
	cp := ms.clone()
	s.mu.Unlock()

	s.publish(*cp)
	if cp.Game.Over {
		s.finish(ctx, id)
	} else {
		s.scheduleAI(ctx, id)
	}
	if latest, ok := s.Get(id); ok {
		return latest, nil
	}
	return cp, nil
}

// Wait blocks until all scheduled AI turns have run.
func (s *Service) Wait() { s.pending.Wait() }

func (s *Service) scheduleAI(ctx context.Context, id string) {
	if s.delay <= 0 {
		s.aiTurn(ctx, id)
		return
	}
	s.pending.Add(1)
	time.AfterFunc(s.delay, func() {
		defer s.pending.Done()
		s.aiTurn(context.Background(), id)
	})
}

func (s *Service) aiTurn(ctx context.Context, id string) {
	s.mu.Lock()
	ms, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	prev := ms.Game
	next := s.deps.Opponent.Move(prev, ms.Difficulty)
	if next == prev {
		s.mu.Unlock()
		return
	}
	ms.Game = next
	ms.Moves = append(ms.Moves, placed(prev.Board, next.Board))
	ms.Updated = s.now()
	cp := ms.clone()
	s.mu.Unlock()

	s.publish(*cp)
	if cp.Game.Over {
		s.finish(ctx, id)
	}
}

// finish books a finished match exactly once. It runs detached from ctx's
// cancellation so a dropped request cannot lose the result. The match stays
// active until the ledger accepts it; leaderboard and archive failures are
// logged and the ledger result stands.
func (s *Service) finish(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	ms, ok := s.games[id]
	if !ok || ms.Recorded || ms.booking || !ms.Game.Over {
		s.mu.Unlock()
		return
	}
	ms.booking = true
	cp := ms.clone()
	s.mu.Unlock()

	outcome := cp.Game.Outcome()
	log := s.log.With("match", id, "player", cp.Player, "outcome", string(outcome))

	res, err := s.deps.Ledger.RecordResult(ctx, cp.Player, outcome)
	if err != nil {
		log.Error("record result failed", "err", err)
		s.update(id, func(m *MatchState) {
			m.booking = false
			m.RecordErr = err.Error()
		})
		return
	}
	log.Info("result recorded", "points", res.Points, "weekly_points", res.Stats.WeeklyPoints)
	s.update(id, func(m *MatchState) {
		m.booking = false
		m.Recorded = true
		m.RecordErr = ""
		m.Result = &res
		if s.active[m.Player] == id {
			delete(s.active, m.Player)
		}
	})

	if s.deps.Leaderboard != nil {
		u := leaderboard.Update{
			Player:       cp.Player,
			Outcome:      outcome,
			Points:       res.Points,
			WeeklyPoints: res.Stats.WeeklyPoints,
		}
		if err := s.deps.Leaderboard.Sync(ctx, u); err != nil {
			log.Warn("leaderboard sync failed", "err", err)
		}
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.Append(ctx, s.record(cp, res)); err != nil {
			log.Warn("archive append failed", "err", err)
		}
	}
}

func (s *Service) record(ms *MatchState, res ledger.Result) history.Record {
	var b strings.Builder
	for _, c := range ms.Game.Board {
		if c == domain.Empty {
			b.WriteByte('.')
		} else {
			b.WriteString(c.String())
		}
	}
	moves := make([]int32, len(ms.Moves))
	for i, m := range ms.Moves {
		moves[i] = int32(m)
	}
	return history.Record{
		MatchID:      ms.ID,
		Player:       ms.Player,
		PlayerSymbol: ms.Game.Player.String(),
		Outcome:      string(res.Outcome),
		Board:        b.String(),
		Moves:        moves,
		Difficulty:   ms.Difficulty,
		Points:       int32(res.Points),
		WeeklyPoints: int32(res.Stats.WeeklyPoints),
		StartedAt:    ms.Created.UnixMilli(),
		FinishedAt:   ms.Updated.UnixMilli(),
	}
}

// update mutates a match under the lock and broadcasts the result.
func (s *Service) update(id string, fn func(*MatchState)) {
	s.mu.Lock()
	ms, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(ms)
	cp := ms.clone()
	s.mu.Unlock()
	s.publish(*cp)
}

// publish renders ms and fans it out; slow subscribers are dropped.
func (s *Service) publish(ms MatchState) {
	s.mu.Lock()
	subs := s.copySubsLocked(ms.ID)
	render := s.render
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	payload := render(ms)

	var toDrop []*subscriber
	for sub := range subs {
		if !sub.send(payload) {
			sub.close()
			toDrop = append(toDrop, sub)
		}
	}
	if len(toDrop) > 0 {
		s.mu.Lock()
		for _, sub := range toDrop {
			if set, ok := s.subs[ms.ID]; ok {
				delete(set, sub)
			}
		}
		s.mu.Unlock()
	}
}

// Subscribe registers a subscriber for a match. Returns a channel and an unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan []byte, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(s.subs, id)
				}
			}
			s.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub
}

func (s *Service) copySubsLocked(id string) map[*subscriber]struct{} {
	out := make(map[*subscriber]struct{})
	if set, ok := s.subs[id]; ok {
		for k := range set {
			out[k] = struct{}{}
		}
	}
	return out
}

// placed returns the cell that differs between two consecutive boards.
func placed(prev, next domain.Board) int {
	for i := range prev {
		if prev[i] != next[i] {
			return i
		}
	}
	return -1
}
