// Package ledger keeps the pay-to-play book: entry fees, daily limits and the
// per-player win/draw/loss record with weekly points.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jaminalder/tictactoe-arena/internal/domain"
)

// Errors returned by ledger operations.
var (
	ErrNoPlayer        = errors.New("player address required")
	ErrInsufficientFee = errors.New("insufficient entry fee")
	ErrAlreadyPaid     = errors.New("already paid for a game")
	ErrDailyLimit      = errors.New("daily game limit reached")
	ErrNotPaid         = errors.New("no paid game to record")
	ErrInvalidOutcome  = errors.New("invalid outcome")
)

// DefaultEntryFee is 0.02 of the chain's native token, in wei.
const DefaultEntryFee uint64 = 20_000_000_000_000_000

// Config sets fees, limits and the points table.
type Config struct {
	EntryFee   uint64
	DailyLimit int
	WinPoints  int
	DrawPoints int
	LossPoints int
}

// DefaultConfig returns the values the hosted contract uses.
func DefaultConfig() Config {
	return Config{
		EntryFee:   DefaultEntryFee,
		DailyLimit: 10,
		WinPoints:  10,
		DrawPoints: 3,
		LossPoints: -5,
	}
}

// Stats is a player's record as reported to the UI.
type Stats struct {
	TotalGames          int `json:"totalGamesPlayed"`
	WeeklyPoints        int `json:"weeklyPoints"`
	DailyGamesRemaining int `json:"dailyGamesRemaining"`
	Wins                int `json:"wins"`
	Draws               int `json:"draws"`
	Losses              int `json:"losses"`
	TodayGames          int `json:"todayGamesPlayed"`
}

// Result describes a recorded match.
type Result struct {
	Player  string
	Outcome domain.Outcome
	// Points is the applied change to weekly points after flooring at zero.
	Points int
	Stats  Stats
}

type account struct {
	paid   bool
	total  int
	wins   int
	draws  int
	losses int
	points int
	week   string
	today  int
	day    string
}

// Ledger is an in-memory ledger. It is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	cfg      Config
	now      func() time.Time
	accounts map[string]*account
	treasury uint64
}

// New returns a ledger using cfg. now defaults to time.Now.
func New(cfg Config, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{cfg: cfg, now: now, accounts: make(map[string]*account)}
}

// Fee returns the entry fee in wei.
func (l *Ledger) Fee() uint64 { return l.cfg.EntryFee }

// Treasury returns the total fees collected.
func (l *Ledger) Treasury() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.treasury
}

// PayToPlay records an entry fee payment, unlocking one match.
func (l *Ledger) PayToPlay(ctx context.Context, player string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if player == "" {
		return ErrNoPlayer
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.accountLocked(player)
	switch {
	case a.paid:
		return ErrAlreadyPaid
	case a.today >= l.cfg.DailyLimit:
		return ErrDailyLimit
	case amount < l.cfg.EntryFee:
		return fmt.Errorf("%w: got %d, need %d", ErrInsufficientFee, amount, l.cfg.EntryFee)
	}
	a.paid = true
	l.treasury += amount
	return nil
}

// HasPaid reports whether player has an unused payment.
func (l *Ledger) HasPaid(ctx context.Context, player string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accountLocked(player).paid, nil
}

// CanPlay reports whether player has games left today.
func (l *Ledger) CanPlay(ctx context.Context, player string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accountLocked(player).today < l.cfg.DailyLimit, nil
}

// RecordResult consumes player's payment and books outcome.
// Weekly points never drop below zero.
func (l *Ledger) RecordResult(ctx context.Context, player string, outcome domain.Outcome) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var delta int
	switch outcome {
	case domain.Win:
		delta = l.cfg.WinPoints
	case domain.Draw:
		delta = l.cfg.DrawPoints
	case domain.Loss:
		delta = l.cfg.LossPoints
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.accountLocked(player)
	if !a.paid {
		return Result{}, ErrNotPaid
	}
	a.paid = false
	a.total++
	a.today++
	switch outcome {
	case domain.Win:
		a.wins++
	case domain.Draw:
		a.draws++
	case domain.Loss:
		a.losses++
	}
	before := a.points
	a.points = max(0, a.points+delta)
	return Result{
		Player:  player,
		Outcome: outcome,
		Points:  a.points - before,
		Stats:   l.statsLocked(a),
	}, nil
}

// Stats returns player's current record.
func (l *Ledger) Stats(ctx context.Context, player string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statsLocked(l.accountLocked(player)), nil
}

// accountLocked returns player's account with day and week rolled forward.
func (l *Ledger) accountLocked(player string) *account {
	a, ok := l.accounts[player]
	if !ok {
		a = &account{}
		l.accounts[player] = a
	}
	now := l.now().UTC()
	if day := now.Format(time.DateOnly); a.day != day {
		a.day = day
		a.today = 0
	}
	if week := WeekKey(now); a.week != week {
		a.week = week
		a.points = 0
	}
	return a
}

// WeekKey names the UTC ISO week containing t, e.g. "2026-W42". Weekly
// points reset when it changes (Monday 00:00 UTC).
func WeekKey(t time.Time) string {
	year, wk := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, wk)
}

func (l *Ledger) statsLocked(a *account) Stats {
	return Stats{
		TotalGames:          a.total,
		WeeklyPoints:        a.points,
		DailyGamesRemaining: max(0, l.cfg.DailyLimit-a.today),
		Wins:                a.wins,
		Draws:               a.draws,
		Losses:              a.losses,
		TodayGames:          a.today,
	}
}
