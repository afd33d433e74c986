// Package tui is a terminal client that plays matches against the engine
// locally, without payment or leaderboard.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jaminalder/tictactoe-arena/internal/domain"
)

// Opponent picks the AI's reply for a game.
type Opponent interface {
	Move(g domain.Game, score float64) domain.Game
}

// Options configure a Model.
type Options struct {
	Opponent Opponent
	Session  *domain.Session
	// Score is the difficulty passed to the opponent.
	Score float64
	// Delay before the AI replies. Zero replies on the next message.
	Delay time.Duration
}

// Tally counts finished matches from the human's side.
type Tally struct {
	Wins, Draws, Losses int
}

type aiMoveMsg struct{ match int }

// Model is the bubbletea model for one terminal session.
type Model struct {
	opts   Options
	game   domain.Game
	match  int
	cursor int
	tally  Tally
}

// New starts a model with its first match.
func New(opts Options) Model {
	if opts.Session == nil {
		opts.Session = domain.NewSession(0)
	}
	m := Model{opts: opts, cursor: 4}
	m.game = opts.Session.CreateMatch(domain.Empty)
	return m
}

// Game returns the current match.
func (m Model) Game() domain.Game { return m.game }

// Tally returns the finished-match counts.
func (m Model) Tally() Tally { return m.tally }

// Cursor returns the selected cell.
func (m Model) Cursor() int { return m.cursor }

func (m Model) Init() tea.Cmd {
	return m.aiTurn()
}

// aiTurn schedules the AI reply if it is the AI's move.
func (m Model) aiTurn() tea.Cmd {
	if m.game.Over || m.game.Turn != m.game.AI {
		return nil
	}
	msg := aiMoveMsg{match: m.match}
	if m.opts.Delay <= 0 {
		return func() tea.Msg { return msg }
	}
	return tea.Tick(m.opts.Delay, func(time.Time) tea.Msg { return msg })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)
	case aiMoveMsg:
		if msg.match != m.match {
			return m, nil
		}
		m.game = m.opts.Opponent.Move(m.game, m.opts.Score)
		m.settle()
		return m, nil
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch s := msg.String(); s {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor >= 3 {
			m.cursor -= 3
		}
	case "down", "j":
		if m.cursor < 6 {
			m.cursor += 3
		}
	case "left", "h":
		if m.cursor%3 > 0 {
			m.cursor--
		}
	case "right", "l":
		if m.cursor%3 < 2 {
			m.cursor++
		}
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.cursor = int(s[0] - '1')
	case "enter", " ":
		if m.game.Over || m.game.Turn != m.game.Player {
			return m, nil
		}
		next := m.game.PlayerMove(m.cursor)
		if next == m.game {
			return m, nil
		}
		m.game = next
		m.settle()
		return m, m.aiTurn()
	case "n":
		m.match++
		m.game = m.opts.Session.CreateMatch(domain.Empty)
		m.cursor = 4
		return m, m.aiTurn()
	}
	return m, nil
}

// settle updates the tally once the current match ends.
func (m *Model) settle() {
	if !m.game.Over {
		return
	}
	switch m.game.Outcome() {
	case domain.Win:
		m.tally.Wins++
	case domain.Draw:
		m.tally.Draws++
	default:
		m.tally.Losses++
	}
}

func (m Model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tic-Tac-Toe vs AI  (you are %s, difficulty %.0f)\n\n", m.game.Player, m.opts.Score)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			i := r*3 + c
			mark := m.game.Board[i].String()
			if mark == "" {
				mark = "."
			}
			if i == m.cursor && !m.game.Over {
				fmt.Fprintf(&b, "[%s]", mark)
			} else {
				fmt.Fprintf(&b, " %s ", mark)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.game.Over:
		fmt.Fprintf(&b, "%s\n", outcomeLine(m.game.Outcome()))
	case m.game.Turn == m.game.Player:
		fmt.Fprintf(&b, "Your turn (%s)\n", m.game.Player)
	default:
		fmt.Fprintf(&b, "AI (%s) is thinking...\n", m.game.AI)
	}
	fmt.Fprintf(&b, "Wins %d  Draws %d  Losses %d\n", m.tally.Wins, m.tally.Draws, m.tally.Losses)
	b.WriteString("\narrows/1-9 select, enter play, n new match, q quit\n")
	return b.String()
}

func outcomeLine(o domain.Outcome) string {
	switch o {
	case domain.Win:
		return "You won!"
	case domain.Draw:
		return "It's a draw."
	default:
		return "The AI won."
	}
}
