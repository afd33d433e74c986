package main

import (
	"flag"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jaminalder/tictactoe-arena/internal/ai"
	"github.com/jaminalder/tictactoe-arena/internal/domain"
	"github.com/jaminalder/tictactoe-arena/internal/tui"
)

func main() {
	score := flag.Float64("score", 0, "Weekly points to play at; higher scores make the AI blunder more")
	delay := flag.Duration("think-delay", 500*time.Millisecond, "Delay before the AI replies")
	flag.Parse()

	m := tui.New(tui.Options{
		Opponent: ai.New(ai.DefaultPolicy, nil),
		Session:  domain.NewSession(0),
		Score:    *score,
		Delay:    *delay,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
