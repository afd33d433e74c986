package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jaminalder/tictactoe-arena/internal/app"
)

// Options configure the web layer.
type Options struct {
	// Fee prefilled in the pay form, in wei.
	Fee uint64
	// TopN caps the leaderboard. Zero shows 20.
	TopN   int
	Logger *slog.Logger
}

// NewServer wires routes and returns an http.Handler. It also installs the
// board renderer used for match broadcasts.
func NewServer(s *app.Service, ranks Rankings, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TopN <= 0 {
		opts.TopN = 20
	}
	h := &handlers{
		svc:   s,
		ranks: ranks,
		tpl:   loadTemplates(),
		log:   opts.Logger,
		fee:   opts.Fee,
		topN:  opts.TopN,
	}
	s.SetRenderer(h.renderBoard)

	r := chi.NewRouter()
	r.Get("/", h.index)
	r.Post("/pay", h.pay)
	r.Get("/stats", h.stats)
	r.Post("/match", h.create)
	r.Route("/match/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/play", h.play)
		r.Get("/events", h.events)
	})
	r.Get("/leaderboard", h.leaderboard)
	r.Get("/leaderboard/ws", h.leaderboardWS)
	return r
}
