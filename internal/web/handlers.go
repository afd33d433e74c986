package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jaminalder/tictactoe-arena/internal/app"
	"github.com/jaminalder/tictactoe-arena/internal/domain"
	"github.com/jaminalder/tictactoe-arena/internal/leaderboard"
	"github.com/jaminalder/tictactoe-arena/internal/ledger"
)

// Rankings is the leaderboard view the web layer reads.
type Rankings interface {
	Top(n int) []leaderboard.Entry
	Rank(player string) (int, leaderboard.Entry, bool)
	Subscribe(ctx context.Context) <-chan leaderboard.Entry
}

type handlers struct {
	svc   *app.Service
	ranks Rankings
	tpl   *templates
	log   *slog.Logger
	fee   uint64
	topN  int
}

type boardData struct {
	ID     string
	Game   domain.Game
	Status string
	Error  string
	Locked bool
}

// boardView describes a match from viewer's seat.
func boardView(ms app.MatchState, viewer, errMsg string) boardData {
	g := ms.Game
	d := boardData{ID: ms.ID, Game: g, Error: errMsg}
	d.Locked = g.Over || g.Turn != g.Player || (viewer != "" && viewer != ms.Player)
	switch {
	case !g.Over && g.Turn == g.Player:
		d.Status = fmt.Sprintf("Your turn (%s)", g.Player)
	case !g.Over:
		d.Status = fmt.Sprintf("AI (%s) is thinking...", g.AI)
	case ms.Result != nil:
		d.Status = fmt.Sprintf("You %s! Weekly points %+d (total %d)",
			outcomeVerb(g.Outcome()), ms.Result.Points, ms.Result.Stats.WeeklyPoints)
	case ms.RecordErr != "":
		d.Status = "Error recording game result. Please try again."
	default:
		d.Status = fmt.Sprintf("You %s! Recording result...", outcomeVerb(g.Outcome()))
	}
	return d
}

func outcomeVerb(o domain.Outcome) string {
	switch o {
	case domain.Win:
		return "won"
	case domain.Draw:
		return "drew"
	default:
		return "lost"
	}
}

func (h *handlers) renderBoard(ms app.MatchState) []byte {
	return renderTemplate(h.tpl.board, "", boardView(ms, "", ""))
}

func writeHTML(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func (h *handlers) renderIndex(w http.ResponseWriter, r *http.Request, pid string, status int, errMsg string) {
	ctx := r.Context()
	stats, err := h.svc.Stats(ctx, pid)
	if err != nil {
		h.log.Error("load stats", "player", pid, "err", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	data := struct {
		Player   string
		Stats    ledger.Stats
		Paid     bool
		CanPlay  bool
		ActiveID string
		Fee      uint64
		Error    string
	}{Player: pid, Stats: stats, Fee: h.fee, Error: errMsg}
	if ms, ok := h.svc.Active(pid); ok {
		data.ActiveID = ms.ID
	}
	data.Paid = h.svc.HasPaid(ctx, pid)
	data.CanPlay = data.Paid || h.svc.CanPlay(ctx, pid)
	writeHTML(w, status, renderTemplate(h.tpl.index, "", data))
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	h.renderIndex(w, r, pid, http.StatusOK, "")
}

func (h *handlers) pay(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	_ = r.ParseForm()
	amount := h.fee
	if s := r.Form.Get("amount"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.renderIndex(w, r, pid, http.StatusBadRequest, "Invalid amount")
			return
		}
		amount = v
	}
	if err := h.svc.Pay(r.Context(), pid, amount); err != nil {
		var msg string
		switch {
		case errors.Is(err, ledger.ErrInsufficientFee):
			msg = "Entry fee too low"
		case errors.Is(err, ledger.ErrAlreadyPaid):
			msg = "Already paid, start your match"
		case errors.Is(err, ledger.ErrDailyLimit):
			msg = "Daily game limit reached"
		default:
			msg = "Payment failed. Please try again."
		}
		h.renderIndex(w, r, pid, http.StatusPaymentRequired, msg)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	_ = r.ParseForm()
	symbol := domain.ParseCell(r.Form.Get("symbol"))
	ms, err := h.svc.CreateMatch(r.Context(), pid, symbol)
	switch {
	case errors.Is(err, app.ErrMatchInProgress):
		if active, ok := h.svc.Active(pid); ok {
			http.Redirect(w, r, "/match/"+active.ID, http.StatusSeeOther)
			return
		}
		h.renderIndex(w, r, pid, http.StatusConflict, "Match already in progress")
		return
	case errors.Is(err, app.ErrPaymentRequired):
		h.renderIndex(w, r, pid, http.StatusPaymentRequired, "Please pay to play first")
		return
	case err != nil:
		h.log.Error("create match", "player", pid, "err", err)
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/match/"+ms.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	ms, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeHTML(w, http.StatusOK, renderTemplate(h.tpl.game, "", boardView(*ms, pid, "")))
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	_ = r.ParseForm()
	cell, err := strconv.Atoi(r.Form.Get("cell"))
	if err != nil {
		cell = -1
	}
	ms, err := h.svc.Play(r.Context(), id, pid, cell)
	var errMsg string
	if err != nil {
		if ms == nil {
			if m, ok := h.svc.Get(id); ok {
				ms = m
			}
		}
		switch {
		case errors.Is(err, app.ErrNotAPlayer):
			errMsg = "You are a spectator"
		case errors.Is(err, domain.ErrNotYourTurn):
			errMsg = "Not your turn"
		case errors.Is(err, domain.ErrOccupied):
			errMsg = "Cell is occupied"
		case errors.Is(err, domain.ErrOutOfBounds):
			errMsg = "Out of bounds"
		case errors.Is(err, domain.ErrGameOver):
			errMsg = "Game is over"
		default:
			errMsg = "Invalid move"
		}
	}
	if ms == nil {
		http.NotFound(w, r)
		return
	}
	writeHTML(w, http.StatusOK, renderTemplate(h.tpl.board, "", boardView(*ms, pid, errMsg)))
}

var heartbeatInterval = 15 * time.Second

// writeEvent emits one SSE event, prefixing every payload line with "data:".
func writeEvent(w io.Writer, event string, payload []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(strings.TrimRight(string(payload), "\n"), "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub := h.svc.Subscribe(ctx, id)
	defer unsub()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "board", b)
			flusher.Flush()
		}
	}
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	stats, err := h.svc.Stats(r.Context(), pid)
	if err != nil {
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Player string `json:"player"`
		ledger.Stats
	}{pid, stats})
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	data := struct {
		Entries []leaderboard.Entry
		Rank    int
		Mine    leaderboard.Entry
	}{Entries: h.ranks.Top(h.topN)}
	if rank, e, ok := h.ranks.Rank(pid); ok {
		data.Rank, data.Mine = rank, e
	}
	writeHTML(w, http.StatusOK, renderTemplate(h.tpl.leaderboard, "", data))
}

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type leaderboardMsg struct {
	Type    string              `json:"type"`
	Entries []leaderboard.Entry `json:"entries"`
}

// leaderboardWS pushes the top entries on connect and after every change.
func (h *handlers) leaderboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Drain client frames so close and pong are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	changes := h.ranks.Subscribe(ctx)
	send := func(kind string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(leaderboardMsg{Type: kind, Entries: h.ranks.Top(h.topN)})
	}
	if err := send("snapshot"); err != nil {
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := send("update"); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
