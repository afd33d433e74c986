package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"
	"github.com/jaminalder/tictactoe-arena/internal/ai"
	"github.com/jaminalder/tictactoe-arena/internal/app"
	"github.com/jaminalder/tictactoe-arena/internal/domain"
	"github.com/jaminalder/tictactoe-arena/internal/leaderboard"
	"github.com/jaminalder/tictactoe-arena/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lowestFree always plays the lowest empty cell.
type lowestFree struct{}

func (lowestFree) Float64() float64 { return 0.99 }
func (lowestFree) IntN(int) int     { return 0 }

type testEnv struct {
	svc    *app.Service
	ledger *ledger.Ledger
	board  *leaderboard.Store
	h      http.Handler
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	return newTestServerWith(t, ledger.DefaultConfig())
}

func newTestServerWith(t *testing.T, cfg ledger.Config) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(cfg, nil)
	board := leaderboard.NewStore(nil)
	svc := app.NewService(app.Deps{
		Session:     domain.NewSession(0),
		Opponent:    ai.New(ai.DefaultPolicy, lowestFree{}),
		Ledger:      l,
		Leaderboard: board,
	}, app.Options{Logger: logger})
	h := NewServer(svc, board, Options{Fee: l.Fee(), Logger: logger})
	return &testEnv{svc: svc, ledger: l, board: board, h: h}
}

func (e *testEnv) do(t *testing.T, method, target string, form url.Values, player string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if player != "" {
		req.AddCookie(&http.Cookie{Name: "player_id", Value: player})
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func parse(t *testing.T, rr *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rr.Body)
	require.NoError(t, err)
	return doc
}

// startMatch pays and creates a match for player, returning its ID.
func (e *testEnv) startMatch(t *testing.T, player string) string {
	t.Helper()
	rr := e.do(t, "POST", "/pay", url.Values{}, player)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	rr = e.do(t, "POST", "/match", url.Values{}, player)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc := rr.Result().Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/match/"), "redirect %q", loc)
	return strings.TrimPrefix(loc, "/match/")
}

func TestIndexSetsCookieAndOffersPayment(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, "GET", "/", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var playerID string
	for _, c := range rr.Result().Cookies() {
		if c.Name == "player_id" {
			playerID = c.Value
		}
	}
	require.NotEmpty(t, playerID, "expected player_id cookie to be set")

	doc := parse(t, rr)
	assert.Equal(t, playerID, doc.Find("#player").Text())
	assert.Equal(t, 1, doc.Find(`form[action="/pay"]`).Length())
	assert.Equal(t, strconv.FormatUint(env.ledger.Fee(), 10), doc.Find(`input[name="amount"]`).AttrOr("value", ""))
	assert.Equal(t, 0, doc.Find(`form[action="/match"]`).Length())
}

func TestPayUnlocksNewMatchForm(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, "POST", "/pay", url.Values{}, "p1")
	require.Equal(t, http.StatusSeeOther, rr.Code)

	doc := parse(t, env.do(t, "GET", "/", nil, "p1"))
	assert.Equal(t, 1, doc.Find(`form[action="/match"]`).Length())
	assert.Equal(t, 0, doc.Find(`form[action="/pay"]`).Length())
}

func TestPayRejectsLowFee(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, "POST", "/pay", url.Values{"amount": {"1"}}, "p1")
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Contains(t, parse(t, rr).Find(".alert").Text(), "Entry fee too low")
}

func TestIndexHidesPaymentAtDailyLimit(t *testing.T) {
	cfg := ledger.DefaultConfig()
	cfg.DailyLimit = 1
	env := newTestServerWith(t, cfg)
	id := env.startMatch(t, "p1")
	for _, cell := range []string{"0", "1", "3"} {
		rr := env.do(t, "POST", "/match/"+id+"/play", url.Values{"cell": {cell}}, "p1")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	ms, _ := env.svc.Get(id)
	require.True(t, ms.Recorded)

	doc := parse(t, env.do(t, "GET", "/", nil, "p1"))
	assert.Equal(t, 1, doc.Find("#limit").Length())
	assert.Equal(t, 0, doc.Find(`form[action="/pay"]`).Length())
	assert.Equal(t, 0, doc.Find(`form[action="/match"]`).Length())
}

func TestCreateWithoutPayment(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, "POST", "/match", url.Values{}, "p1")
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Contains(t, parse(t, rr).Find(".alert").Text(), "pay to play")
}

func TestCreateRedirectsToActiveMatch(t *testing.T) {
	env := newTestServer(t)
	id := env.startMatch(t, "p1")

	rr := env.do(t, "POST", "/match", url.Values{}, "p1")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/match/"+id, rr.Result().Header.Get("Location"))

	doc := parse(t, env.do(t, "GET", "/", nil, "p1"))
	assert.Equal(t, "/match/"+id, doc.Find("#resume").AttrOr("href", ""))
}

func TestMatchPageHasBoardAndSSE(t *testing.T) {
	env := newTestServer(t)
	id := env.startMatch(t, "p1")

	rr := env.do(t, "GET", "/match/"+id, nil, "p1")
	require.Equal(t, http.StatusOK, rr.Code)
	doc := parse(t, rr)
	assert.Equal(t, "/match/"+id+"/events", doc.Find("[hx-ext=sse]").AttrOr("sse-connect", ""))
	assert.Equal(t, 9, doc.Find("#board button[data-cell]").Length())
	assert.Contains(t, doc.Find("#board .status").Text(), "Your turn (X)")
}

func TestPlayReturnsFragmentWithAIReply(t *testing.T) {
	env := newTestServer(t)
	id := env.startMatch(t, "p1")

	rr := env.do(t, "POST", "/match/"+id+"/play", url.Values{"cell": {"0"}}, "p1")
	require.Equal(t, http.StatusOK, rr.Code)
	doc := parse(t, rr)
	require.Equal(t, 1, doc.Find("#board").Length())
	assert.Equal(t, "X", strings.TrimSpace(doc.Find(`button[data-cell="0"]`).Text()))
	assert.Equal(t, "O", strings.TrimSpace(doc.Find(`button[data-cell="4"]`).Text()), "AI takes center")

	rr = env.do(t, "POST", "/match/"+id+"/play", url.Values{"cell": {"4"}}, "p1")
	assert.Contains(t, parse(t, rr).Find(".alert").Text(), "Cell is occupied")

	rr = env.do(t, "POST", "/match/"+id+"/play", url.Values{"cell": {"1"}}, "intruder")
	assert.Contains(t, parse(t, rr).Find(".alert").Text(), "spectator")

	rr = env.do(t, "POST", "/match/missing/play", url.Values{"cell": {"1"}}, "p1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFullMatchUpdatesLeaderboard(t *testing.T) {
	env := newTestServer(t)
	id := env.startMatch(t, "p1")

	// The human always takes the lowest free cell; the engine blocks at 2
	// and wins on the 2-4-6 diagonal.
	for i := 0; i < 5; i++ {
		ms, ok := env.svc.Get(id)
		require.True(t, ok)
		if ms.Game.Over {
			break
		}
		free := ms.Game.Board.EmptyCells()
		rr := env.do(t, "POST", "/match/"+id+"/play", url.Values{"cell": {strconv.Itoa(free[0])}}, "p1")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	ms, _ := env.svc.Get(id)
	require.True(t, ms.Game.Over)
	require.NotNil(t, ms.Result)

	rank, entry, ok := env.board.Rank("p1")
	require.True(t, ok)
	assert.Equal(t, 1, rank)
	assert.Equal(t, ms.Result.Stats.WeeklyPoints, entry.WeeklyPoints)

	doc := parse(t, env.do(t, "GET", "/leaderboard", nil, "p1"))
	assert.Equal(t, 1, doc.Find("#leaderboard tr td:nth-child(2)").Length())
	assert.Equal(t, "p1", doc.Find("#leaderboard tr td:nth-child(2)").First().Text())
	assert.Contains(t, doc.Find("#rank").Text(), "#1")
}

func TestStatsJSON(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, "GET", "/stats", nil, "p1")
	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "p1", got["player"])
	assert.EqualValues(t, 10, got["dailyGamesRemaining"])
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	env := newTestServer(t)
	id := env.startMatch(t, "p1")
	rr := env.do(t, "GET", "/match/"+id+"/events", nil, "p1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Result().Header.Get("Content-Type"), "text/event-stream"))
}

func TestWriteEventPrefixesEveryLine(t *testing.T) {
	var b strings.Builder
	writeEvent(&b, "board", []byte("<div>\n  x\n</div>\n"))
	assert.Equal(t, "event: board\ndata: <div>\ndata:   x\ndata: </div>\n\n", b.String())
}

func TestLeaderboardWebSocketPushesUpdates(t *testing.T) {
	env := newTestServer(t)
	srv := httptest.NewServer(env.h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/leaderboard/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg leaderboardMsg
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Empty(t, msg.Entries)

	// The handler subscribes before it sends the snapshot.
	require.NoError(t, env.board.Sync(context.Background(), leaderboard.Update{
		Player: "p1", Outcome: domain.Win, Points: 10, WeeklyPoints: 10,
	}))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "update", msg.Type)
	require.NotEmpty(t, msg.Entries)
	assert.Equal(t, "p1", msg.Entries[0].Player)
}
