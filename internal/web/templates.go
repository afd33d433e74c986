package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"github.com/jaminalder/tictactoe-arena/internal/domain"
)

type templates struct {
	index       *template.Template
	game        *template.Template
	board       *template.Template
	leaderboard *template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"iter": func(n int) []int {
			a := make([]int, n)
			for i := range a {
				a[i] = i
			}
			return a
		},
		"cellSymbol": func(c domain.Cell) string { return c.String() },
		"add":        func(a, b int) int { return a + b },
		"mul":        func(a, b int) int { return a * b },
	}
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Funcs(funcs()).Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>TicTacToe vs AI</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
	template.Must(base.New("board").Parse(boardTemplate))

	index := template.Must(template.Must(base.Clone()).New("content").Parse(indexTemplate))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(`
<h1>TicTacToe vs AI</h1>
<p><a href="/">Home</a> · <a href="/leaderboard">Leaderboard</a></p>
<div hx-ext="sse" sse-connect="/match/{{.ID}}/events">
  <div sse-swap="board" hx-swap="innerHTML">{{template "board" .}}</div>
</div>`))
	lb := template.Must(template.Must(base.Clone()).New("content").Parse(leaderboardTemplate))
	board := template.Must(template.New("board_only").Funcs(funcs()).Parse(boardTemplate))
	return &templates{index: index, game: game, board: board, leaderboard: lb}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	if name == "" {
		_ = t.Execute(&buf, data)
	} else {
		_ = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes()
}

const indexTemplate = `
<h1>TicTacToe vs AI</h1>
<p>Player <code id="player">{{.Player}}</code> · <a href="/leaderboard">Leaderboard</a></p>
{{if .Error}}<div class="alert">{{.Error}}</div>{{end}}
<ul id="stats">
  <li>Weekly points: <span id="weekly">{{.Stats.WeeklyPoints}}</span></li>
  <li>Games today: {{.Stats.TodayGames}} ({{.Stats.DailyGamesRemaining}} left)</li>
  <li>Record: {{.Stats.Wins}}W {{.Stats.Draws}}D {{.Stats.Losses}}L</li>
</ul>
{{if .ActiveID}}
<p><a id="resume" href="/match/{{.ActiveID}}">Resume your match</a></p>
{{else if .Paid}}
<form action="/match" method="post">
  <select name="symbol">
    <option value="">Auto</option>
    <option value="X">X</option>
    <option value="O">O</option>
  </select>
  <button>New match</button>
</form>
{{else if not .CanPlay}}
<p id="limit">Daily game limit reached. Come back tomorrow.</p>
{{else}}
<form action="/pay" method="post">
  <input type="hidden" name="amount" value="{{.Fee}}">
  <button>Pay to play</button>
</form>
{{end}}
`

const boardTemplate = `
<div id="board">
  {{if .Error}}
  <div class="alert">{{.Error}}</div>
  {{end}}
  <p class="status">{{.Status}}</p>
  {{range $r := iter 3}}
  <div class="row">
    {{range $c := iter 3}}
      {{$i := add (mul $r 3) $c}}
      <form hx-post="/match/{{$.ID}}/play" hx-target="#board" hx-swap="outerHTML" method="post">
        <input type="hidden" name="cell" value="{{$i}}">
        <button type="submit" data-cell="{{$i}}" {{if $.Locked}}disabled{{end}}>{{cellSymbol (index $.Game.Board $i)}}</button>
      </form>
    {{end}}
  </div>
  {{end}}
  {{if .Game.Over}}<p class="result"><a href="/">Back</a></p>{{end}}
</div>
`

const leaderboardTemplate = `
<h1>Weekly Leaderboard</h1>
<p><a href="/">Home</a></p>
{{if .Rank}}<p id="rank">Your rank: #{{.Rank}} with {{.Mine.WeeklyPoints}} points</p>{{end}}
{{if .Entries}}
<table id="leaderboard">
  <tr><th>#</th><th>Player</th><th>Points</th><th>W</th><th>D</th><th>L</th></tr>
  {{range $i, $e := .Entries}}
  <tr><td>{{add $i 1}}</td><td>{{$e.Player}}</td><td>{{$e.WeeklyPoints}}</td><td>{{$e.Wins}}</td><td>{{$e.Draws}}</td><td>{{$e.Losses}}</td></tr>
  {{end}}
</table>
{{else}}
<p>No weekly leaderboard data yet.</p>
{{end}}
<script>
  const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/leaderboard/ws");
  let first = true;
  ws.onmessage = () => { if (first) { first = false; return; } location.reload(); };
</script>
`

// Helper to set cookie. The player ID stands in for a wallet address.
func ensurePlayerCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie("player_id"); err == nil && c.Value != "" {
		return c.Value
	}
	v := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: "player_id", Value: v, Path: "/", HttpOnly: true})
	return v
}
