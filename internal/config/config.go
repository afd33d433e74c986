// Package config reads server settings from flags, falling back to
// environment variables and then to built-in defaults.
package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jaminalder/tictactoe-arena/internal/ai"
	"github.com/jaminalder/tictactoe-arena/internal/ledger"
)

// Config holds everything cmd/server needs to wire the application.
type Config struct {
	Addr       string
	ThinkDelay time.Duration
	EntryFee   uint64
	DailyLimit int
	// ArchiveDir enables the parquet match archive when non-empty.
	ArchiveDir   string
	ArchiveFlush int
	LogFormat    string
	LogLevel     string
	Policy       ai.Policy
}

// Load parses args (without the program name). Env vars supply the defaults
// so a flag always wins.
func Load(args []string) (Config, error) {
	return load(args, os.Getenv)
}

func load(args []string, getenv func(string) string) (Config, error) {
	e := &env{get: getenv}
	var c Config
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&c.Addr, "addr", e.str("ADDR", ":8080"), "HTTP listen address")
	fs.DurationVar(&c.ThinkDelay, "think-delay", e.duration("THINK_DELAY", time.Second), "Delay before the AI replies")
	fs.Uint64Var(&c.EntryFee, "entry-fee", e.uint("ENTRY_FEE", ledger.DefaultEntryFee), "Entry fee in wei")
	fs.IntVar(&c.DailyLimit, "daily-limit", e.int("DAILY_LIMIT", 10), "Games per player per UTC day")
	fs.StringVar(&c.ArchiveDir, "archive-dir", e.str("ARCHIVE_DIR", ""), "Directory for parquet match batches (empty disables)")
	fs.IntVar(&c.ArchiveFlush, "archive-flush", e.int("ARCHIVE_FLUSH", 100), "Flush the archive after this many matches")
	fs.StringVar(&c.LogFormat, "log-format", e.str("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&c.LogLevel, "log-level", e.str("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	p := ai.DefaultPolicy
	fs.Float64Var(&c.Policy.HighThreshold, "ai-high-threshold", e.float("AI_HIGH_THRESHOLD", p.HighThreshold), "Score above which the AI blunders most")
	fs.Float64Var(&c.Policy.HighRate, "ai-high-rate", e.float("AI_HIGH_RATE", p.HighRate), "Blunder rate above the high threshold")
	fs.Float64Var(&c.Policy.MidThreshold, "ai-mid-threshold", e.float("AI_MID_THRESHOLD", p.MidThreshold), "Score from which the AI starts to blunder")
	fs.Float64Var(&c.Policy.MidRate, "ai-mid-rate", e.float("AI_MID_RATE", p.MidRate), "Blunder rate from the mid threshold")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if e.err != nil {
		return Config{}, e.err
	}
	return c, c.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("config: addr is required")
	case c.ThinkDelay < 0:
		return fmt.Errorf("config: think delay %s is negative", c.ThinkDelay)
	case c.DailyLimit <= 0:
		return fmt.Errorf("config: daily limit must be positive, got %d", c.DailyLimit)
	case c.ArchiveFlush <= 0:
		return fmt.Errorf("config: archive flush must be positive, got %d", c.ArchiveFlush)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	for _, r := range []float64{c.Policy.HighRate, c.Policy.MidRate} {
		if r < 0 || r > 1 {
			return fmt.Errorf("config: blunder rate %v outside [0,1]", r)
		}
	}
	if c.Policy.MidThreshold > c.Policy.HighThreshold {
		return fmt.Errorf("config: mid threshold %v above high threshold %v", c.Policy.MidThreshold, c.Policy.HighThreshold)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Ledger returns the ledger settings implied by c.
func (c Config) Ledger() ledger.Config {
	lc := ledger.DefaultConfig()
	lc.EntryFee = c.EntryFee
	lc.DailyLimit = c.DailyLimit
	return lc
}

// NewLogger builds the process logger described by c.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return l, nil
}

// env reads typed values from the environment and remembers the first
// malformed one.
type env struct {
	get func(string) string
	err error
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("config: env %s: %w", key, err)
	}
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return i
}

func (e *env) uint(key string, def uint64) uint64 {
	v := e.get(key)
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return u
}

func (e *env) float(key string, def float64) float64 {
	v := e.get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
