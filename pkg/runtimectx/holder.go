package runtimectx

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/skillhost/pkg/cache"
	"github.com/harun/skillhost/pkg/eventbus"
	"github.com/harun/skillhost/pkg/sqlguard"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DriverName is the database/sql driver the shared connection uses
const DriverName = "sqlite3"

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// OpenFunc opens the shared database
type OpenFunc func(driver, dsn string) (*sql.DB, error)

// Options configures the runtime a Holder builds
type Options struct {
	Path             string
	BusyTimeout      time.Duration
	StatementTimeout time.Duration
	CloseTimeout     time.Duration
	DDLPolicy        sqlguard.DDLPolicy
	BusMode          eventbus.Mode
	CacheSize        int
	CacheTTL         time.Duration
	Logger           zerolog.Logger

	// Open replaces sql.Open, mostly for tests
	Open OpenFunc
}

// DefaultOptions returns options for an in-memory runtime
func DefaultOptions() Options {
	return Options{
		Path:             MemoryPath,
		BusyTimeout:      5 * time.Second,
		StatementTimeout: 30 * time.Second,
		CloseTimeout:     10 * time.Second,
		DDLPolicy:        sqlguard.DDLRequiresDDL,
		BusMode:          eventbus.ModeSilent,
		CacheSize:        cache.DefaultSize,
		Logger:           zerolog.Nop(),
	}
}

// DSN builds the go-sqlite3 connection string for opts
func DSN(opts Options) string {
	path := opts.Path
	if path == "" {
		path = MemoryPath
	}

	params := url.Values{}
	params.Set("_foreign_keys", "on")
	if opts.BusyTimeout > 0 {
		params.Set("_busy_timeout", strconv.FormatInt(opts.BusyTimeout.Milliseconds(), 10))
	}
	if path != MemoryPath {
		params.Set("_journal_mode", "WAL")
	}
	return path + "?" + params.Encode()
}

// Open builds a ready Context
func Open(opts Options) (*Context, error) {
	open := opts.Open
	if open == nil {
		open = sql.Open
	}

	db, err := open(DriverName, DSN(opts))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection: every skill sees the same database, including :memory:
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	c, err := newContext(db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.logger.Info().Str("path", opts.Path).Msg("Runtime ready")
	return c, nil
}

// Holder lazily builds one Context and hands the same instance to every
// caller. A failed build is not remembered.
type Holder struct {
	opts    Options
	mu      sync.Mutex
	current atomic.Pointer[Context]
}

// NewHolder creates a holder; nothing is opened until Get
func NewHolder(opts Options) *Holder {
	return &Holder{opts: opts}
}

// Get returns the shared Context, building it on first use. After Close it
// keeps returning the closed Context so late callers fail loudly.
func (h *Holder) Get() (*Context, error) {
	if c := h.current.Load(); c != nil {
		return c, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c := h.current.Load(); c != nil {
		return c, nil
	}

	c, err := Open(h.opts)
	if err != nil {
		return nil, err
	}
	h.current.Store(c)
	return c, nil
}

// State reports the state of the held Context
func (h *Holder) State() State {
	c := h.current.Load()
	if c == nil {
		return StateUninitialized
	}
	return c.State()
}

// Close closes the held Context, if any. Safe to call more than once.
func (h *Holder) Close() error {
	c := h.current.Load()
	if c == nil {
		return nil
	}
	return c.Close()
}

// Shutdown is the process exit hook. It never panics and logs instead of
// returning errors.
func (h *Holder) Shutdown() {
	defer func() {
		if r := recover(); r != nil {
			h.opts.Logger.Error().Interface("panic", r).Msg("Runtime shutdown panicked")
		}
	}()
	if err := h.Close(); err != nil {
		h.opts.Logger.Warn().Err(err).Msg("Runtime shutdown")
	}
}

// reset closes the held Context and forgets it so the next Get builds a new one
func (h *Holder) reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.current.Swap(nil)
	if c == nil {
		return nil
	}
	return c.Close()
}
