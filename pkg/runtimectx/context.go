// Package runtimectx owns the state every loaded skill shares: the database
// handle, the event bus, the registry and the cache.
package runtimectx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/harun/skillhost/pkg/cache"
	"github.com/harun/skillhost/pkg/eventbus"
	"github.com/harun/skillhost/pkg/skill"
	"github.com/harun/skillhost/pkg/sqlguard"
	"github.com/rs/zerolog"
)

// ErrConnectionClosed is returned by every data call after Close
var ErrConnectionClosed = sqlguard.ErrConnectionClosed

// State is the lifecycle state of a Context
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNINITIALIZED"
	}
}

// Context is the shared runtime. The raw database handle never leaves it;
// skills reach the database only through Connection.
type Context struct {
	mu       sync.RWMutex
	state    State
	db       *sql.DB
	bus      *eventbus.Bus
	registry *skill.Registry
	cache    *cache.Cache

	ddlPolicy        sqlguard.DDLPolicy
	statementTimeout time.Duration
	closeTimeout     time.Duration
	logger           zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newContext(db *sql.DB, opts Options) (*Context, error) {
	c, err := cache.New(opts.CacheSize, opts.CacheTTL)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.With().Str("component", "runtime").Logger()
	return &Context{
		state:            StateReady,
		db:               db,
		bus:              eventbus.New(eventbus.WithMode(opts.BusMode), eventbus.WithLogger(opts.Logger)),
		registry:         skill.NewRegistry(),
		cache:            c,
		ddlPolicy:        opts.DDLPolicy,
		statementTimeout: opts.StatementTimeout,
		closeTimeout:     opts.CloseTimeout,
		logger:           logger,
	}, nil
}

// State returns the lifecycle state
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connection returns a permission-enforcing handle for skill. The capability
// set cannot be changed afterwards.
func (c *Context) Connection(skillName string, granted sqlguard.Capabilities) (*sqlguard.Conn, error) {
	if c.State() == StateClosed {
		return nil, ErrConnectionClosed
	}
	return sqlguard.New(sqlguard.SourceFunc(c.source), skillName, granted,
		sqlguard.WithDDLPolicy(c.ddlPolicy),
		sqlguard.WithTimeout(c.statementTimeout),
		sqlguard.WithLogger(c.logger),
	), nil
}

// DDLPolicy returns the policy handed to every connection
func (c *Context) DDLPolicy() sqlguard.DDLPolicy {
	return c.ddlPolicy
}

func (c *Context) source() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateClosed || c.db == nil {
		return nil, ErrConnectionClosed
	}
	return c.db, nil
}

// Bus returns the shared event bus
func (c *Context) Bus() *eventbus.Bus {
	return c.bus
}

// Cache returns the shared cache
func (c *Context) Cache() *cache.Cache {
	return c.cache
}

// Skills returns a read-only view of the registry
func (c *Context) Skills() skill.View {
	return c.registry
}

// MutateRegistry runs fn with exclusive access to the registry
func (c *Context) MutateRegistry(fn func(*skill.Registry) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrConnectionClosed
	}
	return fn(c.registry)
}

// Close closes every loaded skill in reverse load order, then releases the
// database and clears the registry, cache and bus. Only the first call has
// any effect. Skill Close hooks still see an open database.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		entries := c.registry.List()
		c.closeSkills(entries)

		c.mu.Lock()
		defer c.mu.Unlock()

		c.state = StateClosed
		c.registry.Clear()
		c.bus.Clear()
		c.cache.Purge()

		if c.db != nil {
			if err := c.db.Close(); err != nil {
				c.closeErr = fmt.Errorf("close database: %w", err)
			}
			c.db = nil
		}
		c.logger.Info().Int("skills", len(entries)).Msg("Runtime closed")
	})
	return c.closeErr
}

func (c *Context) closeSkills(entries []*skill.LoadedSkill) {
	ctx := context.Background()
	if c.closeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.closeTimeout)
		defer cancel()
	}

	for i := len(entries) - 1; i >= 0; i-- {
		closer, ok := entries[i].Handle.(skill.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(ctx); err != nil {
			c.logger.Warn().Err(err).Str("skill", entries[i].Name()).Msg("Skill close failed")
		}
	}
}
