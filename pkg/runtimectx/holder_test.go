package runtimectx_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/harun/skillhost/pkg/runtimectx"
	"github.com/harun/skillhost/pkg/skill"
	"github.com/harun/skillhost/pkg/sqlguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func countingOptions(opens *atomic.Int32) runtimectx.Options {
	opts := runtimectx.DefaultOptions()
	opts.Open = func(driver, dsn string) (*sql.DB, error) {
		opens.Add(1)
		return sql.Open(driver, dsn)
	}
	return opts
}

func TestHolderConcurrentFirstUse(t *testing.T) {
	var opens atomic.Int32
	h := runtimectx.NewHolder(countingOptions(&opens))
	defer h.Close()

	assert.Equal(t, runtimectx.StateUninitialized, h.State())

	const workers = 32
	results := make([]*runtimectx.Context, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			c, err := h.Get()
			results[i] = c
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), opens.Load())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, runtimectx.StateReady, h.State())
}

func TestHolderFailedOpenIsRetried(t *testing.T) {
	var calls atomic.Int32
	opts := runtimectx.DefaultOptions()
	opts.Open = func(driver, dsn string) (*sql.DB, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("disk on fire")
		}
		return sql.Open(driver, dsn)
	}
	h := runtimectx.NewHolder(opts)
	defer h.Close()

	_, err := h.Get()
	require.Error(t, err)
	assert.Equal(t, runtimectx.StateUninitialized, h.State())

	c, err := h.Get()
	require.NoError(t, err)
	assert.Equal(t, runtimectx.StateReady, c.State())
}

func TestCloseReleasesDatabaseOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	opts := runtimectx.DefaultOptions()
	opts.Open = func(string, string) (*sql.DB, error) { return db, nil }
	h := runtimectx.NewHolder(opts)

	_, err = h.Get()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Close())
		}()
	}
	wg.Wait()

	assert.NoError(t, h.Close())
	assert.Equal(t, runtimectx.StateClosed, h.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUseAfterClose(t *testing.T) {
	h := runtimectx.NewHolder(runtimectx.DefaultOptions())
	c, err := h.Get()
	require.NoError(t, err)

	conn, err := c.Connection("notes", sqlguard.NewCapabilities(sqlguard.Read))
	require.NoError(t, err)

	require.NoError(t, h.Close())

	_, err = c.Connection("notes", sqlguard.NewCapabilities(sqlguard.Read))
	assert.ErrorIs(t, err, runtimectx.ErrConnectionClosed)

	_, err = conn.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, runtimectx.ErrConnectionClosed)

	err = c.MutateRegistry(func(*skill.Registry) error { return nil })
	assert.ErrorIs(t, err, runtimectx.ErrConnectionClosed)

	again, err := h.Get()
	require.NoError(t, err)
	assert.Same(t, c, again, "a closed holder keeps returning the closed context")
}

func TestResetRebuilds(t *testing.T) {
	var opens atomic.Int32
	h := runtimectx.NewHolder(countingOptions(&opens))
	defer h.Close()

	first, err := h.Get()
	require.NoError(t, err)
	first.Cache().Set("k", "v")

	require.NoError(t, h.Reset())
	assert.Equal(t, runtimectx.StateClosed, first.State())
	assert.Equal(t, runtimectx.StateUninitialized, h.State())

	second, err := h.Get()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), opens.Load())

	_, ok := second.Cache().Get("k")
	assert.False(t, ok)
}

func TestShutdownIsSafeAfterClose(t *testing.T) {
	h := runtimectx.NewHolder(runtimectx.DefaultOptions())
	assert.NotPanics(t, h.Shutdown, "shutdown before first use")

	_, err := h.Get()
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.NotPanics(t, h.Shutdown)
}

func TestDSN(t *testing.T) {
	opts := runtimectx.DefaultOptions()
	assert.Equal(t, ":memory:?_busy_timeout=5000&_foreign_keys=on", runtimectx.DSN(opts))

	opts.Path = "/var/lib/skillhost/host.db"
	dsn := runtimectx.DSN(opts)
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_foreign_keys=on")
}
