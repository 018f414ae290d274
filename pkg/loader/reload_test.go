package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/skillhost/pkg/skill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloadOneReplacesInstance(t *testing.T) {
	h := newHarness(t)
	h.register("a", "x")
	h.register("b", "")
	h.write("a", manifest("a", "1.0.0"))
	h.write("b", manifest("b", "1.0.0", "a"))

	l := h.loader(skill.PolicySkipMissing, Options{})
	_, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	old := h.latest["a"]

	h.write("a", manifest("a", "1.1.0"))
	fresh, err := l.ReloadOne(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, "1.1.0", fresh.Manifest.Version)
	assert.True(t, old.closed.Load())
	assert.Equal(t, []string{"a", "b"}, h.rt.Skills().Names(), "position is kept")

	got, ok := h.rt.Skills().Get("a")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	assert.Equal(t, 1, h.rt.Bus().SubscriberCount("x"))
	require.NoError(t, h.rt.Bus().Publish(context.Background(), "x", "ping"))
	assert.Equal(t, []string{"a#2:ping"}, h.rec.list())

	out, err := l.Invoke(context.Background(), "a", "whoami", nil)
	require.NoError(t, err)
	assert.Equal(t, "a#2", out)
}

func TestReloadOneKeepsOldInstanceOnFailure(t *testing.T) {
	h := newHarness(t)
	var fail atomic.Bool
	h.registerFunc("a", func(skill.Env) (skill.Skill, error) {
		if fail.Load() {
			return nil, errors.New("bad build")
		}
		return h.build("a", "x"), nil
	})
	h.write("a", manifest("a", "1.0.0"))

	l := h.loader(skill.PolicySkipMissing, Options{})
	_, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	old := h.latest["a"]

	fail.Store(true)
	_, err = l.ReloadOne(context.Background(), "a")
	require.Error(t, err)

	got, ok := h.rt.Skills().Get("a")
	require.True(t, ok)
	assert.Same(t, old, got.Handle)
	assert.False(t, old.closed.Load())
	assert.Equal(t, 1, h.rt.Bus().SubscriberCount("x"))
}

func TestReloadOneRequirements(t *testing.T) {
	h := newHarness(t)
	h.register("a", "")
	h.register("c", "")
	h.write("a", manifest("a", "1.0.0"))

	l := h.loader(skill.PolicySkipMissing, Options{})
	_, err := l.LoadAll(context.Background())
	require.NoError(t, err)

	h.write("c", manifest("c", "1.0.0", "b"))
	_, err = l.ReloadOne(context.Background(), "c")
	var missing *skill.MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "b", missing.Missing)

	h.write("c", manifest("c", "1.0.0", "a@^2.0.0"))
	_, err = l.ReloadOne(context.Background(), "c")
	var conflict *skill.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "1.0.0", conflict.Actual)

	h.write("c", manifest("c", "1.0.0", "a@^1.0.0"))
	_, err = l.ReloadOne(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, h.rt.Skills().Names())

	_, err = l.ReloadOne(context.Background(), "nope")
	assert.ErrorIs(t, err, skill.ErrSkillNotFound)
}

func TestReloadOneRespectsDependentConstraints(t *testing.T) {
	h := newHarness(t)
	h.register("a", "")
	h.register("b", "")
	h.write("a", manifest("a", "1.0.0"))
	h.write("b", manifest("b", "1.0.0", "a@^1.0.0"))

	l := h.loader(skill.PolicySkipMissing, Options{})
	_, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	old := h.latest["a"]

	h.write("a", manifest("a", "2.0.0"))
	_, err = l.ReloadOne(context.Background(), "a")
	var conflict *skill.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "b", conflict.Skill)
	assert.Equal(t, "a", conflict.Dependency)
	assert.Equal(t, "^1.0.0", conflict.Constraint)
	assert.Equal(t, "2.0.0", conflict.Actual)

	got, ok := h.rt.Skills().Get("a")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", got.Manifest.Version)
	assert.Same(t, old, got.Handle)
	assert.False(t, old.closed.Load())
	assert.Equal(t, []string{"a", "b"}, h.built, "the rejected version is never built")

	h.write("a", manifest("a", "1.4.0"))
	fresh, err := l.ReloadOne(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "1.4.0", fresh.Manifest.Version)
}

func TestUnload(t *testing.T) {
	h := newHarness(t)
	h.register("a", "")
	h.register("b", "x")
	h.write("a", manifest("a", "1.0.0"))
	h.write("b", manifest("b", "1.0.0", "a"))

	l := h.loader(skill.PolicySkipMissing, Options{})
	_, err := l.LoadAll(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, l.Unload(context.Background(), "a"), skill.ErrHasDependents)

	require.NoError(t, l.Unload(context.Background(), "b"))
	assert.True(t, h.latest["b"].closed.Load())
	assert.Equal(t, 0, h.rt.Bus().SubscriberCount("x"))
	assert.Equal(t, []string{"a"}, h.rt.Skills().Names())
}

func TestWatchReloadsChangedSkill(t *testing.T) {
	h := newHarness(t)
	h.register("a", "")
	h.register("b", "")
	h.write("a", manifest("a", "1.0.0"))
	h.write("b", manifest("b", "1.0.0"))

	l := h.loader(skill.PolicySkipMissing, Options{Debounce: 50 * time.Millisecond})
	_, err := l.LoadAll(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	h.write("a", manifest("a", "2.0.0"))
	assert.Eventually(t, func() bool {
		ls, ok := h.rt.Skills().Get("a")
		return ok && ls.Manifest.Version == "2.0.0"
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.RemoveAll(filepath.Join(h.root, "b")))
	assert.Eventually(t, func() bool {
		_, ok := h.rt.Skills().Get("b")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
