package skill

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSkill struct {
	name string
}

func (s *stubSkill) Commands() []Command {
	return []Command{{Name: s.name + ".ping"}}
}

func loaded(m *Manifest) *LoadedSkill {
	return &LoadedSkill{Manifest: m, Handle: &stubSkill{name: m.Name}, LoadedAt: time.Now()}
}

func TestRegistry(t *testing.T) {
	t.Run("keeps insertion order", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add(loaded(mf("zeta"))))
		require.NoError(t, r.Add(loaded(mf("alpha"))))
		require.NoError(t, r.Add(loaded(mf("mid", "zeta"))))

		assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Names())
		assert.Equal(t, 3, r.Len())
		list := r.List()
		require.Len(t, list, 3)
		assert.Equal(t, "mid", list[2].Name())
	})

	t.Run("replace keeps dependents satisfied", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add(loaded(mf("a"))))
		require.NoError(t, r.Add(loaded(mf("b", "a@^1.0.0"))))

		next := mf("a")
		next.Version = "2.0.0"
		_, err := r.Replace(loaded(next))
		var conflict *VersionConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "b", conflict.Skill)
		assert.ErrorAs(t, CheckDependents(r, next), &conflict)

		got, _ := r.Get("a")
		assert.Equal(t, "1.0.0", got.Manifest.Version)

		next.Version = "1.2.0"
		assert.NoError(t, CheckDependents(r, next))
		_, err = r.Replace(loaded(next))
		assert.NoError(t, err)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add(loaded(mf("a"))))
		assert.ErrorIs(t, r.Add(loaded(mf("a"))), ErrDuplicateSkill)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("requires dependencies first", func(t *testing.T) {
		r := NewRegistry()
		err := r.Add(loaded(mf("b", "a")))

		var missing *MissingDependencyError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "a", missing.Missing)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("replace keeps position", func(t *testing.T) {
		r := NewRegistry()
		first := loaded(mf("a"))
		require.NoError(t, r.Add(first))
		require.NoError(t, r.Add(loaded(mf("b"))))

		next := loaded(mf("a"))
		old, err := r.Replace(next)
		require.NoError(t, err)
		assert.Same(t, first, old)

		got, ok := r.Get("a")
		require.True(t, ok)
		assert.Same(t, next, got)
		assert.Equal(t, []string{"a", "b"}, r.Names())

		_, err = r.Replace(loaded(mf("ghost")))
		assert.ErrorIs(t, err, ErrSkillNotFound)
	})

	t.Run("remove refuses skills with dependents", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add(loaded(mf("a"))))
		require.NoError(t, r.Add(loaded(mf("b", "a"))))

		_, err := r.Remove("a")
		assert.ErrorIs(t, err, ErrHasDependents)

		_, err = r.Remove("b")
		require.NoError(t, err)
		_, err = r.Remove("a")
		require.NoError(t, err)
		assert.Equal(t, 0, r.Len())

		_, err = r.Remove("a")
		assert.ErrorIs(t, err, ErrSkillNotFound)
	})

	t.Run("clear returns the removed entries", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add(loaded(mf("a"))))
		require.NoError(t, r.Add(loaded(mf("b", "a"))))

		cleared := r.Clear()
		require.Len(t, cleared, 2)
		assert.Equal(t, "a", cleared[0].Name())
		assert.Equal(t, 0, r.Len())
		_, ok := r.Get("a")
		assert.False(t, ok)
	})

	t.Run("view exposes commands", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add(loaded(mf("notes"))))

		var view View = r
		ls, ok := view.Get("notes")
		require.True(t, ok)
		cmd, ok := FindCommand(ls.Handle, "notes.ping")
		assert.True(t, ok)
		assert.Equal(t, "notes.ping", cmd.Name)
	})
}
