package skill

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	notesDir := writeSkill(t, root, "notes", "skill.yaml", manifestYAML("notes"))

	var (
		mu      sync.Mutex
		changed []string
	)
	w, err := NewWatcher(zerolog.Nop(), root, 100*time.Millisecond, func(dir string) {
		mu.Lock()
		changed = append(changed, dir)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Stop()

	// a burst of writes collapses into one notification
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(notesDir, "skill.yaml"), []byte(manifestYAML("notes")), 0644))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 2*time.Second, 20*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{notesDir}, changed)
	mu.Unlock()

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_SkillDir(t *testing.T) {
	w := &Watcher{root: filepath.Clean("/skills")}

	dir, ok := w.skillDir("/skills/notes/skill.yaml")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/skills", "notes"), dir)

	dir, ok = w.skillDir("/skills/notes/sql/schema.sql")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/skills", "notes"), dir)

	_, ok = w.skillDir("/skills")
	assert.False(t, ok)
	_, ok = w.skillDir("/elsewhere/x")
	assert.False(t, ok)
}
