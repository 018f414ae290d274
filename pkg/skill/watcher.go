package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to settle
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports changed skill directories under a skills root. Events are
// debounced per directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	root     string
	onChange func(dir string)
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher watches root and every existing skill directory below it
func NewWatcher(logger zerolog.Logger, root string, debounce time.Duration, onChange func(dir string)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fsw,
		logger:   logger.With().Str("component", "skill-watcher").Logger(),
		root:     filepath.Clean(root),
		onChange: onChange,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if err := w.addTree(); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()

	return w, nil
}

func (w *Watcher) addTree() error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(w.root, entry.Name())
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to watch skill directory")
		}
	}
	return nil
}

// Stop stops the watcher and cancels pending notifications
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		<-w.doneCh

		w.mu.Lock()
		for dir, t := range w.timers {
			t.Stop()
			delete(w.timers, dir)
		}
		w.mu.Unlock()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Skill watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		return
	}

	dir, ok := w.skillDir(event.Name)
	if !ok {
		return
	}

	// new skill directories need their own watch
	if event.Has(fsnotify.Create) && filepath.Clean(event.Name) == dir {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if err := w.watcher.Add(dir); err != nil {
				w.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to watch new skill directory")
			}
		}
	}

	w.logger.Debug().
		Str("file", filepath.Base(event.Name)).
		Str("op", event.Op.String()).
		Msg("Skill change detected")

	w.schedule(dir)
}

// skillDir maps a path to the immediate child of root containing it
func (w *Watcher) skillDir(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return filepath.Join(w.root, first), true
}

func (w *Watcher) schedule(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopCh:
		return
	default:
	}

	if t, ok := w.timers[dir]; ok {
		t.Stop()
	}
	w.timers[dir] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, dir)
		w.mu.Unlock()

		w.onChange(dir)
	})
}
