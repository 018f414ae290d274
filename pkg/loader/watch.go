package loader

import (
	"context"
	"errors"

	"github.com/harun/skillhost/pkg/skill"
)

// Watch reloads local skills whose directory changes until ctx is done. A
// directory that no longer holds a manifest unloads its skill.
func (l *Loader) Watch(ctx context.Context) error {
	w, err := skill.NewWatcher(l.logger, l.store.LocalDir(), l.debounce, func(dir string) {
		l.handleChange(ctx, dir)
	})
	if err != nil {
		return err
	}

	l.logger.Info().Str("dir", l.store.LocalDir()).Msg("Watching skills")
	<-ctx.Done()
	return w.Stop()
}

func (l *Loader) handleChange(ctx context.Context, dir string) {
	if ctx.Err() != nil {
		return
	}

	m, err := l.store.LoadDir(dir)
	if err != nil {
		if errors.Is(err, skill.ErrSkillNotFound) {
			l.handleRemoved(ctx, dir)
			return
		}
		l.logger.Warn().Err(err).Str("dir", dir).Msg("Changed skill is invalid, keeping current instance")
		return
	}

	if _, err := l.ReloadOne(ctx, m.Name); err != nil {
		l.logger.Warn().Err(err).Str("skill", m.Name).Msg("Hot reload failed")
	}
}

func (l *Loader) handleRemoved(ctx context.Context, dir string) {
	l.mu.Lock()
	name, ok := l.dirs[dir]
	l.mu.Unlock()
	if !ok {
		return
	}
	if err := l.Unload(ctx, name); err != nil {
		l.logger.Warn().Err(err).Str("skill", name).Msg("Removed skill could not be unloaded")
	}
}
