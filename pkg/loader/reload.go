package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/skillhost/internal/observability"
	"github.com/harun/skillhost/internal/tracing"
	"github.com/harun/skillhost/pkg/skill"
	"go.opentelemetry.io/otel/attribute"
)

// ReloadOne re-reads the named skill and swaps in a fresh instance. The old
// instance keeps serving until the new one is fully built; then its
// subscriptions are dropped and it is closed. A skill that is not loaded yet
// is loaded. Skills that require it keep their current instances, and the
// new version must satisfy their constraints.
func (l *Loader) ReloadOne(ctx context.Context, name string) (*skill.LoadedSkill, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx = tracing.NewLoadContext(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "loader.ReloadOne", attribute.String("skill", name))
	defer span.End()

	ls, err := l.reload(ctx, name)
	observability.RecordSkillReload(name, err == nil)
	if err != nil {
		tracing.Fail(span, err)
		observability.RecordLifecycleAudit(ctx, name, "reload", "failure", map[string]any{"error": err.Error()})
		l.logger.Error().Err(err).Str("skill", name).Msg("Skill reload failed")
		return nil, err
	}

	observability.RecordLifecycleAudit(ctx, name, "reload", "success", map[string]any{"version": ls.Manifest.Version})
	return ls, nil
}

func (l *Loader) reload(ctx context.Context, name string) (*skill.LoadedSkill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := l.store.DiscoverOne(name)
	if err != nil {
		return nil, err
	}
	if err := l.checkRegistered(m); err != nil {
		return nil, err
	}
	if err := skill.CheckDependents(l.rt.Skills(), m); err != nil {
		return nil, err
	}

	start := time.Now()
	fresh, owner, err := l.instantiate(ctx, m)
	if err != nil {
		return nil, err
	}

	var old *skill.LoadedSkill
	err = l.rt.MutateRegistry(func(r *skill.Registry) error {
		if _, exists := r.Get(name); !exists {
			return r.Add(fresh)
		}
		var rerr error
		old, rerr = r.Replace(fresh)
		return rerr
	})
	if err != nil {
		l.discard(ctx, fresh, owner)
		return nil, err
	}

	if old != nil {
		l.discard(ctx, old, l.owners[name])
	}
	l.track(m, owner)
	observability.SetSkillsLoaded(l.rt.Skills().Len())

	dependents := l.registeredDependents(name)
	ev := l.logger.Info().
		Str("skill", name).
		Str("version", m.Version).
		Dur("duration", time.Since(start))
	if len(dependents) > 0 {
		ev = ev.Strs("dependents", dependents)
	}
	if old == nil {
		ev.Msg("Skill loaded by reload")
	} else {
		ev.Str("previous_version", old.Manifest.Version).Msg("Skill reloaded")
	}

	return fresh, nil
}

// checkRegistered verifies every requirement of m is already loaded at a
// satisfying version
func (l *Loader) checkRegistered(m *skill.Manifest) error {
	for _, req := range m.Requires {
		dep, ok := l.rt.Skills().Get(req.Name)
		if !ok {
			return &skill.MissingDependencyError{Skill: m.Name, Missing: req.Name}
		}
		ok, err := req.SatisfiedBy(dep.Manifest.Version)
		if err != nil {
			return fmt.Errorf("skill %s: %w", m.Name, err)
		}
		if !ok {
			return &skill.VersionConflictError{
				Skill:      m.Name,
				Dependency: req.Name,
				Constraint: req.Constraint,
				Actual:     dep.Manifest.Version,
			}
		}
	}
	return nil
}

func (l *Loader) registeredDependents(name string) []string {
	list := l.rt.Skills().List()
	manifests := make([]*skill.Manifest, 0, len(list))
	for _, ls := range list {
		manifests = append(manifests, ls.Manifest)
	}
	return skill.Dependents(manifests, name)
}

// Unload removes a skill that nothing else requires, dropping its
// subscriptions and closing it
func (l *Loader) Unload(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed *skill.LoadedSkill
	err := l.rt.MutateRegistry(func(r *skill.Registry) error {
		var rerr error
		removed, rerr = r.Remove(name)
		return rerr
	})
	if err != nil {
		return err
	}

	l.discard(ctx, removed, l.owners[name])
	delete(l.owners, name)
	for dir, n := range l.dirs {
		if n == name {
			delete(l.dirs, dir)
		}
	}

	observability.SetSkillsLoaded(l.rt.Skills().Len())
	observability.RecordLifecycleAudit(ctx, name, "unload", "success", nil)
	l.logger.Info().Str("skill", name).Msg("Skill unloaded")
	return nil
}
