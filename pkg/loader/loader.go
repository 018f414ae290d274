// Package loader turns discovered manifests into running skills on a shared
// runtime, in dependency order.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/skillhost/internal/observability"
	"github.com/harun/skillhost/internal/tracing"
	"github.com/harun/skillhost/pkg/runtimectx"
	"github.com/harun/skillhost/pkg/skill"
	"github.com/harun/skillhost/pkg/sqlguard"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "skillhost/loader"

// ErrSchemaWithoutDB is returned for a skill that ships a schema or a schema
// hook but does not set requires_db
var ErrSchemaWithoutDB = errors.New("schema requires requires_db")

// Options configures a Loader
type Options struct {
	// Configs holds the supplied configuration per skill name
	Configs map[string]map[string]any
	Logger  zerolog.Logger
	// Debounce is the quiet period Watch waits for before reloading
	Debounce time.Duration
}

// Result summarizes a LoadAll run
type Result struct {
	Loaded          []string
	Skipped         map[string]error
	DiscoveryErrors []skill.DiscoveryError
}

// Loader instantiates skills and registers them on the runtime. The runtime
// registry is only mutated here.
type Loader struct {
	rt       *runtimectx.Context
	store    *skill.ManifestStore
	resolver *skill.DependencyResolver
	catalog  *skill.Catalog
	configs  map[string]map[string]any
	debounce time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	owners     map[string]string // skill name -> bus owner of the live instance
	dirs       map[string]string // local skill dir -> skill name
	generation uint64
}

// New creates a loader. A nil catalog means skill.DefaultCatalog.
func New(rt *runtimectx.Context, store *skill.ManifestStore, resolver *skill.DependencyResolver, catalog *skill.Catalog, opts Options) *Loader {
	if catalog == nil {
		catalog = skill.DefaultCatalog
	}
	if opts.Debounce <= 0 {
		opts.Debounce = skill.DefaultDebounce
	}
	return &Loader{
		rt:       rt,
		store:    store,
		resolver: resolver,
		catalog:  catalog,
		configs:  opts.Configs,
		debounce: opts.Debounce,
		logger:   opts.Logger.With().Str("component", "loader").Logger(),
		owners:   make(map[string]string),
		dirs:     make(map[string]string),
	}
}

// Runtime returns the runtime skills are loaded into
func (l *Loader) Runtime() *runtimectx.Context {
	return l.rt
}

// LoadAll discovers every skill and loads it in dependency order. Under the
// strict policy the first failure aborts the batch; otherwise a failing skill
// is skipped along with everything that requires it. Skills already in the
// registry are left alone.
func (l *Loader) LoadAll(ctx context.Context) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx = tracing.NewLoadContext(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "loader.LoadAll")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, l.logger)

	if l.rt.State() == runtimectx.StateClosed {
		return nil, runtimectx.ErrConnectionClosed
	}

	result := &Result{Skipped: make(map[string]error)}

	manifests, discoveryErrs := l.store.Discover()
	result.DiscoveryErrors = discoveryErrs

	plan, err := l.resolver.Order(manifests)
	if err != nil {
		tracing.Fail(span, err)
		return result, fmt.Errorf("resolve load order: %w", err)
	}
	for name, reason := range plan.Skipped {
		l.skip(ctx, result, name, reason)
	}

	strict := l.resolver.Policy() == skill.PolicyStrict
	for _, m := range plan.Order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, loaded := l.rt.Skills().Get(m.Name); loaded {
			logger.Debug().Str("skill", m.Name).Msg("Skill already loaded")
			continue
		}

		if dep, reason, failed := failedRequirement(m, result.Skipped); failed {
			err := &skill.DependencyFailedError{Skill: m.Name, Dependency: dep, Err: reason}
			l.skip(ctx, result, m.Name, err)
			continue
		}

		if err := l.load(ctx, m); err != nil {
			if strict {
				tracing.Fail(span, err)
				return result, fmt.Errorf("load skill %s: %w", m.Name, err)
			}
			l.skip(ctx, result, m.Name, err)
			continue
		}
		result.Loaded = append(result.Loaded, m.Name)
	}

	observability.SetSkillsLoaded(l.rt.Skills().Len())
	span.SetAttributes(
		attribute.Int("skills.loaded", len(result.Loaded)),
		attribute.Int("skills.skipped", len(result.Skipped)),
		attribute.Int("skills.discovery_errors", len(result.DiscoveryErrors)),
	)
	logger.Info().
		Strs("loaded", result.Loaded).
		Int("skipped", len(result.Skipped)).
		Int("discovery_errors", len(result.DiscoveryErrors)).
		Msg("Skills loaded")

	return result, nil
}

func failedRequirement(m *skill.Manifest, skipped map[string]error) (string, error, bool) {
	for _, name := range m.RequiredNames() {
		if reason, ok := skipped[name]; ok {
			return name, reason, true
		}
	}
	return "", nil, false
}

func (l *Loader) skip(ctx context.Context, result *Result, name string, reason error) {
	result.Skipped[name] = reason
	observability.RecordSkillSkipped(name)
	observability.RecordLifecycleAudit(ctx, name, "load", "skipped", map[string]any{
		"reason": reason.Error(),
	})
	l.logger.Warn().Err(reason).Str("skill", name).Msg("Skill skipped")
}

// load instantiates m and adds it to the registry
func (l *Loader) load(ctx context.Context, m *skill.Manifest) error {
	start := time.Now()
	ls, owner, err := l.instantiate(ctx, m)
	if err == nil {
		err = l.rt.MutateRegistry(func(r *skill.Registry) error {
			return r.Add(ls)
		})
		if err != nil {
			l.discard(ctx, ls, owner)
		}
	}

	observability.RecordSkillLoad(m.Name, time.Since(start), err == nil)
	if err != nil {
		observability.RecordLifecycleAudit(ctx, m.Name, "load", "failure", map[string]any{"error": err.Error()})
		return err
	}

	l.track(m, owner)
	observability.RecordLifecycleAudit(ctx, m.Name, "load", "success", map[string]any{
		"version": m.Version,
		"source":  string(m.Source),
	})
	l.logger.Info().
		Str("skill", m.Name).
		Str("version", m.Version).
		Str("source", string(m.Source)).
		Msg("Skill loaded")
	return nil
}

func (l *Loader) track(m *skill.Manifest, owner string) {
	l.owners[m.Name] = owner
	if m.Source == skill.SourceLocal && m.Path != "" {
		l.dirs[m.Path] = m.Name
	}
}

// instantiate builds a new instance of m without registering it. The returned
// owner tags the instance's bus subscriptions.
func (l *Loader) instantiate(ctx context.Context, m *skill.Manifest) (*skill.LoadedSkill, string, error) {
	ctx = tracing.PropagateToSkill(ctx, m.Name)
	ctx, span := tracing.StartSpan(ctx, tracerName, "loader.instantiate",
		attribute.String("skill", m.Name),
		attribute.String("version", m.Version),
	)
	defer span.End()

	ls, owner, err := l.build(ctx, m)
	tracing.Fail(span, err)
	return ls, owner, err
}

func (l *Loader) build(ctx context.Context, m *skill.Manifest) (*skill.LoadedSkill, string, error) {
	factory, err := l.catalog.Resolve(m)
	if err != nil {
		return nil, "", err
	}

	cfg, err := skill.ResolveConfig(m.ConfigSchema, l.configs[m.Name])
	if err != nil {
		return nil, "", fmt.Errorf("skill %s: %w", m.Name, err)
	}

	var conn *sqlguard.Conn
	if m.RequiresDB {
		conn, err = l.rt.Connection(m.Name, m.Permissions)
		if err != nil {
			return nil, "", err
		}
	}

	schema, err := m.ReadSchema()
	if err != nil {
		return nil, "", fmt.Errorf("skill %s: read schema: %w", m.Name, err)
	}
	if schema != "" {
		if conn == nil {
			return nil, "", fmt.Errorf("skill %s: %w", m.Name, ErrSchemaWithoutDB)
		}
		if _, err := conn.Exec(ctx, schema); err != nil {
			return nil, "", fmt.Errorf("skill %s: apply schema: %w", m.Name, err)
		}
	}

	owner := l.nextOwner(m.Name)
	scope := l.rt.Bus().Scope(owner)

	handle, err := factory(skill.Env{
		Manifest: m,
		Conn:     conn,
		Bus:      scope,
		Cache:    l.rt.Cache(),
		Skills:   l.rt.Skills(),
		Config:   cfg,
		Logger:   tracing.LoggerFromContext(ctx, l.logger),
	})
	if err != nil {
		return nil, "", fmt.Errorf("skill %s: instantiate: %w", m.Name, err)
	}
	if handle == nil {
		return nil, "", fmt.Errorf("skill %s: instantiate: factory returned no skill", m.Name)
	}

	ls := &skill.LoadedSkill{Manifest: m, Handle: handle, LoadedAt: time.Now()}

	if init, ok := handle.(skill.SchemaInitializer); ok {
		if conn == nil {
			l.discard(ctx, ls, owner)
			return nil, "", fmt.Errorf("skill %s: %w", m.Name, ErrSchemaWithoutDB)
		}
		if err := init.InitSchema(ctx, conn); err != nil {
			l.discard(ctx, ls, owner)
			return nil, "", fmt.Errorf("skill %s: init schema: %w", m.Name, err)
		}
	}

	if sub, ok := handle.(skill.Subscriber); ok {
		if err := sub.Subscribe(scope); err != nil {
			l.discard(ctx, ls, owner)
			return nil, "", fmt.Errorf("skill %s: subscribe: %w", m.Name, err)
		}
	}

	return ls, owner, nil
}

func (l *Loader) nextOwner(name string) string {
	l.generation++
	return fmt.Sprintf("%s#%d", name, l.generation)
}

// discard drops an instance's subscriptions and closes it
func (l *Loader) discard(ctx context.Context, ls *skill.LoadedSkill, owner string) {
	if owner != "" {
		l.rt.Bus().UnsubscribeOwner(owner)
	}
	if ls == nil {
		return
	}
	if closer, ok := ls.Handle.(skill.Closer); ok {
		if err := closer.Close(ctx); err != nil {
			l.logger.Warn().Err(err).Str("skill", ls.Name()).Msg("Skill close failed")
		}
	}
}

// Invoke runs a command of a loaded skill
func (l *Loader) Invoke(ctx context.Context, name, command string, args []string) (any, error) {
	ls, ok := l.rt.Skills().Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", skill.ErrSkillNotFound, name)
	}
	cmd, ok := skill.FindCommand(ls.Handle, command)
	if !ok || cmd.Run == nil {
		return nil, fmt.Errorf("skill %s has no command %q", name, command)
	}

	ctx = tracing.PropagateToSkill(ctx, name)
	ctx, span := tracing.StartSpan(ctx, tracerName, "loader.Invoke",
		attribute.String("skill", name),
		attribute.String("command", command),
	)
	defer span.End()

	out, err := cmd.Run(ctx, args)
	tracing.Fail(span, err)
	return out, err
}
