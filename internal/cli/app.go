package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/skillhost/internal/config"
	"github.com/harun/skillhost/internal/logger"
	"github.com/harun/skillhost/internal/observability"
	"github.com/harun/skillhost/internal/tracing"
	"github.com/harun/skillhost/pkg/eventbus"
	"github.com/harun/skillhost/pkg/loader"
	"github.com/harun/skillhost/pkg/runtimectx"
	"github.com/harun/skillhost/pkg/skill"
	"github.com/harun/skillhost/pkg/sqlguard"
	"github.com/rs/zerolog"
)

// app wires configuration into the runtime pieces a command needs
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	logger   zerolog.Logger
	store    *skill.ManifestStore
	resolver *skill.DependencyResolver
	holder   *runtimectx.Holder
	tracing  bool
}

// loadConfig reads the config file and applies global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp builds the app. serving enables the log file and the audit log.
func newApp(serving bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSizeMB: cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	}
	if serving {
		logCfg.File = cfg.Logging.File
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		logger: log.GetZerolog(),
	}

	if cfg.Tracing.Enabled {
		if err := tracing.Init(tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version,
			SampleRatio: cfg.Tracing.SampleRatio,
		}); err != nil {
			a.logger.Warn().Err(err).Msg("Tracing disabled")
		} else {
			a.tracing = true
		}
	}

	if serving && cfg.Audit.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		if err := observability.InitAuditLogger(cfg.Audit.File); err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	policy, err := skill.ParsePolicy(cfg.Skills.DependencyPolicy)
	if err != nil {
		return nil, err
	}
	a.store = skill.NewManifestStore(a.logger, cfg.Skills.LocalDir, skill.DefaultCatalog)
	a.resolver = skill.NewDependencyResolver(a.logger, policy)

	opts, err := runtimeOptions(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.holder = runtimectx.NewHolder(opts)

	return a, nil
}

func runtimeOptions(cfg *config.Config, logger zerolog.Logger) (runtimectx.Options, error) {
	mode, err := eventbus.ParseMode(cfg.EventBus.Mode)
	if err != nil {
		return runtimectx.Options{}, err
	}
	ddl, ok := sqlguard.ParseDDLPolicy(cfg.Skills.DDLPolicy)
	if !ok {
		return runtimectx.Options{}, fmt.Errorf("invalid ddl policy %q", cfg.Skills.DDLPolicy)
	}

	if cfg.Database.Path != runtimectx.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return runtimectx.Options{}, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	opts := runtimectx.DefaultOptions()
	opts.Path = cfg.Database.Path
	opts.BusyTimeout = cfg.BusyTimeout()
	opts.StatementTimeout = cfg.StatementTimeout()
	opts.DDLPolicy = ddl
	opts.BusMode = mode
	opts.CacheSize = cfg.Cache.Size
	opts.CacheTTL = cfg.CacheTTL()
	opts.Logger = logger
	return opts, nil
}

// loader opens the runtime and returns a loader bound to it
func (a *app) loader() (*loader.Loader, error) {
	rt, err := a.holder.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to open runtime: %w", err)
	}
	return loader.New(rt, a.store, a.resolver, skill.DefaultCatalog, loader.Options{
		Configs:  a.cfg.Skills.Config,
		Logger:   a.logger,
		Debounce: a.cfg.Debounce(),
	}), nil
}

// loadAll opens the runtime and loads every skill, reporting problems as warnings
func (a *app) loadAll(ctx context.Context) (*loader.Loader, *loader.Result, error) {
	l, err := a.loader()
	if err != nil {
		return nil, nil, err
	}
	result, err := l.LoadAll(ctx)
	if err != nil {
		return nil, result, err
	}
	for _, de := range result.DiscoveryErrors {
		a.logger.Warn().Err(de.Err).Str("path", de.Path).Str("skill", de.Name).Msg("Skill discovery failed")
	}
	return l, result, nil
}

func (a *app) pidFile() string {
	return pidFilePath(a.cfg.DataDir)
}

// Close releases the runtime and flushes logs and traces
func (a *app) Close() {
	a.holder.Shutdown()
	if a.tracing {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Tracing shutdown failed")
		}
	}
	_ = observability.GetAuditLogger().Close()
	_ = a.log.Close()
}
