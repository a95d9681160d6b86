package cli

import (
	"context"
	"fmt"

	"contentweaver/internal/cache"
	"contentweaver/internal/config"
	"contentweaver/internal/engine"
	"contentweaver/internal/runstate"
)

// loadEngine parses the project at path and registers its pipelines.
// Graph validation is left to the caller.
func (a *app) loadEngine(path string, store cache.Store, opts ...engine.Option) (*engine.Engine, error) {
	p, err := LoadProject(path)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	b := &Builder{Project: p, Store: store}
	pipelines, err := b.Pipelines()
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	e := engine.New(opts...)
	for _, pl := range pipelines {
		if err := e.Add(pl); err != nil {
			return nil, withExitCode(ExitConfigError, err)
		}
	}
	return e, nil
}

// openStore returns the configured document cache and its close function.
func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Backend {
	case config.CacheBackendNone, "":
		return cache.NopStore{}, nop, nil
	case config.CacheBackendMemory:
		return cache.NewMemoryStore(), nop, nil
	case config.CacheBackendFile:
		return cache.NewFileStore(cfg.Dir), nop, nil
	case config.CacheBackendRedis:
		s := cache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cache.WithPrefix(cfg.Redis.Prefix),
			cache.WithTTL(cfg.Redis.TTL),
		)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("redis cache at %s: %w", cfg.Redis.Addr, err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

// runRecorder returns nil when run records are disabled.
func (a *app) runRecorder() (*runstate.Recorder, error) {
	if a.cfg.State.Dir == "" {
		return nil, nil
	}
	st, err := runstate.NewStore(a.cfg.State.Dir)
	if err != nil {
		return nil, err
	}
	return &runstate.Recorder{Store: st}, nil
}
