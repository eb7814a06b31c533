package manifest

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/resilience"
)

// NewBackend creates the backend selected by cfg.Driver.
func NewBackend(ctx context.Context, cfg config.ManifestConfig) (Backend, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileBackend(cfg.Path, cfg.Backups), nil
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = cfg.Path
		}
		return NewSQLite(ctx, dsn)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("manifest: unsupported driver %q", cfg.Driver)
	}
}

// Open creates the configured backend and a loaded Store over it.
func Open(ctx context.Context, cfg config.ManifestConfig) (*Store, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(backend, Options{
		Retry:   resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
		Breaker: resilience.FromBreakerConfig("manifest "+backend.Name(), cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeoutMs),
	})
	if err := s.Load(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return s, nil
}
