package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/manifest"
	"github.com/sells-group/evidence-cli/internal/synthesis"
	"github.com/sells-group/evidence-cli/internal/temporal"
)

// appEnv holds the manifest store and engines shared by the commands.
type appEnv struct {
	Store    *manifest.Store
	Engine   *synthesis.Engine
	Enhancer *temporal.Enhancer
}

// Close flushes and closes the manifest store.
func (e *appEnv) Close(ctx context.Context) {
	if e.Store == nil {
		return
	}
	if err := e.Store.Close(ctx); err != nil {
		zap.L().Error("close manifest", zap.Error(err))
	}
}

// initEnv validates the config, opens the manifest and builds the engines.
// Callers should defer env.Close(ctx).
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := synthesis.NewEngineFromConfig(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "init synthesis engine")
	}

	st, err := manifest.Open(ctx, cfg.Manifest)
	if err != nil {
		return nil, eris.Wrap(err, "open manifest")
	}

	return &appEnv{
		Store:    st,
		Engine:   engine,
		Enhancer: temporal.NewEnhancer(temporal.ConfigFromDays(cfg.Temporal.HalfLifeDays, cfg.Temporal.AgeThresholdsDays)),
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
