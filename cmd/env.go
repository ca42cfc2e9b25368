package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/attribute"
	"github.com/sells-group/curator-cli/internal/dimension"
	"github.com/sells-group/curator-cli/internal/extraction"
	"github.com/sells-group/curator-cli/internal/jobs"
	"github.com/sells-group/curator-cli/internal/registry"
	"github.com/sells-group/curator-cli/internal/review"
	"github.com/sells-group/curator-cli/internal/store"
	"github.com/sells-group/curator-cli/internal/vocabulary"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

// drainTimeout bounds how long Close waits for in-flight job runners before
// cancelling their context.
const drainTimeout = 30 * time.Second

// curatorEnv holds the store, the job gateway, and the services needed by
// the serve/extract/suggest commands.
type curatorEnv struct {
	Store      store.Store
	Gateway    *jobs.Gateway
	Pipeline   *extraction.Pipeline
	Reviews    *review.Workflow
	Vocab      *vocabulary.Normalizer
	Dimensions *dimension.Registry
	Attributes *attribute.Service
}

// Close drains the job gateway, then releases the store.
func (ce *curatorEnv) Close() {
	if ce.Gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := ce.Gateway.Close(ctx); err != nil {
			zap.L().Warn("gateway drain incomplete", zap.Error(err))
		}
	}
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "curator.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates the store config, opens the configured driver, and
// runs migrations. Callers own Close. Store-only commands use this instead
// of initEnv so they work without an API key.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return st, nil
}

// loadAttributes returns the configured attribute registry, or the built-in
// set when no file is configured.
func loadAttributes() (*registry.AttributeRegistry, error) {
	if cfg.Attributes.File == "" {
		return registry.DefaultAttributes(), nil
	}
	attrs, err := registry.LoadAttributesFromFile(cfg.Attributes.File)
	if err != nil {
		return nil, eris.Wrap(err, "load attribute registry")
	}
	return attrs, nil
}

// initEnv sets up the store, the rate-limited model client, the job gateway
// with its runners, and all services. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*curatorEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	attrs, err := loadAttributes()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var client anthropic.Client
	if cfg.Anthropic.APIKey != "" {
		client = anthropic.NewRateLimited(anthropic.NewClient(cfg.Anthropic.APIKey), cfg.Anthropic.RateRPS, 1)
	}

	pipe := extraction.NewPipeline(st, attrs)
	runnerCfg := extraction.RunnerConfig{
		Model:          cfg.Anthropic.Model,
		MaxTokens:      cfg.Anthropic.MaxTokens,
		MaxConcurrency: cfg.Extraction.MaxConcurrency,
		MaxAttempts:    cfg.Extraction.MaxAttempts,
	}
	gw := jobs.New(st, cfg.Jobs.Workers,
		extraction.NewExtractRunner(pipe, client, runnerCfg),
		extraction.NewReportRunner(pipe, client, runnerCfg),
	)

	zap.L().Info("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("attributes", len(attrs.Slugs())),
		zap.Int("workers", cfg.Jobs.Workers),
	)

	return &curatorEnv{
		Store:      st,
		Gateway:    gw,
		Pipeline:   pipe,
		Reviews:    review.NewWorkflow(st),
		Vocab:      vocabulary.NewNormalizer(st, client, cfg.Anthropic.SuggestModel),
		Dimensions: dimension.NewRegistry(st),
		Attributes: attribute.NewService(st, attrs),
	}, nil
}
