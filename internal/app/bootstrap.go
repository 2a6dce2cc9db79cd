// Package app wires configuration, secrets and store backends for the cms binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hanko-field/cms/internal/platform/config"
	pfirestore "github.com/hanko-field/cms/internal/platform/firestore"
	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/platform/postgres"
	"github.com/hanko-field/cms/internal/platform/secrets"
	"github.com/hanko-field/cms/internal/repositories"
	firestoreRepo "github.com/hanko-field/cms/internal/repositories/firestore"
	"github.com/hanko-field/cms/internal/repositories/memory"
	pgRepo "github.com/hanko-field/cms/internal/repositories/postgres"
)

// LoadConfig reads environment values, builds the secret fetcher and loads the configuration.
// The returned fetcher must be closed by the caller.
func LoadConfig(ctx context.Context, logger *zap.Logger, opts ...config.Option) (config.Config, *secrets.Fetcher, error) {
	env, err := config.EnvironmentValues(opts...)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("read environment: %w", err)
	}

	fetcher := newSecretFetcher(logger, env)
	loadOpts := append([]config.Option{config.WithSecretResolver(fetcher)}, opts...)
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		_ = fetcher.Close()
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			return config.Config{}, nil, fmt.Errorf("missing required secrets %v: %w", missing.Names(), err)
		}
		return config.Config{}, nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, fetcher, nil
}

func newSecretFetcher(logger *zap.Logger, env map[string]string) *secrets.Fetcher {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	project := lookup("CMS_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("CMS_FIRESTORE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path, ok := env["CMS_SECRET_FALLBACK_FILE"]; ok {
		opts = append(opts, secrets.WithFallbackFile(strings.TrimSpace(path)))
	}
	return secrets.NewFetcher(opts...)
}

// Locales builds the supported locale set from configuration.
func Locales(cfg config.Config) (*locale.Set, error) {
	set, err := locale.NewSet(cfg.Locales.Supported)
	if err != nil {
		return nil, fmt.Errorf("locales: %w", err)
	}
	return set, nil
}

// OpenRegistry connects the configured store backend.
func OpenRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Registry, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		registry, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		logger.Info("store ready", zap.String("backend", cfg.Store.Backend), zap.String("project", cfg.Firestore.ProjectID))
		return registry, nil
	case config.StoreBackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		registry, err := pgRepo.NewRegistry(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("store ready", zap.String("backend", cfg.Store.Backend), zap.Bool("migrated", cfg.Postgres.MigrateOnBoot))
		return registry, nil
	case config.StoreBackendMemory:
		logger.Warn("using in-memory store; content is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
