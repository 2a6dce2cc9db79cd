package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hanko-field/cms/internal/app"
	"github.com/hanko-field/cms/internal/platform/config"
	"github.com/hanko-field/cms/internal/platform/observability"
	"github.com/hanko-field/cms/internal/repositories"
	"github.com/hanko-field/cms/internal/services"
)

// runtime bundles what a subcommand needs once configuration is loaded.
type runtime struct {
	cfg      config.Config
	content  services.ContentService
	overlays services.OverlayService
	logger   *zap.Logger
	close    func() error
}

// runtimeFactory builds the runtime. Tests replace it with an in-memory store.
type runtimeFactory func(ctx context.Context, opts options) (*runtime, error)

type options struct {
	envFile  string
	backend  string
	logLevel string
}

func main() {
	if err := newRootCommand(openRuntime).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(factory runtimeFactory) *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:           "cmsctl",
		Short:         "Inspect and seed localized content",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the process environment")
	flags.StringVar(&opts.backend, "backend", "", "override CMS_STORE_BACKEND (firestore, postgres, memory)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics written to stderr")

	withRuntime := func(run func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			rt, err := factory(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.close(); err != nil {
					rt.logger.Warn("close runtime", zap.Error(err))
				}
			}()
			return run(cmd, args, rt)
		}
	}

	root.AddCommand(
		newImportCommand(withRuntime),
		newExportCommand(withRuntime),
		newTreeCommand(withRuntime),
		newResolveCommand(withRuntime),
		newOverlaysCommand(withRuntime),
	)
	return root
}

type runtimeRunner func(run func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error

func openRuntime(ctx context.Context, opts options) (*runtime, error) {
	logger, err := observability.NewLogger(opts.logLevel)
	if err != nil {
		return nil, fmt.Errorf("initialise logger: %w", err)
	}
	logger = logger.Named("cmsctl")

	configOpts := []config.Option{config.WithEnvFile(opts.envFile)}
	if opts.backend != "" {
		configOpts = append(configOpts, config.WithEnvMap(map[string]string{"CMS_STORE_BACKEND": opts.backend}))
	}
	cfg, fetcher, err := app.LoadConfig(ctx, logger, configOpts...)
	if err != nil {
		return nil, err
	}
	registry, err := app.OpenRegistry(ctx, cfg, logger)
	if err != nil {
		_ = fetcher.Close()
		return nil, err
	}
	rt, err := newRuntime(cfg, registry, logger)
	if err != nil {
		_ = registry.Close()
		_ = fetcher.Close()
		return nil, err
	}
	closeRegistry := rt.close
	rt.close = func() error {
		err := closeRegistry()
		if ferr := fetcher.Close(); err == nil {
			err = ferr
		}
		_ = logger.Sync()
		return err
	}
	return rt, nil
}

func newRuntime(cfg config.Config, registry repositories.Registry, logger *zap.Logger) (*runtime, error) {
	locales, err := app.Locales(cfg)
	if err != nil {
		return nil, err
	}
	content, err := services.NewContentService(services.ContentServiceDeps{
		Repository:    registry.Content(),
		Locales:       locales,
		Logger:        logger,
		WriteAttempts: cfg.Content.WriteAttempts,
		RetryBackoff:  cfg.Content.WriteRetryBackoff,
	})
	if err != nil {
		return nil, err
	}
	overlays, err := services.NewOverlayService(services.OverlayServiceDeps{
		Repository: registry.Overlays(),
		Locales:    locales,
		ModalDelay: cfg.Overlays.ModalDelay,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:      cfg,
		content:  content,
		overlays: overlays,
		logger:   logger,
		close:    registry.Close,
	}, nil
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
