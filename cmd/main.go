package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"dispatch_service/internal/config"
	"dispatch_service/internal/core"
	"dispatch_service/internal/domain/model"
	"dispatch_service/internal/domain/repository"
	"dispatch_service/internal/infrastructure/csvimport"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dispatch",
		Short:         "Fire and EMS dispatch call analytics service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default $DISPATCH_CONFIG)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newBackfillCmd(),
	)
	return root
}

// setup loads the configuration and installs the JSON logger as default.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return cfg, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// store bundles the record store views for one driver.
type store struct {
	calls    model.CallStore
	writer   model.CallWriter
	recorder model.NeighborhoodRecorder
	postgres *repository.CallRepository
	close    func() error
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		repo, err := repository.NewPostgresRepository(cfg.Store.PostgresURL)
		if err != nil {
			return nil, err
		}
		return &store{
			calls:    repo,
			writer:   repo,
			recorder: repository.NewPostgresNeighborhoodRecorder(repo.DB),
			postgres: repo,
			close:    repo.Close,
		}, nil

	case config.StoreMemory:
		mem := repository.NewMemoryRepository()
		if cfg.Store.CSVPath != "" {
			if _, err := importFile(ctx, cfg.Store.CSVPath, mem, logger); err != nil {
				return nil, err
			}
		}
		return &store{
			calls:    mem,
			writer:   mem,
			recorder: mem,
			close:    func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func importFile(ctx context.Context, path string, w model.CallWriter, logger *slog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	n, err := csvimport.Import(ctx, f, w, csvimport.DefaultBatchSize, logger)
	if err != nil {
		return n, fmt.Errorf("failed to import %s: %w", path, err)
	}
	return n, nil
}

func loadNeighborhoods(cfg config.NeighborhoodsConfig) (*core.NeighborhoodIndex, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open neighborhoods %s: %w", cfg.Path, err)
	}
	defer f.Close()

	return core.LoadNeighborhoods(f, core.BoundaryOptions{
		Format:         core.BoundaryFormat(strings.ToLower(cfg.Format)),
		GeometryColumn: cfg.GeometryColumn,
		NameColumn:     cfg.NameColumn,
		NameProperty:   cfg.NameProperty,
	})
}

func queryOptions(q config.QueryConfig) core.Options {
	return core.Options{
		LongestDispatchLimit:  q.LongestDispatchLimit,
		SafeExcludedCallTypes: q.SafeExcludedCallTypes,
		TrendNeighborhoods:    q.TrendNeighborhoods,
		WrapMidnight:          q.WrapMidnight,
		DefaultRadiusKm:       q.DefaultRadiusKm,
		DefaultHalfWindow:     q.DefaultHalfWindow,
	}
}
