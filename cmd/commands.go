package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch_service/internal/api"
	"dispatch_service/internal/config"
	"dispatch_service/internal/core"
	"dispatch_service/internal/infrastructure/geocoder"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Инициализация хранилища
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Свежезагруженный CSV может не иметь районов
	if cfg.Store.Driver == config.StoreMemory && cfg.Neighborhoods.Path != "" {
		index, err := loadNeighborhoods(cfg.Neighborhoods)
		if err != nil {
			return err
		}
		backfill := core.NewNeighborhoodBackfill(st.calls, st.recorder, index, logger)
		if _, err := backfill.Run(ctx, core.BackfillOptions{OnlyMissing: true}); err != nil {
			return err
		}
	}

	geo, closeCache, err := geocoder.FromConfig(cfg.Geocoder, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	service := core.NewDispatchService(st.calls, geo, queryOptions(cfg.Query), logger)

	// Настройка HTTP-обработчиков
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(api.NewHandler(service, logger)),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"store", cfg.Store.Driver,
			"geocoder", cfg.Geocoder.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the calls table and indexes in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StorePostgres {
				return fmt.Errorf("migrate requires the %s store, got %q", config.StorePostgres, cfg.Store.Driver)
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			if err := st.postgres.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <csv>",
		Short: "Load dispatch calls from a CSV export into the record store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.StoreMemory {
				// only validates the file
				logger.Warn("memory store is not persisted, import is a dry run")
				cfg.Store.CSVPath = ""
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			n, err := importFile(cmd.Context(), args[0], st.writer, logger)
			if err != nil {
				return err
			}
			logger.Info("import complete", "file", args[0], "calls", n)
			return nil
		},
	}
}

func newBackfillCmd() *cobra.Command {
	var opts core.BackfillOptions
	cmd := &cobra.Command{
		Use:   "backfill-neighborhoods",
		Short: "Label stored calls with the neighborhood containing their location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.Neighborhoods.Path == "" {
				return errors.New("no neighborhoods dataset configured (neighborhoods.path or DISPATCH_NEIGHBORHOODS)")
			}

			index, err := loadNeighborhoods(cfg.Neighborhoods)
			if err != nil {
				return err
			}
			logger.Info("neighborhoods loaded", "count", index.Len())

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			report, err := core.NewNeighborhoodBackfill(st.calls, st.recorder, index, logger).Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			logger.Info("back-fill report",
				"scanned", report.Scanned,
				"labeled", report.Labeled,
				"unmatched", report.Unmatched)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.OnlyMissing, "only-missing", false, "only label calls without a neighborhood")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "concurrent batches")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 1000, "calls per update batch")
	return cmd
}
