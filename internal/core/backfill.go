package core

import (
	"context"
	"fmt"
	"log/slog"

	"dispatch_service/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var backfillCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatch_backfill_calls_total",
	Help: "Calls processed by the neighborhood back-fill, by outcome",
}, []string{"outcome"})

const (
	defaultBackfillWorkers   = 4
	defaultBackfillBatchSize = 1000
)

type BackfillOptions struct {
	// OnlyMissing restricts the job to calls without a neighborhood.
	OnlyMissing bool
	Workers     int
	BatchSize   int
}

type BackfillReport struct {
	Scanned   int
	Labeled   int
	Unmatched int
}

type backfillTarget struct {
	id    int64
	point orb.Point
}

// NeighborhoodBackfill labels stored calls with the neighborhood containing
// their point. Calls outside every boundary keep their current value.
type NeighborhoodBackfill struct {
	store    model.CallStore
	recorder model.NeighborhoodRecorder
	index    *NeighborhoodIndex
	logger   *slog.Logger
}

func NewNeighborhoodBackfill(
	store model.CallStore,
	recorder model.NeighborhoodRecorder,
	index *NeighborhoodIndex,
	logger *slog.Logger,
) *NeighborhoodBackfill {
	if logger == nil {
		logger = slog.Default()
	}
	return &NeighborhoodBackfill{
		store:    store,
		recorder: recorder,
		index:    index,
		logger:   logger,
	}
}

func (b *NeighborhoodBackfill) Run(ctx context.Context, opts BackfillOptions) (BackfillReport, error) {
	if opts.Workers <= 0 {
		opts.Workers = defaultBackfillWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBackfillBatchSize
	}

	// Targets are collected first; writers must not run while the scan
	// holds the store.
	var targets []backfillTarget
	filter := model.CallFilter{MissingNeighborhood: opts.OnlyMissing}
	err := b.store.Scan(ctx, filter, func(c *model.Call) error {
		targets = append(targets, backfillTarget{id: c.ID, point: c.Point()})
		return nil
	})
	if err != nil {
		return BackfillReport{}, fmt.Errorf("failed to scan calls for back-fill: %w", err)
	}

	report := BackfillReport{Scanned: len(targets)}
	b.logger.Info("neighborhood back-fill started",
		"calls", len(targets),
		"only_missing", opts.OnlyMissing,
		"workers", opts.Workers)

	batches := make([]map[int64]string, 0, len(targets)/opts.BatchSize+1)
	results := make([]int, 0, cap(batches))
	for start := 0; start < len(targets); start += opts.BatchSize {
		batches = append(batches, nil)
		results = append(results, 0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range batches {
		start := i * opts.BatchSize
		end := min(start+opts.BatchSize, len(targets))
		g.Go(func() error {
			labels := make(map[int64]string, end-start)
			for _, t := range targets[start:end] {
				if name, ok := b.index.Locate(t.point); ok {
					labels[t.id] = name
				}
			}
			unmatched := (end - start) - len(labels)
			backfillCalls.WithLabelValues("labeled").Add(float64(len(labels)))
			backfillCalls.WithLabelValues("unmatched").Add(float64(unmatched))

			if len(labels) > 0 {
				if err := b.recorder.SetNeighborhoods(gctx, labels); err != nil {
					return fmt.Errorf("failed to record batch %d: %w", i, err)
				}
			}
			batches[i] = labels
			results[i] = unmatched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for i := range batches {
		report.Labeled += len(batches[i])
		report.Unmatched += results[i]
	}
	b.logger.Info("neighborhood back-fill complete",
		"labeled", report.Labeled,
		"unmatched", report.Unmatched)
	return report, nil
}
