package geocoder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dispatch_service/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	geocodeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_geocode_total",
		Help: "Geocode lookups by provider and result",
	}, []string{"provider", "result"})

	geocodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_geocode_duration_seconds",
		Help:    "Latency of geocode provider calls",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"provider"})
)

// Guarded isolates a remote geocoder behind a per-call timeout, a rate
// limit, request coalescing and a cache.
type Guarded struct {
	next     model.Geocoder
	provider string
	timeout  time.Duration
	limiter  *rate.Limiter
	cache    *Cache
	group    singleflight.Group
	logger   *slog.Logger
}

type GuardOptions struct {
	Provider      string
	Timeout       time.Duration
	RatePerSecond float64
	Cache         *Cache
	Logger        *slog.Logger
}

func NewGuarded(next model.Geocoder, opts GuardOptions) *Guarded {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{
		next:     next,
		provider: opts.Provider,
		timeout:  opts.Timeout,
		limiter:  rate.NewLimiter(limit, 1),
		cache:    opts.Cache,
		logger:   logger,
	}
}

type lookup struct {
	loc   model.Location
	found bool
}

func (g *Guarded) Geocode(ctx context.Context, address string) (model.Location, bool, error) {
	if g.cache != nil {
		entry, ok, err := g.cache.get(address)
		if err != nil {
			g.logger.Warn("geocode cache read failed", "error", err)
		} else if ok {
			geocodeTotal.WithLabelValues(g.provider, "cache_hit").Inc()
			return entry.Location, entry.Found, nil
		}
	}

	// The shared lookup is detached from any one caller and bounded by
	// the guard timeout; a cancelled caller only stops waiting.
	ch := g.group.DoChan(normalizeAddress(address), func() (interface{}, error) {
		return g.lookup(context.WithoutCancel(ctx), address)
	})
	select {
	case <-ctx.Done():
		return model.Location{}, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return model.Location{}, false, r.Err
		}
		res := r.Val.(lookup)
		return res.loc, res.found, nil
	}
}

func (g *Guarded) lookup(ctx context.Context, address string) (lookup, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		geocodeTotal.WithLabelValues(g.provider, "rate_limited").Inc()
		return lookup{}, fmt.Errorf("geocode rate limit: %w", err)
	}

	start := time.Now()
	loc, found, err := g.next.Geocode(ctx, address)
	geocodeDuration.WithLabelValues(g.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		geocodeTotal.WithLabelValues(g.provider, "error").Inc()
		g.logger.Error("geocode failed", "provider", g.provider, "error", err)
		return lookup{}, err
	}

	result := "found"
	if !found {
		result = "not_found"
	}
	geocodeTotal.WithLabelValues(g.provider, result).Inc()

	if g.cache != nil {
		if err := g.cache.set(address, cacheEntry{Location: loc, Found: found}); err != nil {
			g.logger.Warn("geocode cache write failed", "error", err)
		}
	}
	return lookup{loc: loc, found: found}, nil
}
