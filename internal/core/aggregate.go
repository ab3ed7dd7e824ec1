package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"dispatch_service/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_query_duration_seconds",
		Help:    "Aggregation query duration by operation",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"operation"})

	queryRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_query_rows_total",
		Help: "Calls streamed through aggregations by operation",
	}, []string{"operation"})
)

// KeyFunc extracts one component of a grouping key from a call.
type KeyFunc func(c *model.Call) string

// MeasureFunc yields the duration averaged per bucket; ok=false skips the
// call for the average but it is still counted.
type MeasureFunc func(c *model.Call) (d time.Duration, ok bool)

type SortField int

const (
	SortByKey SortField = iota
	SortByCount
	SortByIncidents
	SortByMeanDuration
)

// Grouping declares one aggregate: which calls, how to key them, what to
// measure, how to order and how many buckets to keep.
type Grouping struct {
	Name    string
	Filter  model.CallFilter
	Keys    []KeyFunc
	Measure MeasureFunc
	SortBy  SortField
	Desc    bool
	Limit   int
}

// Bucket accumulates the calls sharing one grouping key.
type Bucket struct {
	Key       []string
	Count     int
	incidents map[int64]struct{}
	durSum    time.Duration
	durN      int
	latSum    float64
	lonSum    float64
}

func (b *Bucket) Incidents() int {
	return len(b.incidents)
}

// MeanDuration is zero when no call in the bucket had a measure.
func (b *Bucket) MeanDuration() time.Duration {
	if b.durN == 0 {
		return 0
	}
	return b.durSum / time.Duration(b.durN)
}

func (b *Bucket) Centroid() (lat, lon float64) {
	if b.Count == 0 {
		return 0, 0
	}
	return b.latSum / float64(b.Count), b.lonSum / float64(b.Count)
}

func (b *Bucket) add(c *model.Call, measure MeasureFunc) {
	b.Count++
	b.incidents[c.IncidentNumber] = struct{}{}
	b.latSum += c.Latitude
	b.lonSum += c.Longitude
	if measure != nil {
		if d, ok := measure(c); ok {
			b.durSum += d
			b.durN++
		}
	}
}

// Engine runs groupings against a record store in a single pass each.
type Engine struct {
	store model.CallStore
}

func NewEngine(store model.CallStore) *Engine {
	return &Engine{store: store}
}

// Group streams the filtered calls once and returns the ordered buckets.
// Equal sort values fall back to key order so output is reproducible.
func (e *Engine) Group(ctx context.Context, g Grouping) ([]*Bucket, error) {
	start := time.Now()
	defer func() {
		queryDuration.WithLabelValues(g.Name).Observe(time.Since(start).Seconds())
	}()

	buckets := make(map[string]*Bucket)
	var rows int
	err := e.store.Scan(ctx, g.Filter, func(c *model.Call) error {
		rows++
		key := make([]string, len(g.Keys))
		for i, k := range g.Keys {
			key[i] = k(c)
		}
		id := strings.Join(key, "\x00")

		b, ok := buckets[id]
		if !ok {
			b = &Bucket{Key: key, incidents: make(map[int64]struct{})}
			buckets[id] = b
		}
		b.add(c, g.Measure)
		return nil
	})
	queryRows.WithLabelValues(g.Name).Add(float64(rows))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", g.Name, err)
	}

	out := make([]*Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b)
	}
	sortBuckets(out, g.SortBy, g.Desc)

	if g.Limit > 0 && len(out) > g.Limit {
		out = out[:g.Limit]
	}
	return out, nil
}

func sortBuckets(buckets []*Bucket, field SortField, desc bool) {
	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		var cmp int
		switch field {
		case SortByCount:
			cmp = compareInt(int64(a.Count), int64(b.Count))
		case SortByIncidents:
			cmp = compareInt(int64(a.Incidents()), int64(b.Incidents()))
		case SortByMeanDuration:
			cmp = compareInt(int64(a.MeanDuration()), int64(b.MeanDuration()))
		}
		if desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
		return compareKeys(a.Key, b.Key) < 0
	})
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareKeys(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// Key extractors. Nullable categorical columns go through model.Normalize.

func byAddress(c *model.Call) string       { return c.Address }
func byUnitType(c *model.Call) string      { return model.Normalize(c.UnitType) }
func byCallType(c *model.Call) string      { return model.Normalize(c.CallType) }
func byCallTypeGroup(c *model.Call) string { return model.Normalize(c.CallTypeGroup) }
func byBattalion(c *model.Call) string     { return model.Normalize(c.Battalion) }
func byNeighborhood(c *model.Call) string  { return model.Normalize(c.NeighborhoodDistrict) }

func byReceivedDate(c *model.Call) string {
	return c.ReceivedTimestamp.Format("2006-01-02")
}

func byReceivedHour(c *model.Call) string {
	return fmt.Sprintf("%02d", c.ReceivedTimestamp.Hour())
}

func dispatchTime(c *model.Call) (time.Duration, bool) {
	return c.DispatchTime(), true
}

func responseTime(c *model.Call) (time.Duration, bool) {
	return c.ResponseTime()
}
