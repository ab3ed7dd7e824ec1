package core

import (
	"log/slog"

	"dispatch_service/internal/domain/model"
)

const (
	DefaultLongestDispatchLimit = 750
	DefaultAddressCutoff        = 4
	DefaultRadiusKm             = 1.609344
	DefaultHalfWindowHours      = 2.0
)

var (
	DefaultSafeExcludedCallTypes = []string{"Citizen Assist / Service Call"}
	DefaultTrendNeighborhoods    = []string{
		"Tenderloin",
		"South of Market",
		"Mission",
		"Financial District/South Beach",
		"Bayview Hunters Point",
	}
)

// Options tunes the query defaults.
type Options struct {
	LongestDispatchLimit  int
	SafeExcludedCallTypes []string
	TrendNeighborhoods    []string
	WrapMidnight          bool
	DefaultRadiusKm       float64
	DefaultHalfWindow     float64
}

func DefaultOptions() Options {
	return Options{
		LongestDispatchLimit:  DefaultLongestDispatchLimit,
		SafeExcludedCallTypes: DefaultSafeExcludedCallTypes,
		TrendNeighborhoods:    DefaultTrendNeighborhoods,
		DefaultRadiusKm:       DefaultRadiusKm,
		DefaultHalfWindow:     DefaultHalfWindowHours,
	}
}

// DispatchService answers every analytical query over the call records.
// It holds no mutable state; queries may run concurrently.
type DispatchService struct {
	store    model.CallStore
	engine   *Engine
	geocoder model.Geocoder
	opts     Options
	logger   *slog.Logger
}

func NewDispatchService(
	store model.CallStore,
	geocoder model.Geocoder,
	opts Options,
	logger *slog.Logger,
) *DispatchService {
	if opts.LongestDispatchLimit <= 0 {
		opts.LongestDispatchLimit = DefaultLongestDispatchLimit
	}
	if opts.DefaultRadiusKm <= 0 {
		opts.DefaultRadiusKm = DefaultRadiusKm
	}
	if opts.DefaultHalfWindow <= 0 {
		opts.DefaultHalfWindow = DefaultHalfWindowHours
	}
	if opts.SafeExcludedCallTypes == nil {
		opts.SafeExcludedCallTypes = DefaultSafeExcludedCallTypes
	}
	if len(opts.TrendNeighborhoods) == 0 {
		opts.TrendNeighborhoods = DefaultTrendNeighborhoods
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchService{
		store:    store,
		engine:   NewEngine(store),
		geocoder: geocoder,
		opts:     opts,
		logger:   logger,
	}
}

func (s *DispatchService) Options() Options {
	return s.opts
}
