package model

import "context"

// CallStore is the read side of the record store used by the query engine.
type CallStore interface {
	// Scan streams every call matching the filter to fn. A non-nil error
	// from fn stops the scan and is returned.
	Scan(ctx context.Context, filter CallFilter, fn func(*Call) error) error

	// Distinct returns the sorted non-null values of a column.
	Distinct(ctx context.Context, column Column) ([]string, error)
}

// CallWriter loads records produced by the import job.
type CallWriter interface {
	InsertCalls(ctx context.Context, calls []Call) error
}

// NeighborhoodRecorder persists labels computed by the back-fill job.
type NeighborhoodRecorder interface {
	SetNeighborhoods(ctx context.Context, labels map[int64]string) error
}

// Geocoder resolves a free-text address. found is false when the provider
// has no match; err is reserved for provider failures.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (loc Location, found bool, err error)
}
