package core

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"dispatch_service/internal/domain/model"
	"dispatch_service/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var civicCenter = model.Location{Lat: 37.7793, Lon: -122.4193}

type fakeGeocoder struct {
	loc   model.Location
	found bool
	err   error
	calls atomic.Int32
}

func (g *fakeGeocoder) Geocode(ctx context.Context, address string) (model.Location, bool, error) {
	g.calls.Add(1)
	return g.loc, g.found, g.err
}

func unitCall(unit string, hour, minute int, loc model.Location) model.Call {
	return model.Call{
		IncidentNumber:    int64(hour*100 + minute),
		UnitType:          unit,
		ReceivedTimestamp: day1.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute),
		Latitude:          loc.Lat,
		Longitude:         loc.Lon,
	}
}

func float(v float64) *float64 { return &v }

func newMatcher(geo model.Geocoder, opts Options, calls ...model.Call) *DispatchService {
	return NewDispatchService(repository.NewMemoryRepository(calls...), geo, opts, nil)
}

func TestNearestUnitType(t *testing.T) {
	farAway := model.Location{Lat: 37.8044, Lon: -122.2712}
	geo := &fakeGeocoder{loc: civicCenter, found: true}
	svc := newMatcher(geo, DefaultOptions(),
		unitCall("ENGINE", 14, 0, civicCenter),
		unitCall("ENGINE", 15, 10, civicCenter),
		unitCall("MEDIC", 13, 0, civicCenter),
		unitCall("MEDIC", 3, 0, civicCenter),
		unitCall("MEDIC", 3, 30, civicCenter),
		unitCall("MEDIC", 3, 45, civicCenter),
		unitCall("TRUCK", 14, 0, farAway),
		unitCall("TRUCK", 14, 5, farAway),
		unitCall("TRUCK", 14, 10, farAway),
	)

	got, err := svc.NearestUnitType(context.Background(), MatchQuery{Address: "1 Dr Carlton B Goodlett Pl", Time: "14:00"})
	require.NoError(t, err)
	require.NotNil(t, got.UnitType)
	assert.Equal(t, "ENGINE", *got.UnitType)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, civicCenter, got.Location)
	assert.Equal(t, DefaultRadiusKm, got.RadiusKm)
	assert.Equal(t, []model.HourRange{{From: 12, To: 16}}, got.HourRange)

	got, err = svc.NearestUnitType(context.Background(), MatchQuery{
		Address:         "1 Dr Carlton B Goodlett Pl",
		Time:            "8:00 AM",
		HalfWindowHours: float(1),
	})
	require.NoError(t, err)
	assert.Nil(t, got.UnitType, "no calls between 7 and 9")
	assert.Zero(t, got.Count)
	assert.Equal(t, []model.HourRange{{From: 7, To: 9}}, got.HourRange)
}

func TestNearestUnitTypeWidensWithRadius(t *testing.T) {
	farAway := model.Location{Lat: 37.8044, Lon: -122.2712}
	geo := &fakeGeocoder{loc: civicCenter, found: true}
	svc := newMatcher(geo, DefaultOptions(),
		unitCall("ENGINE", 14, 0, civicCenter),
		unitCall("TRUCK", 14, 0, farAway),
		unitCall("TRUCK", 14, 5, farAway),
	)

	got, err := svc.NearestUnitType(context.Background(), MatchQuery{Address: "x", Time: "14:00", RadiusKm: float(30)})
	require.NoError(t, err)
	require.NotNil(t, got.UnitType)
	assert.Equal(t, "TRUCK", *got.UnitType)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, 30.0, got.RadiusKm)
}

func TestNearestUnitTypeWrapMidnight(t *testing.T) {
	calls := []model.Call{
		unitCall("MEDIC", 23, 30, civicCenter),
		unitCall("ENGINE", 0, 30, civicCenter),
		unitCall("ENGINE", 1, 15, civicCenter),
	}
	q := MatchQuery{Address: "x", Time: "11:00 PM"}

	clamped := newMatcher(&fakeGeocoder{loc: civicCenter, found: true}, DefaultOptions(), calls...)
	got, err := clamped.NearestUnitType(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, got.UnitType)
	assert.Equal(t, "MEDIC", *got.UnitType)
	assert.Equal(t, []model.HourRange{{From: 21, To: 23}}, got.HourRange)

	opts := DefaultOptions()
	opts.WrapMidnight = true
	wrapped := newMatcher(&fakeGeocoder{loc: civicCenter, found: true}, opts, calls...)
	got, err = wrapped.NearestUnitType(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, got.UnitType)
	assert.Equal(t, "ENGINE", *got.UnitType)
	assert.Equal(t, 2, got.Count)
	assert.Len(t, got.HourRange, 2)
}

func TestNearestUnitTypeErrors(t *testing.T) {
	tests := []struct {
		name     string
		geo      *fakeGeocoder
		query    MatchQuery
		wantErr  error
		wantMsg  string
		geocoded bool
	}{
		{
			name:    "missing address",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "  ", Time: "14:00"},
			wantErr: model.ErrMissingParameter,
			wantMsg: "No address provided.",
		},
		{
			name:    "missing time",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x"},
			wantErr: model.ErrMissingParameter,
			wantMsg: "No time provided.",
		},
		{
			name:    "bad time",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "teatime"},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Invalid time.",
		},
		{
			name:    "negative radius",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "14:00", RadiusKm: float(-1)},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Radius must be positive.",
		},
		{
			name:    "negative window",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "14:00", HalfWindowHours: float(-2)},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Time window must be positive.",
		},
		{
			name:    "zero radius",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "14:00", RadiusKm: float(0)},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Radius must be positive.",
		},
		{
			name:    "NaN radius",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "14:00", RadiusKm: float(math.NaN())},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Invalid radius.",
		},
		{
			name:    "infinite radius",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "14:00", RadiusKm: float(math.Inf(1))},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Invalid radius.",
		},
		{
			name:    "NaN window",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "14:00", HalfWindowHours: float(math.NaN())},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Invalid time window.",
		},
		{
			name:    "huge window",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "14:00", HalfWindowHours: float(1e300)},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Time window must be at most 24 hours.",
		},
		{
			name:    "window over a day",
			geo:     &fakeGeocoder{found: true},
			query:   MatchQuery{Address: "x", Time: "14:00", HalfWindowHours: float(24.5)},
			wantErr: model.ErrUnresolvableInput,
			wantMsg: "Time window must be at most 24 hours.",
		},
		{
			name:     "unknown address",
			geo:      &fakeGeocoder{found: false},
			query:    MatchQuery{Address: "nowhere", Time: "14:00"},
			wantErr:  model.ErrUnresolvableInput,
			wantMsg:  "Invalid address.",
			geocoded: true,
		},
		{
			name:     "geocoder down",
			geo:      &fakeGeocoder{err: errors.New("connection refused")},
			query:    MatchQuery{Address: "x", Time: "14:00"},
			wantErr:  model.ErrUpstreamUnavailable,
			wantMsg:  "Geocoding service unavailable.",
			geocoded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMatcher(tt.geo, DefaultOptions())
			_, err := svc.NearestUnitType(context.Background(), tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var qe *model.QueryError
			require.ErrorAs(t, err, &qe)
			assert.Equal(t, tt.wantMsg, qe.Message)

			if tt.geocoded {
				assert.EqualValues(t, 1, tt.geo.calls.Load())
			} else {
				assert.Zero(t, tt.geo.calls.Load(), "validation must run before geocoding")
			}
		})
	}
}

func TestNearestUnitTypeWithoutGeocoder(t *testing.T) {
	svc := NewDispatchService(repository.NewMemoryRepository(), nil, DefaultOptions(), nil)
	_, err := svc.NearestUnitType(context.Background(), MatchQuery{Address: "x", Time: "14:00"})
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}

func TestNearestUnitTypeSamePoint(t *testing.T) {
	geo := &fakeGeocoder{loc: civicCenter, found: true}
	nearby := model.Location{Lat: civicCenter.Lat + 0.0005, Lon: civicCenter.Lon}
	svc := newMatcher(geo, DefaultOptions(),
		unitCall("A", 10, 0, nearby),
		unitCall("A", 10, 20, nearby),
		unitCall("B", 10, 40, nearby),
	)

	got, err := svc.NearestUnitType(context.Background(), MatchQuery{Address: "x", Time: "10:30", HalfWindowHours: float(1)})
	require.NoError(t, err)
	require.NotNil(t, got.UnitType)
	assert.Equal(t, "A", *got.UnitType)
	assert.Equal(t, 2, got.Count)

	// ~55m away, outside a one metre radius
	got, err = svc.NearestUnitType(context.Background(), MatchQuery{Address: "x", Time: "10:30", RadiusKm: float(0.001)})
	require.NoError(t, err)
	assert.Nil(t, got.UnitType)
	assert.Zero(t, got.Count)
}

func TestNearestUnitTypeRejectsNonFiniteRadius(t *testing.T) {
	timesSquare := model.Location{Lat: 40.758, Lon: -73.9855}
	geo := &fakeGeocoder{loc: civicCenter, found: true}
	svc := newMatcher(geo, DefaultOptions(),
		unitCall("ENGINE", 14, 0, timesSquare),
		unitCall("ENGINE", 14, 30, timesSquare),
	)

	got, err := svc.NearestUnitType(context.Background(), MatchQuery{Address: "x", Time: "14:00"})
	require.NoError(t, err)
	assert.Nil(t, got.UnitType, "New York calls are not near San Francisco")

	_, err = svc.NearestUnitType(context.Background(), MatchQuery{Address: "x", Time: "14:00", RadiusKm: float(math.NaN())})
	assert.ErrorIs(t, err, model.ErrUnresolvableInput)
}

func TestNearestUnitTypeExplicitWindow(t *testing.T) {
	geo := &fakeGeocoder{loc: civicCenter, found: true}
	svc := newMatcher(geo, DefaultOptions(),
		unitCall("MEDIC", 13, 30, civicCenter),
		unitCall("MEDIC", 15, 0, civicCenter),
		unitCall("ENGINE", 14, 5, civicCenter),
	)

	got, err := svc.NearestUnitType(context.Background(), MatchQuery{Address: "x", Time: "14:20", HalfWindowHours: float(0)})
	require.NoError(t, err)
	require.NotNil(t, got.UnitType)
	assert.Equal(t, "ENGINE", *got.UnitType)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, []model.HourRange{{From: 14, To: 14}}, got.HourRange)

	got, err = svc.NearestUnitType(context.Background(), MatchQuery{Address: "x", Time: "14:20", HalfWindowHours: float(24)})
	require.NoError(t, err)
	require.NotNil(t, got.UnitType)
	assert.Equal(t, "MEDIC", *got.UnitType)
	assert.Equal(t, []model.HourRange{{From: 0, To: 23}}, got.HourRange)
}
