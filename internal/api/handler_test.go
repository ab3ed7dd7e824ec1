package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"dispatch_service/internal/core"
	"dispatch_service/internal/domain/model"
	"dispatch_service/internal/domain/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct {
	loc   model.Location
	found bool
	err   error
}

func (s stubGeocoder) Geocode(context.Context, string) (model.Location, bool, error) {
	return s.loc, s.found, s.err
}

var marketSt = model.Location{Lat: 37.7749, Lon: -122.4194}

func call(unitType, battalion, neighborhood string, received time.Time, lat, lon float64) model.Call {
	return model.Call{
		IncidentNumber:       received.Unix(),
		CallType:             "Medical Incident",
		CallTypeGroup:        "Potentially Life-Threatening",
		ReceivedTimestamp:    received,
		DispatchTimestamp:    received.Add(90 * time.Second),
		Address:              "1000 Block of MARKET ST",
		Battalion:            battalion,
		UnitType:             unitType,
		NeighborhoodDistrict: neighborhood,
		Latitude:             lat,
		Longitude:            lon,
	}
}

func newTestRouter(t *testing.T, geo model.Geocoder) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	day := time.Date(2018, 1, 15, 0, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryRepository(
		call("ENGINE", "B02", "Tenderloin", day.Add(14*time.Hour), marketSt.Lat, marketSt.Lon),
		call("ENGINE", "B02", "Tenderloin", day.Add(15*time.Hour), marketSt.Lat, marketSt.Lon),
		call("MEDIC", "B03", "Mission", day.Add(13*time.Hour), marketSt.Lat, marketSt.Lon),
		call("TRUCK", "B03", "", day.Add(14*time.Hour), 37.8044, -122.2712),
	)
	service := core.NewDispatchService(repo, geo, core.DefaultOptions(), nil)
	return NewRouter(NewHandler(service, nil))
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestNearbyErrors(t *testing.T) {
	tests := []struct {
		name       string
		geocoder   stubGeocoder
		form       url.Values
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "missing address",
			geocoder:   stubGeocoder{loc: marketSt, found: true},
			form:       url.Values{"time": {"14:00"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "No address provided.",
		},
		{
			name:       "missing time",
			geocoder:   stubGeocoder{loc: marketSt, found: true},
			form:       url.Values{"address": {"1 Market St"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "No time provided.",
		},
		{
			name:       "unknown address",
			geocoder:   stubGeocoder{},
			form:       url.Values{"address": {"nowhere"}, "time": {"14:00"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid address.",
		},
		{
			name:       "bad radius",
			geocoder:   stubGeocoder{loc: marketSt, found: true},
			form:       url.Values{"address": {"1 Market St"}, "time": {"14:00"}, "radius": {"wide"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid radius.",
		},
		{
			name:       "NaN radius",
			geocoder:   stubGeocoder{loc: marketSt, found: true},
			form:       url.Values{"address": {"1 Market St"}, "time": {"14:00"}, "radius": {"NaN"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid radius.",
		},
		{
			name:       "zero radius",
			geocoder:   stubGeocoder{loc: marketSt, found: true},
			form:       url.Values{"address": {"1 Market St"}, "time": {"14:00"}, "radius": {"0"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Radius must be positive.",
		},
		{
			name:       "infinite window",
			geocoder:   stubGeocoder{loc: marketSt, found: true},
			form:       url.Values{"address": {"1 Market St"}, "time": {"14:00"}, "delta_hours": {"+Inf"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid delta_hours.",
		},
		{
			name:       "window over a day",
			geocoder:   stubGeocoder{loc: marketSt, found: true},
			form:       url.Values{"address": {"1 Market St"}, "time": {"14:00"}, "delta_hours": {"1e300"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Time window must be at most 24 hours.",
		},
		{
			name:       "geocoder down",
			geocoder:   stubGeocoder{err: errors.New("connection refused")},
			form:       url.Values{"address": {"1 Market St"}, "time": {"14:00"}},
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Geocoding service unavailable.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, tt.geocoder)
			w, env := do(t, r, postForm("/api/calls/nearby", tt.form))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "false", env.Status)
			assert.Equal(t, tt.wantMsg, env.Message)
		})
	}
}

func TestNearbyMatchesUnitType(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{loc: marketSt, found: true})

	w, env := do(t, r, postForm("/api/calls/nearby", url.Values{
		"address": {"1 Market St"},
		"time":    {"2:30 PM"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", env.Status)

	var match model.UnitTypeMatch
	require.NoError(t, json.Unmarshal(env.Data, &match))
	require.NotNil(t, match.UnitType)
	assert.Equal(t, "ENGINE", *match.UnitType)
	assert.Equal(t, 2, match.Count)
}

func TestNearbyJSONBody(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{loc: marketSt, found: true})

	body := `{"address":"1 Market St","time":"03:00","radius":0.5,"delta_hours":"1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/calls/nearby", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w, env := do(t, r, req)
	require.Equal(t, http.StatusOK, w.Code)

	var match map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &match))
	assert.Nil(t, match["unit_type_match"])
	assert.EqualValues(t, 0, match["unit_type_match_count"])
	assert.InDelta(t, 0.804672, match["radius_km"], 1e-9)
}

func TestNearbyRadiusInMiles(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{loc: marketSt, found: true})

	nearby := func(form url.Values) model.UnitTypeMatch {
		t.Helper()
		w, env := do(t, r, postForm("/api/calls/nearby", form))
		require.Equal(t, http.StatusOK, w.Code, env.Message)
		var match model.UnitTypeMatch
		require.NoError(t, json.Unmarshal(env.Data, &match))
		return match
	}

	match := nearby(url.Values{"address": {"1 Market St"}, "time": {"14:00"}})
	assert.InDelta(t, 1.609344, match.RadiusKm, 1e-9)

	match = nearby(url.Values{"address": {"1 Market St"}, "time": {"14:00"}, "radius": {"1"}})
	assert.InDelta(t, 1.609344, match.RadiusKm, 1e-9)

	match = nearby(url.Values{"address": {"1 Market St"}, "time": {"14:00"}, "radius": {"10"}})
	assert.InDelta(t, 16.09344, match.RadiusKm, 1e-9)

	match = nearby(url.Values{"address": {"1 Market St"}, "time": {"14:00"}, "delta_hours": {"0"}})
	require.NotNil(t, match.UnitType)
	assert.Equal(t, "ENGINE", *match.UnitType)
	assert.Equal(t, 1, match.Count, "only the 14:00 call is in the exact hour")
	assert.Equal(t, []model.HourRange{{From: 14, To: 14}}, match.HourRange)
}

func TestAddressFrequencyCutoff(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{})

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/api/calls/address-frequency", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rows []model.AddressCount
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Count)

	w, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/calls/address-frequency?cutoff_value=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	rows = nil
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	assert.Empty(t, rows)

	w, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/calls/address-frequency?cutoff_value=many", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "false", env.Status)
}

func TestListings(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{})

	_, env := do(t, r, httptest.NewRequest(http.MethodGet, "/api/calls/battalions", nil))
	var battalions []string
	require.NoError(t, json.Unmarshal(env.Data, &battalions))
	assert.Equal(t, []string{"B02", "B03"}, battalions)

	_, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/calls/neighborhoods", nil))
	var neighborhoods []string
	require.NoError(t, json.Unmarshal(env.Data, &neighborhoods))
	assert.Equal(t, []string{"Mission", "Tenderloin"}, neighborhoods)
}

func TestCallsPerHourChart(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{})

	w, env := do(t, r, httptest.NewRequest(http.MethodGet, "/api/metrics/calls-per-hour", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var chart struct {
		Labels   []string `json:"labels"`
		Datasets []struct {
			Data []float64 `json:"data"`
		} `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chart))
	require.Len(t, chart.Labels, 24)
	assert.Equal(t, "14:00", chart.Labels[14])
	require.Len(t, chart.Datasets, 1)
	assert.Equal(t, 2.0, chart.Datasets[0].Data[14])
}

func TestBattalionDrilldown(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{})

	w, env := do(t, r, postForm("/api/metrics/battalion-dist", url.Values{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No battalion provided.", env.Message)

	w, env = do(t, r, postForm("/api/metrics/battalion-dist", url.Values{"battalion": {"B03"}}))
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Labels    []string `json:"labels"`
		Battalion string   `json:"battalion"`
		Total     int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "B03", out.Battalion)
	assert.Equal(t, []string{"Medical Incident"}, out.Labels)
	assert.Equal(t, 2, out.Total)
}

func TestNeighborhoodDrilldownRequiresName(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{})

	w, env := do(t, r, postForm("/api/metrics/neighborhood-trends", url.Values{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No neighborhood provided.", env.Message)

	w, env = do(t, r, postForm("/api/metrics/neighborhood-trends", url.Values{"neighborhood": {"Tenderloin"}}))
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Labels       []string `json:"labels"`
		Neighborhood string   `json:"neighborhood_district"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "Tenderloin", out.Neighborhood)
	assert.Equal(t, []string{"2018-01-15"}, out.Labels)
}

func TestRequestIDHeader(t *testing.T) {
	r := newTestRouter(t, stubGeocoder{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
