package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dispatch_service/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimGeocode(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantFound bool
		wantErr   bool
	}{
		{"match", http.StatusOK, `[{"lat":"37.7936","lon":"-122.3950","display_name":"1 Market St"}]`, true, false},
		{"no match", http.StatusOK, `[]`, false, false},
		{"server error", http.StatusBadGateway, ``, false, true},
		{"bad coordinates", http.StatusOK, `[{"lat":"north","lon":"-122.39"}]`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/search", r.URL.Path)
				assert.Equal(t, "1 Market St, San Francisco", r.URL.Query().Get("q"))
				assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
				assert.Equal(t, "dispatch-test", r.Header.Get("User-Agent"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewNominatimClient(srv.URL, "dispatch-test", time.Second)
			loc, found, err := c.Geocode(context.Background(), "1 Market St, San Francisco")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if found {
				assert.InDelta(t, 37.7936, loc.Lat, 1e-9)
				assert.InDelta(t, -122.3950, loc.Lon, 1e-9)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Geocoder
	g, closeFn, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.NoError(t, closeFn())

	cfg.Provider = "bing"
	_, _, err = FromConfig(cfg, nil)
	assert.Error(t, err)
}
