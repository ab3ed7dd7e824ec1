package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dispatch_service/internal/domain/model"
)

// NominatimClient queries an OSM Nominatim search endpoint.
type NominatimClient struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

func NewNominatimClient(endpoint, userAgent string, timeout time.Duration) *NominatimClient {
	return &NominatimClient{
		endpoint:  endpoint,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (c *NominatimClient) Geocode(ctx context.Context, address string) (model.Location, bool, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/search?"+params.Encode(), nil)
	if err != nil {
		return model.Location{}, false, fmt.Errorf("failed to create geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return model.Location{}, false, fmt.Errorf("nominatim request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Location{}, false, fmt.Errorf("nominatim returned status: %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return model.Location{}, false, fmt.Errorf("failed to decode nominatim response: %w", err)
	}
	if len(places) == 0 {
		return model.Location{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return model.Location{}, false, fmt.Errorf("invalid latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return model.Location{}, false, fmt.Errorf("invalid longitude %q: %w", places[0].Lon, err)
	}
	return model.Location{Lat: lat, Lon: lon}, true, nil
}
