package geocoder

import (
	"context"
	"fmt"

	"dispatch_service/internal/domain/model"

	"googlemaps.github.io/maps"
)

// GoogleGeocoder uses the Google Maps geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
	region string
}

func NewGoogleGeocoder(apiKey, region string) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("error creating Google Maps client: %w", err)
	}
	return &GoogleGeocoder{client: client, region: region}, nil
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (model.Location, bool, error) {
	resp, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  g.region,
	})
	if err != nil {
		return model.Location{}, false, fmt.Errorf("error requesting geocode from google: %w", err)
	}
	if len(resp) == 0 {
		return model.Location{}, false, nil
	}

	loc := resp[0].Geometry.Location
	return model.Location{Lat: loc.Lat, Lon: loc.Lng}, true, nil
}
