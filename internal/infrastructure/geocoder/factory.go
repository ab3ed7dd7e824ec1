package geocoder

import (
	"fmt"
	"log/slog"

	"dispatch_service/internal/config"
	"dispatch_service/internal/domain/model"
	"dispatch_service/internal/domain/repository"
)

// FromConfig builds the configured provider wrapped in its guard. The
// returned close func releases the cache.
func FromConfig(cfg config.GeocoderConfig, logger *slog.Logger) (*Guarded, func() error, error) {
	next, err := newProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	cache, err := OpenCache(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		return nil, nil, err
	}

	g := NewGuarded(next, GuardOptions{
		Provider:      cfg.Provider,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
		Cache:         cache,
		Logger:        logger,
	})
	return g, cache.Close, nil
}

func newProvider(cfg config.GeocoderConfig) (model.Geocoder, error) {
	switch cfg.Provider {
	case config.GeocoderNominatim:
		return NewNominatimClient(cfg.Endpoint, cfg.UserAgent, cfg.Timeout), nil
	case config.GeocoderGoogle:
		g, err := NewGoogleGeocoder(cfg.APIKey, cfg.Region)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.GeocoderOverpass:
		return repository.NewOverpassGeocoder(cfg.Endpoint, cfg.BBox, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown geocoder provider %q", cfg.Provider)
}
