package core

import (
	"context"
	"math"
	"strings"
	"time"

	"dispatch_service/internal/domain/model"
)

// MaxHalfWindowHours bounds the time window; a wider one covers the whole day.
const MaxHalfWindowHours = 24.0

// MatchQuery asks which unit type is most often sent near an address
// around a time of day. Nil RadiusKm and HalfWindowHours use the
// configured defaults. A zero half-window matches the exact hour.
type MatchQuery struct {
	Address         string
	RadiusKm        *float64
	Time            string
	HalfWindowHours *float64
}

// NearestUnitType finds the most frequent unit type among calls within the
// radius of the geocoded address whose received hour falls in the window.
// No matching calls is a valid, empty answer.
func (s *DispatchService) NearestUnitType(ctx context.Context, q MatchQuery) (model.UnitTypeMatch, error) {
	address := strings.TrimSpace(q.Address)
	if address == "" {
		return model.UnitTypeMatch{}, model.MissingParameter("address", "No address provided.")
	}

	if strings.TrimSpace(q.Time) == "" {
		return model.UnitTypeMatch{}, model.MissingParameter("time", "No time provided.")
	}
	center, err := ParseTimeOfDay(q.Time)
	if err != nil {
		return model.UnitTypeMatch{}, model.UnresolvableInput("time", "Invalid time.", err)
	}

	radiusKm := s.opts.DefaultRadiusKm
	if q.RadiusKm != nil {
		radiusKm = *q.RadiusKm
	}
	switch {
	case !finite(radiusKm):
		return model.UnitTypeMatch{}, model.UnresolvableInput("radius", "Invalid radius.", nil)
	case radiusKm <= 0:
		return model.UnitTypeMatch{}, model.UnresolvableInput("radius", "Radius must be positive.", nil)
	}

	halfHours := s.opts.DefaultHalfWindow
	if q.HalfWindowHours != nil {
		halfHours = *q.HalfWindowHours
	}
	switch {
	case !finite(halfHours):
		return model.UnitTypeMatch{}, model.UnresolvableInput("delta_hours", "Invalid time window.", nil)
	case halfHours < 0:
		return model.UnitTypeMatch{}, model.UnresolvableInput("delta_hours", "Time window must be positive.", nil)
	case halfHours > MaxHalfWindowHours:
		return model.UnitTypeMatch{}, model.UnresolvableInput("delta_hours", "Time window must be at most 24 hours.", nil)
	}

	if s.geocoder == nil {
		return model.UnitTypeMatch{}, model.UpstreamUnavailable("Geocoding is not configured.", nil)
	}
	loc, found, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return model.UnitTypeMatch{}, model.UpstreamUnavailable("Geocoding service unavailable.", err)
	}
	if !found {
		return model.UnitTypeMatch{}, model.UnresolvableInput("address", "Invalid address.", nil)
	}

	hours := HourWindow(center, time.Duration(halfHours*float64(time.Hour)), s.opts.WrapMidnight)
	result := model.UnitTypeMatch{
		Location:  loc,
		RadiusKm:  radiusKm,
		HourRange: hours,
	}

	buckets, err := s.engine.Group(ctx, Grouping{
		Name: "nearest_unit_type",
		Filter: model.CallFilter{
			Near:  &model.Radius{Center: loc, Meters: radiusKm * 1000},
			Hours: hours,
		},
		Keys:   []KeyFunc{byUnitType},
		SortBy: SortByCount,
		Desc:   true,
		Limit:  1,
	})
	if err != nil {
		return model.UnitTypeMatch{}, err
	}

	if len(buckets) > 0 {
		unitType := buckets[0].Key[0]
		result.UnitType = &unitType
		result.Count = buckets[0].Count
	}

	s.logger.Debug("nearest unit type",
		"address", address,
		"radius_km", radiusKm,
		"hours", hours,
		"match", result.Count)
	return result, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
