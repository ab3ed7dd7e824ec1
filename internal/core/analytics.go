package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"dispatch_service/internal/domain/model"
)

// LongestDispatch ranks addresses by mean dispatch delay, slowest first.
func (s *DispatchService) LongestDispatch(ctx context.Context) ([]model.AddressDelay, error) {
	buckets, err := s.engine.Group(ctx, Grouping{
		Name:    "longest_dispatch",
		Keys:    []KeyFunc{byAddress},
		Measure: dispatchTime,
		SortBy:  SortByMeanDuration,
		Desc:    true,
		Limit:   s.opts.LongestDispatchLimit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.AddressDelay, 0, len(buckets))
	for _, b := range buckets {
		lat, lon := b.Centroid()
		mean := b.MeanDuration()
		out = append(out, model.AddressDelay{
			Address:         b.Key[0],
			Lat:             lat,
			Lng:             lon,
			AvgDispatchTime: FormatClock(mean),
			AvgSeconds:      mean.Truncate(time.Second).Seconds(),
			Count:           b.Count,
			Incidents:       b.Incidents(),
		})
	}
	return out, nil
}

// AddressFrequency lists addresses with at least cutoff calls, busiest
// first.
func (s *DispatchService) AddressFrequency(ctx context.Context, cutoff int) ([]model.AddressCount, error) {
	buckets, err := s.engine.Group(ctx, Grouping{
		Name:   "address_frequency",
		Keys:   []KeyFunc{byAddress},
		SortBy: SortByCount,
		Desc:   true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.AddressCount, 0)
	for _, b := range buckets {
		if b.Count < cutoff {
			// sorted by count, nothing below qualifies
			break
		}
		lat, lon := b.Centroid()
		out = append(out, model.AddressCount{
			Address: b.Key[0],
			Count:   b.Count,
			Lat:     lat,
			Lng:     lon,
		})
	}
	return out, nil
}

// SafestNeighborhoods ranks neighborhoods by incident count, fewest first,
// ignoring the excluded call types. nil uses the configured exclusions.
func (s *DispatchService) SafestNeighborhoods(ctx context.Context, excluded []string) ([]model.NeighborhoodSafety, error) {
	if excluded == nil {
		excluded = s.opts.SafeExcludedCallTypes
	}

	buckets, err := s.engine.Group(ctx, Grouping{
		Name:   "safest_neighborhoods",
		Filter: model.CallFilter{ExcludeCallTypes: excluded},
		Keys:   []KeyFunc{byNeighborhood},
		SortBy: SortByIncidents,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.NeighborhoodSafety, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, model.NeighborhoodSafety{
			Neighborhood: b.Key[0],
			Calls:        b.Count,
			Incidents:    b.Incidents(),
		})
	}
	return out, nil
}

func (s *DispatchService) Neighborhoods(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, model.ColumnNeighborhood)
}

func (s *DispatchService) Battalions(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, model.ColumnBattalion)
}

func (s *DispatchService) distinct(ctx context.Context, column model.Column) ([]string, error) {
	values, err := s.store.Distinct(ctx, column)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s values: %w", column, err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

// AverageResponseTime is the mean received-to-response time per call type
// group, in minutes truncated to two decimals.
func (s *DispatchService) AverageResponseTime(ctx context.Context) (model.LabeledValues, error) {
	buckets, err := s.engine.Group(ctx, Grouping{
		Name:    "group_response_time",
		Filter:  model.CallFilter{RequireResponse: true},
		Keys:    []KeyFunc{byCallTypeGroup},
		Measure: responseTime,
		SortBy:  SortByKey,
	})
	if err != nil {
		return model.LabeledValues{}, err
	}

	out := model.LabeledValues{
		Labels: make([]string, 0, len(buckets)),
		Values: make([]float64, 0, len(buckets)),
	}
	for _, b := range buckets {
		out.Labels = append(out.Labels, ShortenGroupLabel(b.Key[0]))
		out.Values = append(out.Values, TruncatedMinutes(b.MeanDuration()))
	}
	return out, nil
}

// CallsPerHour averages call counts for each hour of day over the days
// that appear in the data.
func (s *DispatchService) CallsPerHour(ctx context.Context) (model.LabeledValues, error) {
	buckets, err := s.engine.Group(ctx, Grouping{
		Name:   "calls_per_hour",
		Keys:   []KeyFunc{byReceivedDate, byReceivedHour},
		SortBy: SortByKey,
	})
	if err != nil {
		return model.LabeledValues{}, err
	}

	days := make(map[string]struct{})
	var totals [24]int
	for _, b := range buckets {
		days[b.Key[0]] = struct{}{}
		hour, err := strconv.Atoi(b.Key[1])
		if err != nil || hour < 0 || hour > 23 {
			continue
		}
		totals[hour] += b.Count
	}

	out := model.LabeledValues{
		Labels: make([]string, 24),
		Values: make([]float64, 24),
	}
	for h := 0; h < 24; h++ {
		out.Labels[h] = fmt.Sprintf("%02d:00", h)
		out.Values[h] = safeDiv(float64(totals[h]), float64(len(days)))
	}
	return out, nil
}

// UnitTypeDistribution is each unit type's share of all calls.
func (s *DispatchService) UnitTypeDistribution(ctx context.Context) (model.LabeledValues, error) {
	buckets, err := s.engine.Group(ctx, Grouping{
		Name:   "unit_type_distribution",
		Keys:   []KeyFunc{byUnitType},
		SortBy: SortByKey,
	})
	if err != nil {
		return model.LabeledValues{}, err
	}

	var total int
	for _, b := range buckets {
		total += b.Count
	}

	out := model.LabeledValues{
		Labels: make([]string, 0, len(buckets)),
		Values: make([]float64, 0, len(buckets)),
	}
	for _, b := range buckets {
		out.Labels = append(out.Labels, b.Key[0])
		out.Values = append(out.Values, safeDiv(float64(b.Count), float64(total)))
	}
	return out, nil
}

// BattalionDistribution counts calls per battalion in battalion order.
func (s *DispatchService) BattalionDistribution(ctx context.Context) (model.LabeledValues, error) {
	return s.countBy(ctx, Grouping{
		Name:   "battalion_distribution",
		Keys:   []KeyFunc{byBattalion},
		SortBy: SortByKey,
	})
}

// BattalionCallTypes counts one battalion's calls per call type.
func (s *DispatchService) BattalionCallTypes(ctx context.Context, battalion string) (model.BattalionCallTypes, error) {
	battalion = strings.TrimSpace(battalion)
	if battalion == "" {
		return model.BattalionCallTypes{}, model.MissingParameter("battalion", "No battalion provided.")
	}

	filter := model.CallFilter{Battalion: battalion}
	if battalion == model.OtherLabel {
		filter = model.CallFilter{MissingBattalion: true}
	}
	counts, err := s.countBy(ctx, Grouping{
		Name:   "battalion_call_types",
		Filter: filter,
		Keys:   []KeyFunc{byCallType},
		SortBy: SortByKey,
	})
	if err != nil {
		return model.BattalionCallTypes{}, err
	}

	var total int
	for _, v := range counts.Values {
		total += int(v)
	}
	return model.BattalionCallTypes{
		Battalion: battalion,
		Total:     total,
		CallTypes: counts,
	}, nil
}

func (s *DispatchService) countBy(ctx context.Context, g Grouping) (model.LabeledValues, error) {
	buckets, err := s.engine.Group(ctx, g)
	if err != nil {
		return model.LabeledValues{}, err
	}

	out := model.LabeledValues{
		Labels: make([]string, 0, len(buckets)),
		Values: make([]float64, 0, len(buckets)),
	}
	for _, b := range buckets {
		out.Labels = append(out.Labels, b.Key[0])
		out.Values = append(out.Values, float64(b.Count))
	}
	return out, nil
}

// NeighborhoodTrends returns a sparse daily series per shortlisted
// neighborhood, in shortlist order. nil uses the configured shortlist.
func (s *DispatchService) NeighborhoodTrends(ctx context.Context, shortlist []string) ([]model.NeighborhoodTrend, error) {
	if len(shortlist) == 0 {
		shortlist = s.opts.TrendNeighborhoods
	}

	buckets, err := s.engine.Group(ctx, Grouping{
		Name:   "neighborhood_trends",
		Filter: model.CallFilter{Neighborhoods: shortlist},
		Keys:   []KeyFunc{byNeighborhood, byReceivedDate},
		SortBy: SortByKey,
	})
	if err != nil {
		return nil, err
	}

	points := make(map[string][]model.DailyCount, len(shortlist))
	for _, b := range buckets {
		points[b.Key[0]] = append(points[b.Key[0]], model.DailyCount{
			Date:      b.Key[1],
			Calls:     b.Count,
			Incidents: b.Incidents(),
		})
	}

	out := make([]model.NeighborhoodTrend, 0, len(shortlist))
	for _, name := range shortlist {
		series := points[name]
		if series == nil {
			series = []model.DailyCount{}
		}
		out = append(out, model.NeighborhoodTrend{Neighborhood: name, Points: series})
	}
	return out, nil
}

// NeighborhoodDrilldown breaks one neighborhood's incidents down by date
// and call type.
func (s *DispatchService) NeighborhoodDrilldown(ctx context.Context, neighborhood string) (model.NeighborhoodDrilldown, error) {
	neighborhood = strings.TrimSpace(neighborhood)
	if neighborhood == "" {
		return model.NeighborhoodDrilldown{}, model.MissingParameter("neighborhood", "No neighborhood provided.")
	}

	// "Other" is the label for calls without a neighborhood
	filter := model.CallFilter{Neighborhood: neighborhood}
	if neighborhood == model.OtherLabel {
		filter = model.CallFilter{MissingNeighborhood: true}
	}
	buckets, err := s.engine.Group(ctx, Grouping{
		Name:   "neighborhood_drilldown",
		Filter: filter,
		Keys:   []KeyFunc{byReceivedDate, byCallType},
		SortBy: SortByKey,
	})
	if err != nil {
		return model.NeighborhoodDrilldown{}, err
	}

	out := model.NeighborhoodDrilldown{
		Neighborhood: neighborhood,
		Dates:        []string{},
		ByCallType:   make(map[string]map[string]int),
		Totals:       make(map[string]int),
	}
	for _, b := range buckets {
		date, callType := b.Key[0], b.Key[1]
		if _, seen := out.Totals[date]; !seen {
			out.Dates = append(out.Dates, date)
		}
		out.Totals[date] += b.Incidents()

		byDate, ok := out.ByCallType[callType]
		if !ok {
			byDate = make(map[string]int)
			out.ByCallType[callType] = byDate
		}
		byDate[date] = b.Incidents()
	}
	sort.Strings(out.Dates)

	for i, date := range out.Dates {
		total := out.Totals[date]
		if i == 0 || total < out.Limits.Min {
			out.Limits.Min = total
		}
		if i == 0 || total > out.Limits.Max {
			out.Limits.Max = total
		}
	}
	return out, nil
}

// FormatClock renders a duration as H:MM:SS, dropping fractional seconds.
func FormatClock(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	sec := (d % time.Minute) / time.Second
	return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, sec)
}

// TruncatedMinutes drops the fractional seconds, then truncates the minute
// value to two decimals. Hundredths are counted in integers so that exact
// values such as 69s = 1.15 survive.
func TruncatedMinutes(d time.Duration) float64 {
	s := int64(d / time.Second)
	return float64(s*100/60) / 100
}

// ShortenGroupLabel abbreviates "Threatening" for chart axes.
func ShortenGroupLabel(label string) string {
	label = strings.ReplaceAll(label, "Threatening", "Threat.")
	return strings.ReplaceAll(label, "threatening", "Threat.")
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
