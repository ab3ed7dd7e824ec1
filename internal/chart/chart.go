// Package chart shapes query results into the parallel label/data arrays
// consumed by the dashboard charts.
package chart

import (
	"sort"
	"strings"
	"time"

	"dispatch_service/internal/domain/model"
)

// palette holds the dashboard background colours. Border colours are the
// same with full opacity.
var palette = []string{
	"rgba(227, 26, 28, 0.3)",
	"rgba(31, 120, 180, 0.3)",
	"rgba(178, 223, 138, 0.5)",
	"rgba(106, 61, 154, 0.3)",
	"rgba(255, 127, 0, 0.3)",
	"rgba(251, 154, 153, 0.3)",
	"rgba(253, 191, 111, 0.3)",
	"rgba(51, 160, 44, 0.3)",
	"rgba(141, 211, 199, 0.5)",
	"rgba(202, 178, 214, 0.3)",
	"rgba(243, 128, 255, 0.3)",
}

const (
	AxisStacked = "stacked"
	AxisTotal   = "total"
)

// Dataset is one series of a chart.
type Dataset struct {
	Label           string    `json:"label"`
	Type            string    `json:"type,omitempty"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor"`
	BorderColor     []string  `json:"borderColor"`
	BorderWidth     int       `json:"borderWidth"`
	Fill            bool      `json:"fill"`
	YAxisID         string    `json:"yAxisID,omitempty"`
}

type Chart struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// SeriesChart is a dated chart with the bounds used to scale its axis.
type SeriesChart struct {
	Chart
	Limits       model.Limits `json:"limits"`
	Neighborhood string       `json:"neighborhood_district,omitempty"`
}

func PaletteSize() int {
	return len(palette)
}

// BackgroundColor cycles through the palette.
func BackgroundColor(i int) string {
	if i < 0 {
		i = -i
	}
	return palette[i%len(palette)]
}

func BorderColor(i int) string {
	return opaque(BackgroundColor(i))
}

func BackgroundColors(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = BackgroundColor(i)
	}
	return out
}

func BorderColors(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = BorderColor(i)
	}
	return out
}

func opaque(rgba string) string {
	i := strings.LastIndex(rgba, ",")
	if i < 0 {
		return rgba
	}
	return rgba[:i] + ", 1)"
}

// Bar colours every bar separately.
func Bar(label string, v model.LabeledValues) Chart {
	return Chart{
		Labels:   nonNil(v.Labels),
		Datasets: []Dataset{PieDataset(label, v)},
	}
}

// Line draws a single series in the first palette colour.
func Line(label string, v model.LabeledValues) Chart {
	return Chart{
		Labels: nonNil(v.Labels),
		Datasets: []Dataset{{
			Label:           label,
			Data:            nonNilValues(v.Values),
			BackgroundColor: BackgroundColors(1),
			BorderColor:     BorderColors(1),
			BorderWidth:     1,
		}},
	}
}

// PieDataset is a single dataset with one colour per value.
func PieDataset(label string, v model.LabeledValues) Dataset {
	return Dataset{
		Label:           label,
		Data:            nonNilValues(v.Values),
		BackgroundColor: BackgroundColors(len(v.Values)),
		BorderColor:     BorderColors(len(v.Values)),
		BorderWidth:     1,
	}
}

// Dense lays a sparse date->value map over the given labels, filling the
// missing ones with 0.
func Dense(labels []string, sparse map[string]float64) []float64 {
	out := make([]float64, len(labels))
	for i, l := range labels {
		out[i] = sparse[l]
	}
	return out
}

const dateLayout = "2006-01-02"

// DayRange returns every calendar day from the earliest to the latest of
// dates. If any label is not a date the sorted distinct labels are
// returned instead.
func DayRange(dates []string) []string {
	if len(dates) == 0 {
		return []string{}
	}
	var lo, hi time.Time
	for i, d := range dates {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return distinctSorted(dates)
		}
		if i == 0 || t.Before(lo) {
			lo = t
		}
		if i == 0 || t.After(hi) {
			hi = t
		}
	}

	out := make([]string, 0, int(hi.Sub(lo).Hours()/24)+1)
	for t := lo; !t.After(hi); t = t.AddDate(0, 0, 1) {
		out = append(out, t.Format(dateLayout))
	}
	return out
}

func distinctSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Trends draws one incident line per neighborhood over every day between
// the first and last date any of them has data for.
func Trends(trends []model.NeighborhoodTrend) SeriesChart {
	var all []string
	for _, t := range trends {
		for _, p := range t.Points {
			all = append(all, p.Date)
		}
	}
	dates := DayRange(all)

	out := SeriesChart{Chart: Chart{Labels: dates, Datasets: make([]Dataset, 0, len(trends))}}
	first := true
	for i, t := range trends {
		sparse := make(map[string]float64, len(t.Points))
		for _, p := range t.Points {
			sparse[p.Date] = float64(p.Incidents)
		}
		data := Dense(dates, sparse)
		for _, v := range data {
			out.Limits = widen(out.Limits, int(v), first)
			first = false
		}
		out.Datasets = append(out.Datasets, Dataset{
			Label:           t.Neighborhood,
			Data:            data,
			BackgroundColor: []string{BackgroundColor(i)},
			BorderColor:     []string{BorderColor(i)},
			BorderWidth:     1,
		})
	}
	return out
}

// Drilldown stacks one bar per call type under a line of daily totals.
// Days without incidents inside the range are drawn as 0.
func Drilldown(d model.NeighborhoodDrilldown) SeriesChart {
	dates := DayRange(d.Dates)
	callTypes := make([]string, 0, len(d.ByCallType))
	for ct := range d.ByCallType {
		callTypes = append(callTypes, ct)
	}
	sort.Strings(callTypes)

	out := SeriesChart{
		Chart:        Chart{Labels: dates, Datasets: make([]Dataset, 0, len(callTypes)+1)},
		Limits:       d.Limits,
		Neighborhood: d.Neighborhood,
	}

	totals := make(map[string]float64, len(d.Totals))
	for date, n := range d.Totals {
		totals[date] = float64(n)
	}
	totalData := Dense(dates, totals)
	for i, v := range totalData {
		out.Limits = widen(out.Limits, int(v), i == 0)
	}
	out.Datasets = append(out.Datasets, Dataset{
		Label:           "Total",
		Type:            "line",
		Data:            totalData,
		BackgroundColor: []string{BackgroundColor(0)},
		BorderColor:     []string{BorderColor(0)},
		BorderWidth:     1,
		YAxisID:         AxisTotal,
	})

	for i, ct := range callTypes {
		sparse := make(map[string]float64, len(d.ByCallType[ct]))
		for date, n := range d.ByCallType[ct] {
			sparse[date] = float64(n)
		}
		out.Datasets = append(out.Datasets, Dataset{
			Label:           ct,
			Type:            "bar",
			Data:            Dense(dates, sparse),
			BackgroundColor: []string{BackgroundColor(i + 1)},
			BorderColor:     []string{BorderColor(i + 1)},
			BorderWidth:     1,
			YAxisID:         AxisStacked,
		})
	}
	return out
}

func widen(l model.Limits, v int, first bool) model.Limits {
	if first {
		return model.Limits{Min: v, Max: v}
	}
	if v < l.Min {
		l.Min = v
	}
	if v > l.Max {
		l.Max = v
	}
	return l
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilValues(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
