package model

// UnitTypeMatch is the most frequent unit type near an address during a
// time-of-day window. UnitType is nil when nothing matched.
type UnitTypeMatch struct {
	UnitType  *string     `json:"unit_type_match"`
	Count     int         `json:"unit_type_match_count"`
	Location  Location    `json:"location"`
	RadiusKm  float64     `json:"radius_km"`
	HourRange []HourRange `json:"hour_ranges"`
}

// AddressDelay is one row of the longest-dispatch ranking.
type AddressDelay struct {
	Address         string  `json:"address"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	AvgDispatchTime string  `json:"avg_dispatch_time"`
	AvgSeconds      float64 `json:"avg_dispatch_seconds"`
	Count           int     `json:"count"`
	Incidents       int     `json:"incidents"`
}

// AddressCount is one heatmap point of the address frequency query.
type AddressCount struct {
	Address string  `json:"address"`
	Count   int     `json:"count"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// NeighborhoodSafety ranks a neighborhood by its incident count.
type NeighborhoodSafety struct {
	Neighborhood string `json:"neighborhood_district"`
	Calls        int    `json:"calls"`
	Incidents    int    `json:"incidents"`
}

// LabeledValues is a categorical series in label order.
type LabeledValues struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"data"`
}

// BattalionCallTypes is the call-type drill-down of one battalion.
type BattalionCallTypes struct {
	Battalion string        `json:"battalion"`
	Total     int           `json:"total"`
	CallTypes LabeledValues `json:"call_types"`
}

// DailyCount is one dated point of a trend line.
type DailyCount struct {
	Date      string `json:"date"`
	Calls     int    `json:"calls"`
	Incidents int    `json:"incidents"`
}

// NeighborhoodTrend is the sparse incident series of one neighborhood.
type NeighborhoodTrend struct {
	Neighborhood string       `json:"neighborhood_district"`
	Points       []DailyCount `json:"points"`
}

// Limits bounds a series.
type Limits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// NeighborhoodDrilldown breaks a neighborhood's incidents down by date and
// call type. Totals holds the per-date incidents across all call types.
type NeighborhoodDrilldown struct {
	Neighborhood string                    `json:"neighborhood_district"`
	Dates        []string                  `json:"dates"`
	ByCallType   map[string]map[string]int `json:"by_call_type"`
	Totals       map[string]int            `json:"totals"`
	Limits       Limits                    `json:"limits"`
}
