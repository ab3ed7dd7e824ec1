package model

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// OtherLabel replaces null or blank categorical values in every grouping.
const OtherLabel = "Other"

// Call is a single unit dispatch for an incident.
type Call struct {
	ID                         int64      `db:"id" json:"id"`
	CallNumber                 int64      `db:"call_number" json:"call_number"`
	UnitID                     string     `db:"unit_id" json:"unit_id"`
	IncidentNumber             int64      `db:"incident_number" json:"incident_number"`
	CallType                   string     `db:"call_type" json:"call_type"`
	CallDate                   time.Time  `db:"call_date" json:"call_date"`
	WatchDate                  time.Time  `db:"watch_date" json:"watch_date"`
	ReceivedTimestamp          time.Time  `db:"received_timestamp" json:"received_timestamp"`
	EntryTimestamp             time.Time  `db:"entry_timestamp" json:"entry_timestamp"`
	DispatchTimestamp          time.Time  `db:"dispatch_timestamp" json:"dispatch_timestamp"`
	ResponseTimestamp          *time.Time `db:"response_timestamp" json:"response_timestamp,omitempty"`
	OnSceneTimestamp           *time.Time `db:"on_scene_timestamp" json:"on_scene_timestamp,omitempty"`
	TransportTimestamp         *time.Time `db:"transport_timestamp" json:"transport_timestamp,omitempty"`
	HospitalTimestamp          *time.Time `db:"hospital_timestamp" json:"hospital_timestamp,omitempty"`
	CallFinalDisposition       string     `db:"call_final_disposition" json:"call_final_disposition"`
	AvailableTimestamp         time.Time  `db:"available_timestamp" json:"available_timestamp"`
	Address                    string     `db:"address" json:"address"`
	City                       string     `db:"city" json:"city"`
	Zipcode                    string     `db:"zipcode_of_incident" json:"zipcode_of_incident"`
	Battalion                  string     `db:"battalion" json:"battalion"`
	StationArea                string     `db:"station_area" json:"station_area"`
	Box                        string     `db:"box" json:"box"`
	OriginalPriority           string     `db:"original_priority" json:"original_priority"`
	Priority                   string     `db:"priority" json:"priority"`
	FinalPriority              int        `db:"final_priority" json:"final_priority"`
	ALSUnit                    bool       `db:"als_unit" json:"als_unit"`
	CallTypeGroup              string     `db:"call_type_group" json:"call_type_group"`
	NumberOfAlarms             int        `db:"number_of_alarms" json:"number_of_alarms"`
	UnitType                   string     `db:"unit_type" json:"unit_type"`
	UnitSequenceInCallDispatch int        `db:"unit_sequence_in_call_dispatch" json:"unit_sequence_in_call_dispatch"`
	FirePreventionDistrict     string     `db:"fire_prevention_district" json:"fire_prevention_district"`
	SupervisorDistrict         string     `db:"supervisor_district" json:"supervisor_district"`
	NeighborhoodDistrict       string     `db:"neighborhood_district" json:"neighborhood_district"`
	Location                   string     `db:"location" json:"location"`
	RowID                      string     `db:"row_id" json:"row_id"`
	Latitude                   float64    `db:"latitude" json:"latitude"`
	Longitude                  float64    `db:"longitude" json:"longitude"`
}

// DispatchTime is the delay between the call being received and a unit
// being dispatched. It can be zero or negative for bad records.
func (c *Call) DispatchTime() time.Duration {
	return c.DispatchTimestamp.Sub(c.ReceivedTimestamp)
}

// ResponseTime returns the delay until the unit responded, if it did.
func (c *Call) ResponseTime() (time.Duration, bool) {
	if c.ResponseTimestamp == nil {
		return 0, false
	}
	return c.ResponseTimestamp.Sub(c.ReceivedTimestamp), true
}

// Point is the call position projected from its coordinates.
func (c *Call) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// Normalize maps null or blank categorical values to OtherLabel.
func Normalize(value string) string {
	if strings.TrimSpace(value) == "" {
		return OtherLabel
	}
	return value
}

// Location is a geocoded position.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

func (l Location) Point() orb.Point {
	return orb.Point{l.Lon, l.Lat}
}

// HourRange is an inclusive range of received hours of day.
type HourRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r HourRange) Contains(hour int) bool {
	return hour >= r.From && hour <= r.To
}

// Radius restricts a scan to calls within Meters of Center.
type Radius struct {
	Center Location
	Meters float64
}

// CallFilter is pushed down to the record store. Zero value matches all.
type CallFilter struct {
	Near                *Radius
	Hours               []HourRange
	ExcludeCallTypes    []string
	Neighborhoods       []string
	Neighborhood        string
	Battalion           string
	RequireResponse     bool
	MissingNeighborhood bool
	MissingBattalion    bool
}

// Column names a categorical column that supports distinct listings.
type Column string

const (
	ColumnNeighborhood Column = "neighborhood_district"
	ColumnBattalion    Column = "battalion"
	ColumnUnitType     Column = "unit_type"
	ColumnCallType     Column = "call_type"
)

func (c Column) Valid() bool {
	switch c {
	case ColumnNeighborhood, ColumnBattalion, ColumnUnitType, ColumnCallType:
		return true
	}
	return false
}
