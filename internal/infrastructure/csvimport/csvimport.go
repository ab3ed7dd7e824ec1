// Package csvimport loads the fire department calls-for-service CSV export.
package csvimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"dispatch_service/internal/domain/model"
)

const DefaultBatchSize = 500

var requiredColumns = []string{
	"call_number",
	"incident_number",
	"received_timestamp",
	"dispatch_timestamp",
	"latitude",
	"longitude",
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.000000 MST",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006 03:04:05 PM",
	"2006/01/02 03:04:05 PM",
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

// Reader decodes one call per CSV row. Headers are matched by name, either
// snake_case or the dataset's titled form ("Call Number").
type Reader struct {
	csv     *csv.Reader
	columns map[string]int
	line    int
}

func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, model.DataFormat("failed to read CSV header", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[columnName(h)] = i
	}
	for _, c := range requiredColumns {
		if _, ok := columns[c]; !ok {
			return nil, model.DataFormat(fmt.Sprintf("CSV is missing column %q", c), nil)
		}
	}
	return &Reader{csv: cr, columns: columns, line: 1}, nil
}

// Next returns io.EOF after the last row.
func (r *Reader) Next() (model.Call, error) {
	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.Call{}, io.EOF
		}
		return model.Call{}, model.DataFormat("failed to read CSV row", err)
	}
	r.line++

	p := rowParser{columns: r.columns, record: record}
	c := model.Call{
		CallNumber:                 p.integer64("call_number"),
		UnitID:                     p.str("unit_id"),
		IncidentNumber:             p.integer64("incident_number"),
		CallType:                   p.str("call_type"),
		CallDate:                   p.date("call_date"),
		WatchDate:                  p.date("watch_date"),
		ReceivedTimestamp:          p.timestamp("received_timestamp"),
		EntryTimestamp:             p.timestamp("entry_timestamp"),
		DispatchTimestamp:          p.timestamp("dispatch_timestamp"),
		ResponseTimestamp:          p.optionalTimestamp("response_timestamp"),
		OnSceneTimestamp:           p.optionalTimestamp("on_scene_timestamp"),
		TransportTimestamp:         p.optionalTimestamp("transport_timestamp"),
		HospitalTimestamp:          p.optionalTimestamp("hospital_timestamp"),
		CallFinalDisposition:       p.str("call_final_disposition"),
		AvailableTimestamp:         p.timestamp("available_timestamp"),
		Address:                    p.str("address"),
		City:                       p.str("city"),
		Zipcode:                    p.str("zipcode_of_incident"),
		Battalion:                  p.str("battalion"),
		StationArea:                p.str("station_area"),
		Box:                        p.str("box"),
		OriginalPriority:           p.str("original_priority"),
		Priority:                   p.str("priority"),
		FinalPriority:              p.integer("final_priority"),
		ALSUnit:                    p.flag("als_unit"),
		CallTypeGroup:              p.str("call_type_group"),
		NumberOfAlarms:             p.integer("number_of_alarms"),
		UnitType:                   p.str("unit_type"),
		UnitSequenceInCallDispatch: p.integer("unit_sequence_in_call_dispatch"),
		FirePreventionDistrict:     p.str("fire_prevention_district"),
		SupervisorDistrict:         p.str("supervisor_district"),
		NeighborhoodDistrict:       p.str("neighborhood_district"),
		Location:                   p.str("location"),
		RowID:                      p.str("row_id"),
		Latitude:                   p.decimal("latitude"),
		Longitude:                  p.decimal("longitude"),
	}
	if p.err != nil {
		return model.Call{}, model.DataFormat(fmt.Sprintf("line %d", r.line), p.err)
	}
	return c, nil
}

// Import streams the CSV into the writer in batches and returns how many
// calls were written.
func Import(ctx context.Context, src io.Reader, w model.CallWriter, batchSize int, logger *slog.Logger) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	r, err := NewReader(src)
	if err != nil {
		return 0, err
	}

	total := 0
	batch := make([]model.Call, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.InsertCalls(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert calls: %w", err)
		}
		total += len(batch)
		logger.Debug("imported batch", "calls", len(batch), "total", total)
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	logger.Info("csv import complete", "calls", total)
	return total, nil
}

func columnName(header string) string {
	h := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return h
}

// rowParser keeps the first conversion error so a row reads as a flat
// list of fields.
type rowParser struct {
	columns map[string]int
	record  []string
	err     error
}

func (p *rowParser) str(column string) string {
	i, ok := p.columns[column]
	if !ok || i >= len(p.record) {
		return ""
	}
	return strings.TrimSpace(p.record[i])
}

func (p *rowParser) fail(column, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", column, value, err)
	}
}

func (p *rowParser) integer64(column string) int64 {
	v := p.str(column)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(column, v, err)
	}
	return n
}

func (p *rowParser) integer(column string) int {
	return int(p.integer64(column))
}

func (p *rowParser) decimal(column string) float64 {
	v := p.str(column)
	if v == "" {
		p.fail(column, v, errors.New("empty value"))
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(column, v, err)
	}
	return f
}

func (p *rowParser) flag(column string) bool {
	switch strings.ToLower(p.str(column)) {
	case "true", "t", "1", "yes", "y":
		return true
	}
	return false
}

func (p *rowParser) timestamp(column string) time.Time {
	t, ok := p.parseTime(column, timestampLayouts)
	if !ok {
		return time.Time{}
	}
	return t
}

func (p *rowParser) optionalTimestamp(column string) *time.Time {
	t, ok := p.parseTime(column, timestampLayouts)
	if !ok {
		return nil
	}
	return &t
}

func (p *rowParser) date(column string) time.Time {
	t, ok := p.parseTime(column, dateLayouts)
	if !ok {
		return time.Time{}
	}
	return t
}

func (p *rowParser) parseTime(column string, layouts []string) (time.Time, bool) {
	v := p.str(column)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	p.fail(column, v, errors.New("unrecognized time format"))
	return time.Time{}, false
}
