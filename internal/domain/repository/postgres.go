package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"dispatch_service/internal/domain/model"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// insertBatchSize keeps a batch under the Postgres bind parameter limit.
const insertBatchSize = 500

const callColumns = `
	id, call_number, unit_id, incident_number, call_type, call_date, watch_date,
	received_timestamp, entry_timestamp, dispatch_timestamp,
	response_timestamp, on_scene_timestamp, transport_timestamp, hospital_timestamp,
	call_final_disposition, available_timestamp, address,
	COALESCE(city, '') AS city, zipcode_of_incident, battalion, station_area, box,
	original_priority, priority, final_priority, als_unit,
	COALESCE(call_type_group, '') AS call_type_group, number_of_alarms, unit_type,
	unit_sequence_in_call_dispatch, fire_prevention_district, supervisor_district,
	COALESCE(neighborhood_district, '') AS neighborhood_district, location, row_id,
	latitude::float8 AS latitude, longitude::float8 AS longitude`

const insertCallsQuery = `
	INSERT INTO calls (
		call_number, unit_id, incident_number, call_type, call_date, watch_date,
		received_timestamp, entry_timestamp, dispatch_timestamp,
		response_timestamp, on_scene_timestamp, transport_timestamp, hospital_timestamp,
		call_final_disposition, available_timestamp, address, city, zipcode_of_incident,
		battalion, station_area, box, original_priority, priority, final_priority,
		als_unit, call_type_group, number_of_alarms, unit_type,
		unit_sequence_in_call_dispatch, fire_prevention_district, supervisor_district,
		neighborhood_district, location, row_id, latitude, longitude
	) VALUES (
		:call_number, :unit_id, :incident_number, :call_type, :call_date, :watch_date,
		:received_timestamp, :entry_timestamp, :dispatch_timestamp,
		:response_timestamp, :on_scene_timestamp, :transport_timestamp, :hospital_timestamp,
		:call_final_disposition, :available_timestamp, :address, :city, :zipcode_of_incident,
		:battalion, :station_area, :box, :original_priority, :priority, :final_priority,
		:als_unit, :call_type_group, :number_of_alarms, :unit_type,
		:unit_sequence_in_call_dispatch, :fire_prevention_district, :supervisor_district,
		:neighborhood_district, :location, :row_id, :latitude, :longitude
	)`

// CallRepository is the PostGIS-backed record store.
type CallRepository struct {
	DB *sqlx.DB
}

func NewPostgresRepository(connStr string) (*CallRepository, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &CallRepository{DB: db}, nil
}

func NewCallRepository(db *sqlx.DB) *CallRepository {
	return &CallRepository{DB: db}
}

// Migrate creates the calls table and its indexes if they do not exist.
func (r *CallRepository) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *CallRepository) Close() error {
	return r.DB.Close()
}

func (r *CallRepository) Scan(ctx context.Context, filter model.CallFilter, fn func(*model.Call) error) error {
	where, args := buildWhere(filter)
	query := "SELECT " + callColumns + " FROM calls" + where + " ORDER BY id"

	rows, err := r.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var call model.Call
		if err := rows.StructScan(&call); err != nil {
			return fmt.Errorf("failed to scan call: %w", err)
		}
		if err := fn(&call); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate calls: %w", err)
	}
	return nil
}

func (r *CallRepository) Distinct(ctx context.Context, column model.Column) ([]string, error) {
	if !column.Valid() {
		return nil, fmt.Errorf("unsupported distinct column %q", column)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT %[1]s
		FROM calls
		WHERE %[1]s IS NOT NULL AND %[1]s <> ''
		ORDER BY %[1]s`, column)

	var values []string
	if err := r.DB.SelectContext(ctx, &values, query); err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", column, err)
	}
	return values, nil
}

func (r *CallRepository) InsertCalls(ctx context.Context, calls []model.Call) error {
	if len(calls) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(calls); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(calls) {
			end = len(calls)
		}
		if _, err := tx.NamedExecContext(ctx, insertCallsQuery, calls[start:end]); err != nil {
			return fmt.Errorf("failed to insert calls %d-%d: %w", start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

// buildWhere renders the filter as a WHERE clause with positional args.
func buildWhere(f model.CallFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	bind := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Near != nil {
		conds = append(conds, fmt.Sprintf(
			"ST_DWithin(point::geography, ST_SetSRID(ST_MakePoint(%s, %s), 4326)::geography, %s)",
			bind(f.Near.Center.Lon), bind(f.Near.Center.Lat), bind(f.Near.Meters)))
	}

	if len(f.Hours) > 0 {
		ranges := make([]string, 0, len(f.Hours))
		for _, h := range f.Hours {
			ranges = append(ranges, fmt.Sprintf(
				"EXTRACT(HOUR FROM received_timestamp) BETWEEN %s AND %s", bind(h.From), bind(h.To)))
		}
		conds = append(conds, "("+strings.Join(ranges, " OR ")+")")
	}

	if len(f.ExcludeCallTypes) > 0 {
		conds = append(conds, fmt.Sprintf("call_type <> ALL(%s)", bind(pq.Array(f.ExcludeCallTypes))))
	}
	if len(f.Neighborhoods) > 0 {
		conds = append(conds, fmt.Sprintf("neighborhood_district = ANY(%s)", bind(pq.Array(f.Neighborhoods))))
	}
	if f.Neighborhood != "" {
		conds = append(conds, fmt.Sprintf("neighborhood_district = %s", bind(f.Neighborhood)))
	}
	if f.Battalion != "" {
		conds = append(conds, fmt.Sprintf("battalion = %s", bind(f.Battalion)))
	}
	if f.RequireResponse {
		conds = append(conds, "response_timestamp IS NOT NULL")
	}
	if f.MissingNeighborhood {
		conds = append(conds, "(neighborhood_district IS NULL OR neighborhood_district = '')")
	}
	if f.MissingBattalion {
		conds = append(conds, "(battalion IS NULL OR battalion = '')")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
