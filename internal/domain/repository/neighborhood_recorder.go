package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresNeighborhoodRecorder struct {
	db *sqlx.DB
}

func NewPostgresNeighborhoodRecorder(db *sqlx.DB) *PostgresNeighborhoodRecorder {
	return &PostgresNeighborhoodRecorder{db: db}
}

// SetNeighborhoods writes a batch of call id -> neighborhood labels in one
// statement.
func (r *PostgresNeighborhoodRecorder) SetNeighborhoods(ctx context.Context, labels map[int64]string) error {
	if len(labels) == 0 {
		return nil
	}

	const query = `
		UPDATE calls AS c
		SET neighborhood_district = v.name
		FROM (
			SELECT unnest($1::bigint[]) AS id, unnest($2::text[]) AS name
		) AS v
		WHERE c.id = v.id`

	ids := make([]int64, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = labels[id]
	}

	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids), pq.Array(names)); err != nil {
		return fmt.Errorf("failed to update neighborhoods: %w", err)
	}
	return nil
}
