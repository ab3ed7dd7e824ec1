package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dispatch_service/internal/domain/model"

	"github.com/paulmach/orb/geo"
)

// MemoryRepository keeps calls in process. It serves small CSV datasets and
// tests. fn passed to Scan must not write back to the repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	calls  []model.Call
	nextID int64
}

func NewMemoryRepository(calls ...model.Call) *MemoryRepository {
	r := &MemoryRepository{}
	_ = r.InsertCalls(context.Background(), calls)
	return r
}

func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

func (r *MemoryRepository) Scan(ctx context.Context, filter model.CallFilter, fn func(*model.Call) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.calls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !matches(&r.calls[i], filter) {
			continue
		}
		call := r.calls[i]
		if err := fn(&call); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepository) Distinct(ctx context.Context, column model.Column) ([]string, error) {
	if !column.Valid() {
		return nil, fmt.Errorf("unsupported distinct column %q", column)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for i := range r.calls {
		if v := columnValue(&r.calls[i], column); v != "" {
			seen[v] = struct{}{}
		}
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

func (r *MemoryRepository) InsertCalls(ctx context.Context, calls []model.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range calls {
		if c.ID == 0 {
			r.nextID++
			c.ID = r.nextID
		} else if c.ID > r.nextID {
			r.nextID = c.ID
		}
		r.calls = append(r.calls, c)
	}
	return nil
}

func (r *MemoryRepository) SetNeighborhoods(ctx context.Context, labels map[int64]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.calls {
		if name, ok := labels[r.calls[i].ID]; ok {
			r.calls[i].NeighborhoodDistrict = name
		}
	}
	return nil
}

func columnValue(c *model.Call, column model.Column) string {
	switch column {
	case model.ColumnNeighborhood:
		return c.NeighborhoodDistrict
	case model.ColumnBattalion:
		return c.Battalion
	case model.ColumnUnitType:
		return c.UnitType
	case model.ColumnCallType:
		return c.CallType
	}
	return ""
}

// matches mirrors the WHERE clause built for Postgres.
func matches(c *model.Call, f model.CallFilter) bool {
	if f.Near != nil {
		if geo.DistanceHaversine(c.Point(), f.Near.Center.Point()) > f.Near.Meters {
			return false
		}
	}

	if len(f.Hours) > 0 {
		hour := c.ReceivedTimestamp.Hour()
		inWindow := false
		for _, h := range f.Hours {
			if h.Contains(hour) {
				inWindow = true
				break
			}
		}
		if !inWindow {
			return false
		}
	}

	for _, t := range f.ExcludeCallTypes {
		if c.CallType == t {
			return false
		}
	}

	if len(f.Neighborhoods) > 0 {
		found := false
		for _, n := range f.Neighborhoods {
			if c.NeighborhoodDistrict == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.Neighborhood != "" && c.NeighborhoodDistrict != f.Neighborhood {
		return false
	}
	if f.Battalion != "" && c.Battalion != f.Battalion {
		return false
	}
	if f.RequireResponse && c.ResponseTimestamp == nil {
		return false
	}
	if f.MissingNeighborhood && c.NeighborhoodDistrict != "" {
		return false
	}
	if f.MissingBattalion && c.Battalion != "" {
		return false
	}
	return true
}
