package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"dispatch_service/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Boundary is a named neighborhood polygon.
type Boundary struct {
	Name  string
	Shape orb.Geometry
}

type indexedBoundary struct {
	name  string
	shape orb.Geometry
	bound orb.Bound
}

// NeighborhoodIndex answers point-in-neighborhood lookups. It is immutable
// after construction and safe for concurrent use.
type NeighborhoodIndex struct {
	boundaries []indexedBoundary
}

// BoundaryFormat selects the layout of a boundary dataset.
type BoundaryFormat string

const (
	FormatAuto     BoundaryFormat = ""
	FormatSocrata  BoundaryFormat = "socrata"
	FormatGeoJSON  BoundaryFormat = "geojson"
	defaultNameKey                = "nhood"
)

// BoundaryOptions describes where names and shapes live in a dataset.
// Socrata rows carry WKT in GeometryColumn and the name in NameColumn.
type BoundaryOptions struct {
	Format         BoundaryFormat
	GeometryColumn int
	NameColumn     int
	NameProperty   string
}

func DefaultBoundaryOptions() BoundaryOptions {
	return BoundaryOptions{
		GeometryColumn: 8,
		NameColumn:     9,
		NameProperty:   defaultNameKey,
	}
}

// NewNeighborhoodIndex validates boundaries and keeps them in load order.
func NewNeighborhoodIndex(boundaries []Boundary) (*NeighborhoodIndex, error) {
	idx := &NeighborhoodIndex{boundaries: make([]indexedBoundary, 0, len(boundaries))}
	for i, b := range boundaries {
		if strings.TrimSpace(b.Name) == "" {
			return nil, model.DataFormat(fmt.Sprintf("boundary %d has no name", i), nil)
		}
		switch b.Shape.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, model.DataFormat(fmt.Sprintf("boundary %q is not a polygon", b.Name), nil)
		}
		idx.boundaries = append(idx.boundaries, indexedBoundary{
			name:  b.Name,
			shape: b.Shape,
			bound: b.Shape.Bound(),
		})
	}
	return idx, nil
}

// LoadNeighborhoods reads a boundary dataset. Any malformed entry fails the
// whole load.
func LoadNeighborhoods(r io.Reader, opts BoundaryOptions) (*NeighborhoodIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.DataFormat("failed to read boundary dataset", err)
	}

	format := opts.Format
	if format == FormatAuto {
		format = detectFormat(data)
	}

	var boundaries []Boundary
	switch format {
	case FormatGeoJSON:
		boundaries, err = parseGeoJSON(data, opts)
	case FormatSocrata:
		boundaries, err = parseSocrata(data, opts)
	default:
		return nil, model.DataFormat(fmt.Sprintf("unknown boundary format %q", format), nil)
	}
	if err != nil {
		return nil, err
	}
	return NewNeighborhoodIndex(boundaries)
}

// Locate returns the first boundary, in load order, containing the point.
func (idx *NeighborhoodIndex) Locate(p orb.Point) (string, bool) {
	for _, b := range idx.boundaries {
		if !b.bound.Contains(p) {
			continue
		}
		if contains(b.shape, p) {
			return b.name, true
		}
	}
	return "", false
}

func (idx *NeighborhoodIndex) Names() []string {
	names := make([]string, len(idx.boundaries))
	for i, b := range idx.boundaries {
		names[i] = b.name
	}
	return names
}

func (idx *NeighborhoodIndex) Len() int {
	return len(idx.boundaries)
}

func contains(shape orb.Geometry, p orb.Point) bool {
	switch s := shape.(type) {
	case orb.Polygon:
		return planar.PolygonContains(s, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(s, p)
	}
	return false
}

func detectFormat(data []byte) BoundaryFormat {
	var peek struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return FormatAuto
	}
	if peek.Type == "FeatureCollection" {
		return FormatGeoJSON
	}
	if len(peek.Data) > 0 {
		return FormatSocrata
	}
	return FormatAuto
}

func parseGeoJSON(data []byte, opts BoundaryOptions) ([]Boundary, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, model.DataFormat("invalid GeoJSON boundary dataset", err)
	}

	key := opts.NameProperty
	if key == "" {
		key = defaultNameKey
	}

	boundaries := make([]Boundary, 0, len(fc.Features))
	for i, f := range fc.Features {
		name := f.Properties.MustString(key, "")
		if name == "" {
			return nil, model.DataFormat(fmt.Sprintf("feature %d has no %q property", i, key), nil)
		}
		boundaries = append(boundaries, Boundary{Name: name, Shape: f.Geometry})
	}
	return boundaries, nil
}

func parseSocrata(data []byte, opts BoundaryOptions) ([]Boundary, error) {
	var doc struct {
		Data [][]json.RawMessage `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, model.DataFormat("invalid boundary rows", err)
	}

	boundaries := make([]Boundary, 0, len(doc.Data))
	for i, row := range doc.Data {
		if opts.GeometryColumn >= len(row) || opts.NameColumn >= len(row) {
			return nil, model.DataFormat(fmt.Sprintf("row %d has %d columns", i, len(row)), nil)
		}

		var shapeText, name string
		if err := json.Unmarshal(row[opts.GeometryColumn], &shapeText); err != nil {
			return nil, model.DataFormat(fmt.Sprintf("row %d geometry is not a string", i), err)
		}
		if err := json.Unmarshal(row[opts.NameColumn], &name); err != nil {
			return nil, model.DataFormat(fmt.Sprintf("row %d name is not a string", i), err)
		}

		shape, err := wkt.Unmarshal(shapeText)
		if err != nil {
			return nil, model.DataFormat(fmt.Sprintf("row %d (%s) has invalid WKT", i, name), err)
		}
		boundaries = append(boundaries, Boundary{Name: name, Shape: shape})
	}
	return boundaries, nil
}
