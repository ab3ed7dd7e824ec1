package repository

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"dispatch_service/internal/domain/model"

	"github.com/serjvanilla/go-overpass"
)

// OverpassGeocoder resolves "<number> <street>" addresses against OSM
// address tags inside a bounding box ("south,west,north,east").
type OverpassGeocoder struct {
	client  *overpass.Client
	bbox    string
	timeout time.Duration
}

func NewOverpassGeocoder(endpoint string, bbox string, timeout time.Duration) *OverpassGeocoder {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &OverpassGeocoder{
		client:  &client,
		bbox:    bbox,
		timeout: timeout,
	}
}

var houseNumberPattern = regexp.MustCompile(`^\d+[A-Za-z]?$`)

var streetSuffixes = map[string]string{
	"st":   "Street",
	"av":   "Avenue",
	"ave":  "Avenue",
	"blvd": "Boulevard",
	"dr":   "Drive",
	"rd":   "Road",
	"ln":   "Lane",
	"ct":   "Court",
	"pl":   "Place",
	"ter":  "Terrace",
	"wy":   "Way",
	"hwy":  "Highway",
}

func (g *OverpassGeocoder) Geocode(ctx context.Context, address string) (model.Location, bool, error) {
	number, street, ok := splitAddress(address)
	if !ok {
		return model.Location{}, false, nil
	}

	streetExpr := "^" + escapeOverpass(regexp.QuoteMeta(street)) + "$"
	number = escapeOverpass(number)
	query := fmt.Sprintf(`
		[out:json][timeout:25];
		(
			node["addr:housenumber"="%s"]["addr:street"~"%s",i](%s);
			way["addr:housenumber"="%s"]["addr:street"~"%s",i](%s);
		);
		out body;
		>;
		out skel qt;
	`,
		number, streetExpr, g.bbox,
		number, streetExpr, g.bbox)

	result, err := g.executeQuery(ctx, query)
	if err != nil {
		return model.Location{}, false, fmt.Errorf("failed to execute address query: %w", err)
	}

	loc, found := firstAddressMatch(result)
	return loc, found, nil
}

func (g *OverpassGeocoder) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type response struct {
		result overpass.Result
		err    error
	}
	done := make(chan response, 1)
	go func() {
		result, err := g.client.Query(query)
		done <- response{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("overpass query canceled: %w", ctx.Err())
	case resp := <-done:
		if resp.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", resp.err)
		}
		return &resp.result, nil
	}
}

// firstAddressMatch prefers tagged nodes over ways, lowest id first. Way
// positions are the mean of their member nodes.
func firstAddressMatch(result *overpass.Result) (model.Location, bool) {
	var nodeIDs []int64
	for id, node := range result.Nodes {
		if _, tagged := node.Tags["addr:housenumber"]; tagged {
			nodeIDs = append(nodeIDs, id)
		}
	}
	if len(nodeIDs) > 0 {
		sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
		node := result.Nodes[nodeIDs[0]]
		return model.Location{Lat: node.Lat, Lon: node.Lon}, true
	}

	var wayIDs []int64
	for id, way := range result.Ways {
		if len(way.Nodes) > 0 {
			wayIDs = append(wayIDs, id)
		}
	}
	if len(wayIDs) == 0 {
		return model.Location{}, false
	}
	sort.Slice(wayIDs, func(i, j int) bool { return wayIDs[i] < wayIDs[j] })

	way := result.Ways[wayIDs[0]]
	var lat, lon float64
	var count int
	for _, node := range way.Nodes {
		if node == nil {
			continue
		}
		lat += node.Lat
		lon += node.Lon
		count++
	}
	if count == 0 {
		return model.Location{}, false
	}
	return model.Location{Lat: lat / float64(count), Lon: lon / float64(count)}, true
}

// splitAddress turns "100 Market St, San Francisco" into ("100",
// "Market Street").
func splitAddress(address string) (string, string, bool) {
	first := strings.TrimSpace(strings.SplitN(address, ",", 2)[0])
	fields := strings.Fields(first)
	if len(fields) < 2 || !houseNumberPattern.MatchString(fields[0]) {
		return "", "", false
	}

	street := fields[1:]
	last := strings.ToLower(strings.TrimSuffix(street[len(street)-1], "."))
	if full, ok := streetSuffixes[last]; ok {
		street[len(street)-1] = full
	}
	return fields[0], strings.Join(street, " "), true
}

func escapeOverpass(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
