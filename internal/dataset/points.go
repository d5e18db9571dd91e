package dataset

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/couchcryptid/mapviz/internal/domain"
)

// PointOptions selects the coordinate and time columns of a point dataset.
type PointOptions struct {
	LatColumn  string
	LonColumn  string
	TimeColumn string
	TimeLayout string
	// Fields are copied into Point.Fields for popups.
	Fields []string
}

// PointStats counts rows dropped while reading points.
type PointStats struct {
	Rows          int
	NoCoordinates int
	BadTime       int
}

// ReadPoints reads geolocated rows. Rows without coordinates or with an
// unparsable time are dropped and counted.
func ReadPoints(path string, opts PointOptions) ([]domain.Point, PointStats, error) {
	var stats PointStats
	s, err := readSheet(path, 0, nil)
	if err != nil {
		return nil, stats, err
	}
	for _, c := range append([]string{opts.LatColumn, opts.LonColumn, opts.TimeColumn}, opts.Fields...) {
		if !s.has(c) {
			return nil, stats, &domain.LoadError{Path: path, Err: fmt.Errorf("missing column %q", c)}
		}
	}

	points := make([]domain.Point, 0, len(s.rows))
	for i := range s.rows {
		stats.Rows++
		lat, errLat := strconv.ParseFloat(s.cell(i, opts.LatColumn), 64)
		lon, errLon := strconv.ParseFloat(s.cell(i, opts.LonColumn), 64)
		if errLat != nil || errLon != nil || math.IsNaN(lat) || math.IsNaN(lon) {
			stats.NoCoordinates++
			continue
		}
		ts, err := time.Parse(opts.TimeLayout, s.cell(i, opts.TimeColumn))
		if err != nil {
			stats.BadTime++
			continue
		}
		fields := make(map[string]string, len(opts.Fields))
		for _, f := range opts.Fields {
			fields[f] = s.cell(i, f)
		}
		points = append(points, domain.Point{Lat: lat, Lon: lon, Time: ts, Fields: fields})
	}
	return points, stats, nil
}
