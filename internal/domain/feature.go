package domain

import (
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// GeoFeature is one geographic region from the static boundary file.
type GeoFeature struct {
	ID         int
	Key        string
	Name       string
	ISOCode    string
	Geometry   *geojson.Geometry
	Properties map[string]any
}

// DataRecord is one row of a tabular dataset after the key column was read.
// Values is keyed by value column; a time-series metric contributes one
// column per period.
type DataRecord struct {
	Key    string
	Values map[string]Value
}

// JoinedRecord is one geographic feature merged with its (reduced) tabular data.
type JoinedRecord struct {
	Feature GeoFeature
	Key     string
	Matched bool
	Values  map[string]Value
	Colors  map[string]string
}

// Value returns the joined value of a column, or None when the feature had no match.
func (r JoinedRecord) Value(column string) Value {
	if r.Values == nil {
		return None()
	}
	return r.Values[column]
}

// Point is one geolocated incident for point maps (markers, heatmaps).
type Point struct {
	Lat    float64
	Lon    float64
	Time   time.Time
	Fields map[string]string
}
