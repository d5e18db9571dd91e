package geo

import (
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
)

func collectionOf(n int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		fc.AddFeature(geojson.NewPointFeature([]float64{float64(i), 0}))
	}
	return fc
}

var (
	v1 = fileVersion{modTime: time.Date(2021, 3, 9, 0, 0, 0, 0, time.UTC), size: 100}
	v2 = fileVersion{modTime: time.Date(2021, 3, 10, 0, 0, 0, 0, time.UTC), size: 100}
)

func TestBoundaryCache_EvictsLeastRecentlyUsedFile(t *testing.T) {
	c := newBoundaryCache(2)

	c.put("countries.geojson", v1, collectionOf(1))
	c.put("states.geojson", v1, collectionOf(2))
	c.get("countries.geojson", v1)
	c.put("counties.geojson", v1, collectionOf(3))

	_, result := c.get("states.geojson", v1)
	assert.Equal(t, lookupMiss, result, "states was used least recently")
	fc, result := c.get("countries.geojson", v1)
	assert.Equal(t, lookupHit, result)
	assert.Len(t, fc.Features, 1)
	assert.Equal(t, 2, c.len())
}

func TestBoundaryCache_ChangedFileIsStale(t *testing.T) {
	c := newBoundaryCache(2)
	c.put("countries.geojson", v1, collectionOf(1))

	_, result := c.get("countries.geojson", v2)
	assert.Equal(t, lookupStale, result)
	assert.Equal(t, 0, c.len(), "stale entry is dropped")

	grown := fileVersion{modTime: v1.modTime, size: 200}
	c.put("countries.geojson", v1, collectionOf(1))
	_, result = c.get("countries.geojson", grown)
	assert.Equal(t, lookupStale, result, "same mtime but a new size")
}

func TestBoundaryCache_PutReplacesRevision(t *testing.T) {
	c := newBoundaryCache(2)

	c.put("countries.geojson", v1, collectionOf(1))
	c.put("countries.geojson", v2, collectionOf(4))

	fc, result := c.get("countries.geojson", v2)
	assert.Equal(t, lookupHit, result)
	assert.Len(t, fc.Features, 4)
	assert.Equal(t, 1, c.len())
}

func TestBoundaryCache_MinimumSize(t *testing.T) {
	c := newBoundaryCache(0)
	c.put("countries.geojson", v1, collectionOf(1))
	_, result := c.get("countries.geojson", v1)
	assert.Equal(t, lookupHit, result)
}
