// Package geo loads static boundary files into domain features.
package geo

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/mapviz/internal/domain"
	"github.com/couchcryptid/mapviz/internal/observability"
)

// Options selects which feature properties carry the join key, name and ISO
// code, and which features or properties to discard.
type Options struct {
	KeyProperty  string
	NameProperty string
	ISOProperty  string
	// RenameKey copies the key property under a new name and removes the old one.
	RenameKey      string
	DropProperties []string
	// Exclude drops features whose raw key matches, e.g. the disputed-territory code "-99".
	Exclude []string
}

// Loader reads GeoJSON boundary files. Parsed files are cached by path,
// modification time and size, so an edited file is re-read.
type Loader struct {
	cache   *boundaryCache
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewLoader creates a Loader caching up to cacheSize parsed files.
func NewLoader(cacheSize int, metrics *observability.Metrics, logger *slog.Logger) *Loader {
	return &Loader{cache: newBoundaryCache(cacheSize), metrics: metrics, logger: logger}
}

// Load returns the features of the file at path. Each call returns fresh
// property maps, so callers may mutate them.
func (l *Loader) Load(path string, opts Options) ([]domain.GeoFeature, error) {
	if opts.KeyProperty == "" {
		return nil, fmt.Errorf("%w: boundary key property is required", domain.ErrConfig)
	}
	fc, err := l.collection(path)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]bool, len(opts.DropProperties))
	for _, p := range opts.DropProperties {
		drop[p] = true
	}

	features := make([]domain.GeoFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		key := propertyString(f.Properties, opts.KeyProperty)
		if slices.Contains(opts.Exclude, key) {
			continue
		}

		props := maps.Clone(f.Properties)
		if props == nil {
			props = make(map[string]any)
		}
		for p := range drop {
			delete(props, p)
		}
		if opts.RenameKey != "" && opts.RenameKey != opts.KeyProperty {
			props[opts.RenameKey] = props[opts.KeyProperty]
			delete(props, opts.KeyProperty)
		}

		name := key
		if opts.NameProperty != "" {
			name = propertyString(f.Properties, opts.NameProperty)
		}
		features = append(features, domain.GeoFeature{
			ID:         len(features),
			Key:        key,
			Name:       name,
			ISOCode:    propertyString(f.Properties, opts.ISOProperty),
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return features, nil
}

func (l *Loader) collection(path string) (*geojson.FeatureCollection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	version := versionOf(info)

	fc, result := l.cache.get(abs, version)
	l.metrics.BoundaryCache.WithLabelValues(string(result)).Inc()
	if result == lookupHit {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}
	fc, err = geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: fmt.Errorf("parse geojson: %w", err)}
	}
	l.logger.Debug("boundary file parsed", "path", path, "features", len(fc.Features))
	l.cache.put(abs, version, fc)
	return fc, nil
}

func propertyString(props map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := props[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
