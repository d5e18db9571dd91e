package render

import (
	"io"
	"maps"
	"strconv"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/mapviz/internal/domain"
)

// Property names the documents add to every feature.
const (
	PropName   = "name"
	PropColors = "colors"
)

// Layer is one toggleable choropleth overlay colored by a value column.
type Layer struct {
	Name   string       `json:"name"`
	Column string       `json:"column"`
	Popup  []PopupField `json:"popup"`
	Show   bool         `json:"show"`
}

// ChoroplethMap is a multi-layer choropleth document.
type ChoroplethMap struct {
	Page
	Layers  []Layer
	Records []domain.JoinedRecord
}

type choroplethData struct {
	ChoroplethMap
	Data  *geojson.FeatureCollection
	Style featureStyle
}

type featureStyle struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	FillOpacity float64 `json:"fillOpacity"`
	NoData      string  `json:"noData"`
}

// Choropleth writes a choropleth document with one overlay per layer.
func Choropleth(w io.Writer, m ChoroplethMap) error {
	columns := make([]string, 0, len(m.Layers))
	for _, l := range m.Layers {
		columns = append(columns, l.Column)
	}
	return execute(w, choroplethTmpl, choroplethData{
		ChoroplethMap: m,
		Data:          FeatureCollection(m.Records, columns...),
		Style:         featureStyle{Color: BorderColor, Weight: 0.5, FillOpacity: FillOpacity, NoData: domain.NoDataColor},
	})
}

// FeatureCollection converts joined records into GeoJSON. Each feature keeps
// its boundary properties and gains the joined values of columns (null when
// missing), its display name, and a column to color map.
func FeatureCollection(records []domain.JoinedRecord, columns ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		f := geojson.NewFeature(r.Feature.Geometry)
		f.ID = strconv.Itoa(r.Feature.ID)
		f.Properties = maps.Clone(r.Feature.Properties)
		if f.Properties == nil {
			f.Properties = make(map[string]interface{})
		}
		f.SetProperty(PropName, r.Feature.Name)

		colors := make(map[string]string, len(columns))
		for _, c := range columns {
			v := r.Value(c)
			if v.Valid {
				f.SetProperty(c, v.V)
			} else {
				f.SetProperty(c, nil)
			}
			if color, ok := r.Colors[c]; ok {
				colors[c] = color
			} else {
				colors[c] = domain.NoDataColor
			}
		}
		f.SetProperty(PropColors, colors)
		fc.AddFeature(f)
	}
	return fc
}
