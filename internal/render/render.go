// Package render turns joined, colored datasets into self-contained Leaflet
// HTML documents. Legends are rendered server-side from domain.Legend; map
// data is embedded as JSON in the page script.
package render

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/couchcryptid/mapviz/internal/domain"
	"github.com/couchcryptid/mapviz/internal/fileutil"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	// FillOpacity of choropleth polygons.
	FillOpacity = 0.7
	// BorderColor of choropleth polygons.
	BorderColor = "black"
)

var (
	choroplethTmpl = parse("choropleth.html")
	timeSliderTmpl = parse("timeslider.html")
	heatmapTmpl    = parse("heatmap.html")
	markersTmpl    = parse("markers.html")
)

func parse(name string) *template.Template {
	return template.Must(template.New(name).ParseFS(templateFS, "templates/base.html", "templates/"+name))
}

// View is the initial map viewport.
type View struct {
	Center  [2]float64 `json:"center"`
	Zoom    int        `json:"zoom"`
	MinZoom int        `json:"minZoom,omitempty"`
}

// Page holds what every document shares.
type Page struct {
	Title     string
	View      View
	Legend    domain.Legend
	Generated time.Time
}

// GeneratedLabel formats the generation time for the page footer.
func (p Page) GeneratedLabel() string {
	if p.Generated.IsZero() {
		return ""
	}
	return p.Generated.UTC().Format("2006-01-02 15:04 UTC")
}

// PopupField maps a popup line label to a property or field name.
type PopupField struct {
	Label string `json:"label"`
	Field string `json:"field"`
}

func execute(w io.Writer, t *template.Template, data any) error {
	if err := t.ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return nil
}

// WriteArtifact renders a document into path atomically.
func WriteArtifact(path string, render func(io.Writer) error) error {
	return fileutil.WriteAtomic(path, render)
}

// WriteJSON encodes v into path atomically.
func WriteJSON(path string, v any) error {
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		return nil
	})
}
