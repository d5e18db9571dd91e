package render

import (
	"io"
	"strconv"

	"github.com/couchcryptid/mapviz/internal/domain"
)

// GradientStop is one heatmap color stop in [0, 1].
type GradientStop struct {
	Stop  float64
	Color string
}

// HeatmapMap is a heatmap with one frame per time bucket.
type HeatmapMap struct {
	Page
	Frames   []domain.TimeBucket
	Gradient []GradientStop
	Radius   int
}

type heatFrame struct {
	Label  string       `json:"label"`
	Points [][2]float64 `json:"points"`
}

type heatOptions struct {
	Radius   int               `json:"radius"`
	Gradient map[string]string `json:"gradient,omitempty"`
}

type heatmapData struct {
	HeatmapMap
	FrameData []heatFrame
	Options   heatOptions
}

// HeatmapOverTime writes a heatmap document with a day slider.
func HeatmapOverTime(w io.Writer, m HeatmapMap) error {
	frames := make([]heatFrame, 0, len(m.Frames))
	for _, b := range m.Frames {
		pts := make([][2]float64, 0, len(b.Points))
		for _, p := range b.Points {
			pts = append(pts, [2]float64{p.Lat, p.Lon})
		}
		frames = append(frames, heatFrame{Label: b.Label, Points: pts})
	}

	opts := heatOptions{Radius: m.Radius}
	if opts.Radius <= 0 {
		opts.Radius = 15
	}
	if len(m.Gradient) > 0 {
		opts.Gradient = make(map[string]string, len(m.Gradient))
		for _, g := range m.Gradient {
			opts.Gradient[strconv.FormatFloat(g.Stop, 'f', -1, 64)] = g.Color
		}
	}
	return execute(w, heatmapTmpl, heatmapData{HeatmapMap: m, FrameData: frames, Options: opts})
}

// MarkersMap is a clustered marker map with a popup per point.
type MarkersMap struct {
	Page
	Points []domain.Point
	Popup  []PopupField
}

type marker struct {
	Lat   float64     `json:"lat"`
	Lon   float64     `json:"lon"`
	Popup [][2]string `json:"popup"`
}

type markersData struct {
	MarkersMap
	Markers []marker
}

// Markers writes a clustered marker document. Popup lines read the point's
// fields; a missing field renders as an empty value.
func Markers(w io.Writer, m MarkersMap) error {
	markers := make([]marker, 0, len(m.Points))
	for _, p := range m.Points {
		lines := make([][2]string, 0, len(m.Popup))
		for _, f := range m.Popup {
			lines = append(lines, [2]string{f.Label, p.Fields[f.Field]})
		}
		markers = append(markers, marker{Lat: p.Lat, Lon: p.Lon, Popup: lines})
	}
	return execute(w, markersTmpl, markersData{MarkersMap: m, Markers: markers})
}
