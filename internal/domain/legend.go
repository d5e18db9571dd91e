package domain

import "fmt"

// NoDataLabel labels the no-data bucket.
const NoDataLabel = "No data"

// LegendEntry is one swatch of a legend.
type LegendEntry struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

// LegendGroup holds the entries of one metric.
type LegendGroup struct {
	Category string        `json:"category"`
	Entries  []LegendEntry `json:"entries"`
}

// Legend is the structured description of a map's color classes. Markup is
// the renderer's job.
type Legend struct {
	Caption string        `json:"caption"`
	Groups  []LegendGroup `json:"groups,omitempty"`
}

// NamedScale pairs a metric's display name with its scale.
type NamedScale struct {
	Name  string
	Scale Scale
}

// LegendFromScales builds one group per scale, in the order given.
func LegendFromScales(caption string, scales []NamedScale) (Legend, error) {
	if len(scales) == 0 {
		return Legend{}, fmt.Errorf("%w: legend %q has no scales", ErrConfig, caption)
	}
	l := Legend{Caption: caption, Groups: make([]LegendGroup, 0, len(scales))}
	for _, ns := range scales {
		l.Groups = append(l.Groups, LegendGroup{Category: ns.Name, Entries: Entries(ns.Scale)})
	}
	return l, nil
}

// CaptionLegend is a legend without swatches, used by point maps.
func CaptionLegend(caption string) Legend {
	return Legend{Caption: caption}
}

// Entries labels every bucket of s: "No data", "<lo> - <hi>" and "> <lo>" for
// the last class.
func Entries(s Scale) []LegendEntry {
	buckets := s.Buckets()
	out := make([]LegendEntry, 0, len(buckets))
	for i, b := range buckets {
		lower := s.FormatBound(b.Lower)
		if i == 1 {
			lower = s.FormatLowest(b.Lower)
		}
		var label string
		switch {
		case b.NoData:
			label = NoDataLabel
		case i == len(buckets)-1:
			label = "> " + lower
		default:
			label = lower + " - " + s.FormatBound(b.Upper)
		}
		out = append(out, LegendEntry{Color: b.Color, Label: label})
	}
	return out
}
