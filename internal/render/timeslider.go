package render

import (
	"io"
	"strconv"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/mapviz/internal/domain"
)

// Period is one step of a time slider, backed by one value column.
type Period struct {
	Column string    `json:"column"`
	Label  string    `json:"label"`
	Time   time.Time `json:"-"`
}

// Key is the style dictionary key of the period: Unix seconds as a string.
func (p Period) Key() string { return strconv.FormatInt(p.Time.Unix(), 10) }

// YearPeriods builds one period per year column, stamped at December 31 UTC.
func YearPeriods(columns []string) ([]Period, error) {
	out := make([]Period, 0, len(columns))
	for _, c := range columns {
		y, err := strconv.Atoi(c)
		if err != nil {
			return nil, err
		}
		out = append(out, Period{
			Column: c,
			Label:  c,
			Time:   time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC),
		})
	}
	return out, nil
}

// Style is the fill of one feature in one period.
type Style struct {
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
}

// StyleDict maps feature id to period key to style.
type StyleDict map[string]map[string]Style

// TimeSliderMap is a choropleth whose colors change with a period slider.
type TimeSliderMap struct {
	Page
	Periods []Period
	Records []domain.JoinedRecord
}

type timeSliderStep struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type timeSliderData struct {
	TimeSliderMap
	Data  *geojson.FeatureCollection
	Steps []timeSliderStep
	Dict  StyleDict
	Style featureStyle
}

// BuildStyleDict colors every feature in every period. Records must have been
// colorized for each period column.
func BuildStyleDict(records []domain.JoinedRecord, periods []Period) StyleDict {
	dict := make(StyleDict, len(records))
	for _, r := range records {
		byTime := make(map[string]Style, len(periods))
		for _, p := range periods {
			color, ok := r.Colors[p.Column]
			if !ok {
				color = domain.NoDataColor
			}
			byTime[p.Key()] = Style{Color: color, Opacity: FillOpacity}
		}
		dict[strconv.Itoa(r.Feature.ID)] = byTime
	}
	return dict
}

// TimeSliderData is the GeoJSON written next to a time slider document. It
// carries the boundaries and names only; colors live in the style dict.
func TimeSliderData(records []domain.JoinedRecord) *geojson.FeatureCollection {
	return FeatureCollection(records)
}

// TimeSlider writes a time slider choropleth document. The style dict and
// data are embedded so the page works without its side files.
func TimeSlider(w io.Writer, m TimeSliderMap) error {
	steps := make([]timeSliderStep, 0, len(m.Periods))
	for _, p := range m.Periods {
		steps = append(steps, timeSliderStep{Key: p.Key(), Label: p.Label})
	}
	return execute(w, timeSliderTmpl, timeSliderData{
		TimeSliderMap: m,
		Data:          TimeSliderData(m.Records),
		Steps:         steps,
		Dict:          BuildStyleDict(m.Records, m.Periods),
		Style:         featureStyle{Color: BorderColor, Weight: 1, FillOpacity: FillOpacity, NoData: domain.NoDataColor},
	})
}
