package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/mapviz/internal/config"
	"github.com/couchcryptid/mapviz/internal/dataset"
	"github.com/couchcryptid/mapviz/internal/domain"
	"github.com/couchcryptid/mapviz/internal/geo"
	"github.com/couchcryptid/mapviz/internal/refresh"
	"github.com/couchcryptid/mapviz/internal/render"
)

// Side files written next to time slider documents.
const (
	StyleDictFile = "styledict.json"
	DataFile      = "data.json"
)

// result is what one execution produced; partially filled on failure.
type result struct {
	artifact  string
	sideFiles []string
	dataset   string
	fetched   bool
	items     int
	matched   int
	unmatched []string
	merge     domain.MergeStats
}

func (r *Runner) execute(ctx context.Context, p config.Pipeline, logger *slog.Logger) (result, error) {
	snap, err := r.snapshot(ctx, p, logger)
	if err != nil {
		return result{}, err
	}
	res := result{dataset: snap.Path, fetched: snap.Fetched}
	page := render.Page{
		Title: p.Title,
		View: render.View{
			Center:  [2]float64{p.View.Center[0], p.View.Center[1]},
			Zoom:    p.View.Zoom,
			MinZoom: p.View.MinZoom,
		},
		Generated: domain.Now(),
	}

	switch p.Kind {
	case config.KindChoropleth:
		err = r.choropleth(p, snap.Path, page, &res, logger)
	case config.KindTimeSlider:
		err = r.timeSlider(p, snap.Path, page, &res, logger)
	case config.KindMarkers:
		err = r.markers(p, snap, page, &res, logger)
	case config.KindHeatmap:
		err = r.heatmap(p, snap.Path, page, &res, logger)
	default:
		err = fmt.Errorf("%w: unknown kind %q", domain.ErrConfig, p.Kind)
	}
	return res, err
}

// join loads the boundaries and the table and merges them.
func (r *Runner) join(p config.Pipeline, path string, columns []string, reductions map[string]domain.Reduction, res *result, logger *slog.Logger) ([]domain.JoinedRecord, *dataset.Table, error) {
	b := p.Boundaries
	features, err := r.boundaries.Load(filepath.Join(r.dataDir, b.File), geo.Options{
		KeyProperty:    b.KeyProperty,
		NameProperty:   b.NameProperty,
		ISOProperty:    b.ISOProperty,
		RenameKey:      b.RenameKey,
		DropProperties: b.DropProperties,
		Exclude:        b.Exclude,
	})
	if err != nil {
		return nil, nil, err
	}

	table, err := dataset.ReadTable(path, dataset.TableOptions{
		KeyColumn:       p.Table.KeyColumn,
		ValueColumns:    columns,
		SkipRows:        p.Table.SkipRows,
		DropColumns:     p.Table.DropColumns,
		TimestampColumn: p.Table.TimestampColumn,
	})
	if err != nil {
		return nil, nil, err
	}

	tableKeys, err := p.Table.Normalizer()
	if err != nil {
		return nil, nil, err
	}
	featureKeys, err := p.Boundaries.Normalizer()
	if err != nil {
		return nil, nil, err
	}

	joined, stats, err := domain.Merge(features, table.Records, domain.MergeSpec{
		Columns:     reductions,
		Join:        domain.JoinMode(p.Join),
		TableKeys:   tableKeys,
		FeatureKeys: featureKeys,
	})
	if err != nil {
		return nil, nil, err
	}

	res.items = len(joined)
	res.merge = stats
	res.matched = stats.Matched
	res.unmatched = stats.Unmatched
	r.metrics.UnmatchedKeys.WithLabelValues(p.Name).Set(float64(len(stats.Unmatched)))
	if len(stats.Unmatched) > 0 {
		logger.Warn("tabular keys without a boundary feature",
			"count", len(stats.Unmatched),
			"keys", stats.Unmatched,
		)
	}
	logger.Debug("join complete",
		"features", stats.Features,
		"rows", stats.Rows,
		"groups", stats.Groups,
		"matched", stats.Matched,
		"dropped", stats.Dropped,
	)
	return joined, table, nil
}

// valueColumns lists the tabular columns an areal pipeline reads and how
// each is reduced per key.
func valueColumns(p config.Pipeline) ([]string, map[string]domain.Reduction) {
	if p.Kind == config.KindTimeSlider {
		columns := p.Series.Columns()
		reductions := make(map[string]domain.Reduction, len(columns))
		for _, c := range columns {
			reductions[c] = p.Metrics[0].Reduction()
		}
		return columns, reductions
	}
	columns := make([]string, 0, len(p.Metrics))
	reductions := make(map[string]domain.Reduction, len(p.Metrics))
	for _, m := range p.Metrics {
		columns = append(columns, m.Column)
		reductions[m.Column] = m.Reduction()
	}
	return columns, reductions
}

// CheckJoin merges the last local dataset of an areal pipeline onto its
// boundaries without fetching or rendering.
func (r *Runner) CheckJoin(name string) (domain.MergeStats, error) {
	p, ok := r.catalog.Pipeline(name)
	if !ok {
		return domain.MergeStats{}, fmt.Errorf("%w: unknown pipeline %q", domain.ErrConfig, name)
	}
	if p.Kind != config.KindChoropleth && p.Kind != config.KindTimeSlider {
		return domain.MergeStats{}, fmt.Errorf("%w: %s is a %s map without a join", domain.ErrConfig, name, p.Kind)
	}
	snap, err := r.refresher.Local(p.Source)
	if err != nil {
		return domain.MergeStats{}, err
	}

	var res result
	columns, reductions := valueColumns(p)
	if _, _, err := r.join(p, snap.Path, columns, reductions, &res, r.logger.With("pipeline", name)); err != nil {
		return domain.MergeStats{}, err
	}
	return res.merge, nil
}

func (r *Runner) choropleth(p config.Pipeline, path string, page render.Page, res *result, logger *slog.Logger) error {
	columns, reductions := valueColumns(p)
	joined, table, err := r.join(p, path, columns, reductions, res, logger)
	if err != nil {
		return err
	}

	nameLabel := p.Boundaries.RenameKey
	if nameLabel == "" {
		nameLabel = p.Boundaries.KeyProperty
	}
	scales := make([]domain.NamedScale, 0, len(p.Metrics))
	layers := make([]render.Layer, 0, len(p.Metrics))
	for i, m := range p.Metrics {
		spec, err := m.ScaleSpec()
		if err != nil {
			return err
		}
		scale, err := domain.ComputeScale(domain.Collect(joined, m.Column), spec)
		if err != nil {
			return fmt.Errorf("scale %s: %w", m.Column, err)
		}
		domain.Colorize(joined, m.Column, scale)
		scales = append(scales, domain.NamedScale{Name: m.DisplayName(), Scale: scale})
		layers = append(layers, render.Layer{
			Name:   m.DisplayName(),
			Column: m.Column,
			Popup: []render.PopupField{
				{Label: nameLabel, Field: render.PropName},
				{Label: m.DisplayName(), Field: m.Column},
			},
			Show: i == 0,
		})
	}

	page.Legend, err = domain.LegendFromScales(caption(p.Caption, captionVars{updated: table.Timestamp}), scales)
	if err != nil {
		return err
	}

	res.artifact = r.ArtifactPath(p)
	return render.WriteArtifact(res.artifact, func(w io.Writer) error {
		return render.Choropleth(w, render.ChoroplethMap{Page: page, Layers: layers, Records: joined})
	})
}

func (r *Runner) timeSlider(p config.Pipeline, path string, page render.Page, res *result, logger *slog.Logger) error {
	m := p.Metrics[0]
	columns, reductions := valueColumns(p)

	joined, table, err := r.join(p, path, columns, reductions, res, logger)
	if err != nil {
		return err
	}

	spec, err := m.ScaleSpec()
	if err != nil {
		return err
	}
	// One scale across every period so colors compare over time.
	scale, err := domain.ComputeScale(domain.Collect(joined, columns...), spec)
	if err != nil {
		return fmt.Errorf("scale %s: %w", m.Column, err)
	}
	for _, c := range columns {
		domain.Colorize(joined, c, scale)
	}

	page.Legend, err = domain.LegendFromScales(
		caption(p.Caption, captionVars{updated: table.Timestamp}),
		[]domain.NamedScale{{Name: m.DisplayName(), Scale: scale}},
	)
	if err != nil {
		return err
	}
	periods, err := render.YearPeriods(columns)
	if err != nil {
		return fmt.Errorf("%w: series columns: %v", domain.ErrConfig, err)
	}

	styleDict := filepath.Join(r.mapsDir, StyleDictFile)
	if err := render.WriteJSON(styleDict, render.BuildStyleDict(joined, periods)); err != nil {
		return err
	}
	data := filepath.Join(r.mapsDir, DataFile)
	if err := render.WriteJSON(data, render.TimeSliderData(joined)); err != nil {
		return err
	}
	res.sideFiles = []string{styleDict, data}

	res.artifact = r.ArtifactPath(p)
	return render.WriteArtifact(res.artifact, func(w io.Writer) error {
		return render.TimeSlider(w, render.TimeSliderMap{Page: page, Periods: periods, Records: joined})
	})
}

func (r *Runner) markers(p config.Pipeline, snap refresh.Snapshot, page render.Page, res *result, logger *slog.Logger) error {
	pt := p.Points
	fields := make([]string, 0, len(pt.Popup))
	popup := make([]render.PopupField, 0, len(pt.Popup))
	for _, f := range pt.Popup {
		fields = append(fields, f.Column)
		popup = append(popup, render.PopupField{Label: f.Label, Field: f.Column})
	}

	points, err := r.readPoints(p, snap.Path, fields, logger)
	if err != nil {
		return err
	}
	if pt.DisplayLayout != "" {
		for _, q := range points {
			if _, ok := q.Fields[pt.TimeColumn]; ok {
				q.Fields[pt.TimeColumn] = q.Time.Format(pt.DisplayLayout)
			}
		}
	}
	res.items = len(points)

	from, to := snap.From, snap.To
	if from.IsZero() || to.IsZero() {
		from, to = timeRange(points)
	}
	page.Legend = domain.CaptionLegend(caption(p.Caption, captionVars{from: from, to: to}))

	res.artifact = r.ArtifactPath(p)
	return render.WriteArtifact(res.artifact, func(w io.Writer) error {
		return render.Markers(w, render.MarkersMap{Page: page, Points: points, Popup: popup})
	})
}

func (r *Runner) heatmap(p config.Pipeline, path string, page render.Page, res *result, logger *slog.Logger) error {
	pt := p.Points
	points, err := r.readPoints(p, path, nil, logger)
	if err != nil {
		return err
	}
	if pt.Year != 0 {
		start := time.Date(pt.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		points = domain.FilterPoints(points, start, start.AddDate(1, 0, 0))
	}
	res.items = len(points)

	gradient := make([]render.GradientStop, 0, len(pt.Gradient))
	for _, g := range pt.Gradient {
		gradient = append(gradient, render.GradientStop{Stop: g.Stop, Color: g.Color})
	}
	page.Legend = domain.CaptionLegend(caption(p.Caption, captionVars{year: pt.Year}))

	res.artifact = r.ArtifactPath(p)
	return render.WriteArtifact(res.artifact, func(w io.Writer) error {
		return render.HeatmapOverTime(w, render.HeatmapMap{
			Page:     page,
			Frames:   domain.BucketPointsByDay(points),
			Gradient: gradient,
		})
	})
}

func (r *Runner) readPoints(p config.Pipeline, path string, fields []string, logger *slog.Logger) ([]domain.Point, error) {
	pt := p.Points
	points, stats, err := dataset.ReadPoints(path, dataset.PointOptions{
		LatColumn:  pt.LatColumn,
		LonColumn:  pt.LonColumn,
		TimeColumn: pt.TimeColumn,
		TimeLayout: pt.TimeLayout,
		Fields:     fields,
	})
	if err != nil {
		return nil, err
	}
	if stats.NoCoordinates > 0 || stats.BadTime > 0 {
		logger.Info("dropped rows while reading points",
			"rows", stats.Rows,
			"no_coordinates", stats.NoCoordinates,
			"bad_time", stats.BadTime,
		)
	}
	return points, nil
}

type captionVars struct {
	updated  string
	from, to time.Time
	year     int
}

// caption fills the {updated}, {from}, {to} and {year} placeholders.
func caption(tmpl string, v captionVars) string {
	day := func(t time.Time) string {
		if t.IsZero() {
			return "?"
		}
		return t.Format(time.DateOnly)
	}
	year := ""
	if v.year != 0 {
		year = strconv.Itoa(v.year)
	}
	return strings.NewReplacer(
		"{updated}", v.updated,
		"{from}", day(v.from),
		"{to}", day(v.to),
		"{year}", year,
	).Replace(tmpl)
}

// timeRange returns the first and last point time.
func timeRange(points []domain.Point) (from, to time.Time) {
	for _, p := range points {
		if from.IsZero() || p.Time.Before(from) {
			from = p.Time
		}
		if to.IsZero() || p.Time.After(to) {
			to = p.Time
		}
	}
	return from, to
}
