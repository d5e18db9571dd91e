package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/mapviz/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Pipeline kinds.
const (
	KindChoropleth = "choropleth"
	KindTimeSlider = "timeslider"
	KindMarkers    = "markers"
	KindHeatmap    = "heatmap"
)

// Source types.
const (
	SourceGitHub  = "github"
	SourceSocrata = "socrata"
	SourceStatic  = "static"
)

// Catalog lists every map the service renders.
type Catalog struct {
	Pipelines []Pipeline `mapstructure:"pipelines" yaml:"pipelines"`
}

// Pipeline describes one map: where its data comes from, how it is joined
// and binned, and where the document is served.
type Pipeline struct {
	Name       string     `mapstructure:"name" yaml:"name"`
	Title      string     `mapstructure:"title" yaml:"title"`
	Route      string     `mapstructure:"route" yaml:"route"`
	Kind       string     `mapstructure:"kind" yaml:"kind"`
	Schedule   string     `mapstructure:"schedule" yaml:"schedule,omitempty"`
	Output     string     `mapstructure:"output" yaml:"output"`
	Caption    string     `mapstructure:"caption" yaml:"caption"`
	View       View       `mapstructure:"view" yaml:"view"`
	Source     Source     `mapstructure:"source" yaml:"source"`
	Boundaries Boundaries `mapstructure:"boundaries" yaml:"boundaries,omitempty"`
	Table      Table      `mapstructure:"table" yaml:"table,omitempty"`
	Join       string     `mapstructure:"join" yaml:"join,omitempty"`
	Series     *Series    `mapstructure:"series" yaml:"series,omitempty"`
	Metrics    []Metric   `mapstructure:"metrics" yaml:"metrics,omitempty"`
	Points     *Points    `mapstructure:"points" yaml:"points,omitempty"`
}

// View is the initial map viewport.
type View struct {
	Center  []float64 `mapstructure:"center" yaml:"center,flow"`
	Zoom    int       `mapstructure:"zoom" yaml:"zoom"`
	MinZoom int       `mapstructure:"min_zoom" yaml:"min_zoom,omitempty"`
}

// Source says how the tabular input is obtained.
type Source struct {
	Type string `mapstructure:"type" yaml:"type"`
	// File is the local file name for static and socrata sources.
	File string `mapstructure:"file" yaml:"file,omitempty"`

	// github
	Owner      string `mapstructure:"owner" yaml:"owner,omitempty"`
	Repo       string `mapstructure:"repo" yaml:"repo,omitempty"`
	Ref        string `mapstructure:"ref" yaml:"ref,omitempty"`
	Path       string `mapstructure:"path" yaml:"path,omitempty"`
	NameLayout string `mapstructure:"name_layout" yaml:"name_layout,omitempty"`
	Prefix     string `mapstructure:"prefix" yaml:"prefix,omitempty"`

	// socrata
	BaseURL    string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Dataset    string `mapstructure:"dataset" yaml:"dataset,omitempty"`
	DateField  string `mapstructure:"date_field" yaml:"date_field,omitempty"`
	WindowDays int    `mapstructure:"window_days" yaml:"window_days,omitempty"`
	Limit      int    `mapstructure:"limit" yaml:"limit,omitempty"`
}

// Alias rewrites one join key spelling. Aliases are a list rather than a map
// because viper lower-cases map keys.
type Alias struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// Boundaries describes the static GeoJSON file.
type Boundaries struct {
	File           string   `mapstructure:"file" yaml:"file"`
	KeyProperty    string   `mapstructure:"key_property" yaml:"key_property"`
	NameProperty   string   `mapstructure:"name_property" yaml:"name_property,omitempty"`
	ISOProperty    string   `mapstructure:"iso_property" yaml:"iso_property,omitempty"`
	RenameKey      string   `mapstructure:"rename_key" yaml:"rename_key,omitempty"`
	DropProperties []string `mapstructure:"drop_properties" yaml:"drop_properties,omitempty,flow"`
	Exclude        []string `mapstructure:"exclude" yaml:"exclude,omitempty,flow"`
	Aliases        []Alias  `mapstructure:"aliases" yaml:"aliases,omitempty"`
}

// Table describes the tabular dataset.
type Table struct {
	KeyColumn       string   `mapstructure:"key_column" yaml:"key_column"`
	SkipRows        int      `mapstructure:"skip_rows" yaml:"skip_rows,omitempty"`
	DropColumns     []string `mapstructure:"drop_columns" yaml:"drop_columns,omitempty,flow"`
	TimestampColumn string   `mapstructure:"timestamp_column" yaml:"timestamp_column,omitempty"`
	Aliases         []Alias  `mapstructure:"aliases" yaml:"aliases,omitempty"`
}

// Series turns one metric into a wide time series with one column per year.
type Series struct {
	From int `mapstructure:"from" yaml:"from"`
	To   int `mapstructure:"to" yaml:"to"`
}

// Columns lists the year columns, oldest first.
func (s Series) Columns() []string {
	cols := make([]string, 0, s.To-s.From+1)
	for y := s.From; y <= s.To; y++ {
		cols = append(cols, strconv.Itoa(y))
	}
	return cols
}

// Metric is one value column and its binning.
type Metric struct {
	Column    string   `mapstructure:"column" yaml:"column"`
	Label     string   `mapstructure:"label" yaml:"label"`
	Reduce    string   `mapstructure:"reduce" yaml:"reduce"`
	Spacing   string   `mapstructure:"spacing" yaml:"spacing"`
	Buckets   int      `mapstructure:"buckets" yaml:"buckets"`
	Precision int      `mapstructure:"precision" yaml:"precision"`
	Unit      string   `mapstructure:"unit" yaml:"unit,omitempty"`
	Palette   []string `mapstructure:"palette" yaml:"palette,omitempty,flow"`
	Ramp      *Ramp    `mapstructure:"ramp" yaml:"ramp,omitempty"`
}

// Ramp is a two-color palette interpolated in CIE-Lab.
type Ramp struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// Points describes a point dataset for marker and heatmap maps.
type Points struct {
	LatColumn     string         `mapstructure:"lat_column" yaml:"lat_column"`
	LonColumn     string         `mapstructure:"lon_column" yaml:"lon_column"`
	TimeColumn    string         `mapstructure:"time_column" yaml:"time_column"`
	TimeLayout    string         `mapstructure:"time_layout" yaml:"time_layout"`
	DisplayLayout string         `mapstructure:"display_layout" yaml:"display_layout,omitempty"`
	Year          int            `mapstructure:"year" yaml:"year,omitempty"`
	Popup         []PopupField   `mapstructure:"popup" yaml:"popup,omitempty"`
	Gradient      []GradientStop `mapstructure:"gradient" yaml:"gradient,omitempty"`
}

// PopupField is one line of a marker popup.
type PopupField struct {
	Label  string `mapstructure:"label" yaml:"label"`
	Column string `mapstructure:"column" yaml:"column"`
}

// GradientStop is one heatmap color stop in [0, 1].
type GradientStop struct {
	Stop  float64 `mapstructure:"stop" yaml:"stop"`
	Color string  `mapstructure:"color" yaml:"color"`
}

// LoadCatalog reads the pipeline catalog from path, or the built-in catalog
// when path is empty, and validates it.
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	if path == "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(defaultCatalog)); err != nil {
			return nil, fmt.Errorf("read built-in catalog: %w", err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
	}

	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Dump writes the catalog as YAML.
func (c *Catalog) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return enc.Close()
}

// Pipeline returns the pipeline with the given name.
func (c *Catalog) Pipeline(name string) (Pipeline, bool) {
	for _, p := range c.Pipelines {
		if p.Name == name {
			return p, true
		}
	}
	return Pipeline{}, false
}

// Names lists pipeline names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Pipelines))
	for _, p := range c.Pipelines {
		names = append(names, p.Name)
	}
	return names
}

// Validate checks every pipeline. Errors wrap domain.ErrConfig and name the
// offending pipeline and key.
func (c *Catalog) Validate() error {
	if len(c.Pipelines) == 0 {
		return fmt.Errorf("%w: catalog has no pipelines", domain.ErrConfig)
	}
	names := make(map[string]bool, len(c.Pipelines))
	routes := make(map[string]bool, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if p.Name == "" {
			return fmt.Errorf("%w: pipelines[%d].name is required", domain.ErrConfig, i)
		}
		if names[p.Name] {
			return fmt.Errorf("%w: duplicate pipeline name %q", domain.ErrConfig, p.Name)
		}
		names[p.Name] = true
		if routes[p.Route] {
			return fmt.Errorf("%w: %s: duplicate route %q", domain.ErrConfig, p.Name, p.Route)
		}
		routes[p.Route] = true
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks one pipeline.
func (p Pipeline) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", domain.ErrConfig, p.Name, fmt.Sprintf(format, args...))
	}

	if !strings.HasPrefix(p.Route, "/") || !strings.HasSuffix(p.Route, "/") || p.Route == "/" {
		return fail("route %q must look like /name/", p.Route)
	}
	if p.Output == "" || strings.ContainsAny(p.Output, `/\`) {
		return fail("output %q must be a plain file name", p.Output)
	}
	if p.Schedule != "" {
		if _, err := cron.ParseStandard(p.Schedule); err != nil {
			return fail("schedule %q: %v", p.Schedule, err)
		}
	}
	if len(p.View.Center) != 2 {
		return fail("view.center must be [lat, lon]")
	}
	if err := p.Source.validate(); err != nil {
		return fail("source: %v", err)
	}

	switch p.Kind {
	case KindChoropleth, KindTimeSlider:
		return p.validateAreal(fail)
	case KindMarkers, KindHeatmap:
		return p.validatePoints(fail)
	default:
		return fail("unknown kind %q", p.Kind)
	}
}

func (p Pipeline) validateAreal(fail func(string, ...any) error) error {
	if p.Boundaries.File == "" || p.Boundaries.KeyProperty == "" {
		return fail("boundaries.file and boundaries.key_property are required")
	}
	if p.Table.KeyColumn == "" {
		return fail("table.key_column is required")
	}
	if _, err := p.Boundaries.Normalizer(); err != nil {
		return fail("boundaries.aliases: %v", err)
	}
	if _, err := p.Table.Normalizer(); err != nil {
		return fail("table.aliases: %v", err)
	}
	switch domain.JoinMode(p.Join) {
	case "", domain.JoinRight, domain.JoinInner:
	default:
		return fail("unknown join %q", p.Join)
	}
	if len(p.Metrics) == 0 {
		return fail("at least one metric is required")
	}
	if p.Kind == KindTimeSlider {
		if p.Series == nil || p.Series.To < p.Series.From {
			return fail("timeslider needs series.from <= series.to")
		}
		if len(p.Metrics) != 1 {
			return fail("timeslider takes exactly one metric, got %d", len(p.Metrics))
		}
	}
	for _, m := range p.Metrics {
		if m.Column == "" {
			return fail("metric column is required")
		}
		if _, err := m.ScaleSpec(); err != nil {
			return fail("metric %s: %v", m.Column, err)
		}
		switch domain.Reduction(m.Reduce) {
		case "", domain.ReduceSum, domain.ReduceMean:
		default:
			return fail("metric %s: unknown reduce %q", m.Column, m.Reduce)
		}
	}
	return nil
}

func (p Pipeline) validatePoints(fail func(string, ...any) error) error {
	pt := p.Points
	if pt == nil {
		return fail("points section is required for kind %s", p.Kind)
	}
	if pt.LatColumn == "" || pt.LonColumn == "" || pt.TimeColumn == "" || pt.TimeLayout == "" {
		return fail("points.lat_column, lon_column, time_column and time_layout are required")
	}
	for _, g := range pt.Gradient {
		if g.Stop < 0 || g.Stop > 1 {
			return fail("gradient stop %v outside [0, 1]", g.Stop)
		}
	}
	return nil
}

func (s Source) validate() error {
	switch s.Type {
	case SourceGitHub:
		if s.Owner == "" || s.Repo == "" || s.Path == "" || s.Prefix == "" {
			return fmt.Errorf("github source needs owner, repo, path and prefix")
		}
	case SourceSocrata:
		if s.BaseURL == "" || s.Dataset == "" || s.DateField == "" || s.File == "" {
			return fmt.Errorf("socrata source needs base_url, dataset, date_field and file")
		}
		if s.WindowDays < 1 {
			return fmt.Errorf("socrata window_days must be positive")
		}
	case SourceStatic:
		if s.File == "" {
			return fmt.Errorf("static source needs file")
		}
	default:
		return fmt.Errorf("unknown type %q", s.Type)
	}
	return nil
}

// Reduction returns the metric's reduction, defaulting to sum.
func (m Metric) Reduction() domain.Reduction {
	if m.Reduce == "" {
		return domain.ReduceSum
	}
	return domain.Reduction(m.Reduce)
}

// DisplayName is the legend and layer title of the metric.
func (m Metric) DisplayName() string {
	if m.Label != "" {
		return m.Label
	}
	return m.Column
}

// ScaleSpec builds the binning parameters, resolving a ramp into a palette.
func (m Metric) ScaleSpec() (domain.ScaleSpec, error) {
	var (
		palette domain.Palette
		err     error
	)
	switch {
	case len(m.Palette) > 0:
		palette, err = domain.NewPalette(m.Palette)
	case m.Ramp != nil:
		palette, err = domain.RampPalette(m.Ramp.From, m.Ramp.To, m.Buckets)
	default:
		err = fmt.Errorf("%w: palette or ramp is required", domain.ErrConfig)
	}
	if err != nil {
		return domain.ScaleSpec{}, err
	}
	spec := domain.ScaleSpec{
		Buckets:   m.Buckets,
		Spacing:   domain.Spacing(m.Spacing),
		Precision: m.Precision,
		Palette:   palette,
		Unit:      m.Unit,
	}
	return spec, spec.Validate()
}

// Normalizer builds the feature-side key normalizer.
func (b Boundaries) Normalizer() (domain.Normalizer, error) {
	return normalizer(b.Aliases)
}

// Normalizer builds the table-side key normalizer.
func (t Table) Normalizer() (domain.Normalizer, error) {
	return normalizer(t.Aliases)
}

func normalizer(aliases []Alias) (domain.Normalizer, error) {
	table := make(map[string]string, len(aliases))
	for _, a := range aliases {
		if prev, ok := table[a.From]; ok && prev != a.To {
			return domain.Normalizer{}, fmt.Errorf("%w: alias %q maps to both %q and %q", domain.ErrConfig, a.From, prev, a.To)
		}
		table[a.From] = a.To
	}
	return domain.NewNormalizer(table)
}
