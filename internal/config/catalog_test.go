package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/mapviz/internal/domain"
)

func TestLoadCatalog_BuiltIn(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	assert.Equal(t, []string{"covid", "gdp", "sf-crime", "uk-accidents"}, c.Names())

	t.Run("covid", func(t *testing.T) {
		p, ok := c.Pipeline("covid")
		require.True(t, ok)
		assert.Equal(t, "/covid-19-viz/", p.Route)
		assert.Equal(t, KindChoropleth, p.Kind)
		assert.Equal(t, "30 6 * * *", p.Schedule)
		assert.Equal(t, SourceGitHub, p.Source.Type)
		assert.Equal(t, "01-02-2006.csv", p.Source.NameLayout)
		require.Len(t, p.Metrics, 5)

		tn, err := p.Table.Normalizer()
		require.NoError(t, err)
		assert.Equal(t, "United States of America", tn.Normalize("US"))
		assert.Equal(t, "Taiwan", tn.Normalize("Taiwan*"))
		assert.Equal(t, "Ivory Coast", tn.Normalize("Cote d'Ivoire"))

		bn, err := p.Boundaries.Normalizer()
		require.NoError(t, err)
		assert.Equal(t, "North Macedonia", bn.Normalize("Macedonia"))

		assert.Equal(t, domain.ReduceSum, p.Metrics[0].Reduction())
		assert.Equal(t, domain.ReduceMean, p.Metrics[3].Reduction())
		spec, err := p.Metrics[0].ScaleSpec()
		require.NoError(t, err)
		assert.Equal(t, 9, spec.Buckets)
		assert.Equal(t, domain.SpacingGeometric, spec.Spacing)
		assert.Equal(t, "#023858", spec.Palette[9])
	})

	t.Run("gdp", func(t *testing.T) {
		p, ok := c.Pipeline("gdp")
		require.True(t, ok)
		assert.Equal(t, KindTimeSlider, p.Kind)
		assert.Equal(t, string(domain.JoinInner), p.Join)
		assert.Equal(t, 4, p.Table.SkipRows)
		assert.Equal(t, []string{"2020"}, p.Table.DropColumns)
		assert.Equal(t, []string{"-99"}, p.Boundaries.Exclude)
		require.NotNil(t, p.Series)
		cols := p.Series.Columns()
		assert.Len(t, cols, 60)
		assert.Equal(t, "1960", cols[0])
		assert.Equal(t, "2019", cols[59])

		spec, err := p.Metrics[0].ScaleSpec()
		require.NoError(t, err)
		assert.Equal(t, 11, spec.Buckets)
		assert.Equal(t, "$", spec.Unit)
		assert.Equal(t, "#a50026", spec.Palette[1])
	})

	t.Run("point maps", func(t *testing.T) {
		sf, ok := c.Pipeline("sf-crime")
		require.True(t, ok)
		assert.Equal(t, "15 19 * * *", sf.Schedule)
		assert.Equal(t, 7, sf.Source.WindowDays)
		assert.Equal(t, 100000, sf.Source.Limit)
		require.NotNil(t, sf.Points)
		assert.Len(t, sf.Points.Popup, 3)
		assert.Equal(t, []float64{37.773972, -122.431297}, sf.View.Center)

		uk, ok := c.Pipeline("uk-accidents")
		require.True(t, ok)
		assert.Empty(t, uk.Schedule)
		require.NotNil(t, uk.Points)
		assert.Equal(t, 2015, uk.Points.Year)
		require.Len(t, uk.Points.Gradient, 4)
		assert.Equal(t, GradientStop{Stop: 0.95, Color: "orange"}, uk.Points.Gradient[2])
	})

	_, ok := c.Pipeline("nope")
	assert.False(t, ok)
}

func TestCatalog_DumpReloads(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Dump(&buf))
	assert.Contains(t, buf.String(), "name: covid")

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	reloaded, err := LoadCatalog(path)
	require.NoError(t, err)
	if diff := cmp.Diff(c, reloaded); diff != "" {
		t.Errorf("catalog changed after dump (-want +got):\n%s", diff)
	}
}

const minimalCatalog = `
pipelines:
  - name: demo
    route: /demo-viz/
    kind: choropleth
    schedule: "0 * * * *"
    output: demo.html
    caption: Demo
    view: {center: [0, 0], zoom: 2}
    source: {type: static, file: demo.csv}
    boundaries: {file: world.geojson, key_property: NAME}
    table:
      key_column: country
      aliases:
        - {from: "A", to: "B"}
    metrics:
      - column: value
        spacing: linear
        buckets: 2
        precision: 0
        palette: ["#808080", "#ffffff", "#000000"]
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCatalog_Minimal(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, minimalCatalog))
	require.NoError(t, err)
	require.Len(t, c.Pipelines, 1)
	assert.Equal(t, domain.ReduceSum, c.Pipelines[0].Metrics[0].Reduction())
	assert.Equal(t, "value", c.Pipelines[0].Metrics[0].DisplayName())
}

func TestLoadCatalog_Ramp(t *testing.T) {
	content := strings.Replace(minimalCatalog,
		`palette: ["#808080", "#ffffff", "#000000"]`,
		`ramp: {from: "#ffffff", to: "#08306b"}`, 1)
	c, err := LoadCatalog(writeCatalog(t, content))
	require.NoError(t, err)

	spec, err := c.Pipelines[0].Metrics[0].ScaleSpec()
	require.NoError(t, err)
	assert.Len(t, spec.Palette, 3)
	assert.Equal(t, domain.NoDataColor, spec.Palette[0])
}

func TestLoadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		old     string
		new     string
		wantMsg string
	}{
		{"unknown kind", "kind: choropleth", "kind: pie", "unknown kind"},
		{"bad schedule", `schedule: "0 * * * *"`, `schedule: "every day"`, "schedule"},
		{"bad route", "route: /demo-viz/", "route: demo", "route"},
		{"chained alias", `- {from: "A", to: "B"}`, "- {from: \"A\", to: \"B\"}\n        - {from: \"B\", to: \"C\"}", "aliases"},
		{"short palette", `"#ffffff", "#000000"]`, `"#ffffff"]`, "palette"},
		{"bad spacing", "spacing: linear", "spacing: quantile", "spacing"},
		{"unknown source", "type: static", "type: ftp", "source"},
		{"missing key column", "key_column: country", "key_column: \"\"", "key_column"},
		{"unknown join", "    metrics:", "    join: left\n    metrics:", "join"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.Replace(minimalCatalog, tt.old, tt.new, 1)
			require.NotEqual(t, minimalCatalog, content)

			_, err := LoadCatalog(writeCatalog(t, content))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
