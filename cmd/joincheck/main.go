// Command joincheck reports how well the local datasets of the areal
// pipelines join onto their boundary files. Keys that match no boundary
// feature usually mean a name alias is missing from the catalog.
//
// Usage:
//
//	go run ./cmd/joincheck -data-dir data
//	go run ./cmd/joincheck -data-dir data -pipeline covid -strict
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/mapviz/internal/config"
	"github.com/couchcryptid/mapviz/internal/geo"
	"github.com/couchcryptid/mapviz/internal/observability"
	"github.com/couchcryptid/mapviz/internal/pipeline"
	"github.com/couchcryptid/mapviz/internal/refresh"
)

// check tracks the outcome for one pipeline.
type check struct {
	name   string
	errors []string
}

func (c *check) errorf(format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *check) passed() bool { return len(c.errors) == 0 }

func main() {
	catalogPath := flag.String("catalog", "", "pipeline catalog YAML (default: built-in catalog)")
	dataDir := flag.String("data-dir", "data", "directory holding the datasets and boundary files")
	only := flag.String("pipeline", "", "comma-separated pipelines to check (default: every areal pipeline)")
	strict := flag.Bool("strict", false, "fail when any tabular key is unmatched")
	flag.Parse()

	os.Exit(run(os.Stdout, *catalogPath, *dataDir, *only, *strict))
}

func run(out io.Writer, catalogPath, dataDir, only string, strict bool) int {
	catalog, err := config.LoadCatalog(catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	runner := pipeline.New(pipeline.Options{
		Catalog:    catalog,
		DataDir:    dataDir,
		Refresher:  refresh.NewController(dataDir, nil, nil, logger),
		Boundaries: geo.NewLoader(len(catalog.Pipelines), metrics, logger),
		Logger:     logger,
		Metrics:    metrics,
	})

	names := selectPipelines(catalog, only)
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: no areal pipelines to check")
		return 1
	}

	fmt.Fprintln(out, "=== Join coverage ===")
	fmt.Fprintln(out)

	checks := make([]*check, 0, len(names))
	for _, name := range names {
		c := &check{name: name}
		checks = append(checks, c)

		stats, err := runner.CheckJoin(name)
		if err != nil {
			c.errorf("%v", err)
			fmt.Fprintf(out, "  %-16s ERROR\n", name)
			continue
		}
		fmt.Fprintf(out, "  %-16s %4d features  %5d rows  %4d keys  %4d matched  %3d unmatched  %3d dropped\n",
			name, stats.Features, stats.Rows, stats.Groups, stats.Matched, len(stats.Unmatched), stats.Dropped)
		if strict {
			for _, key := range stats.Unmatched {
				c.errorf("unmatched key %q", key)
			}
		} else if len(stats.Unmatched) > 0 {
			fmt.Fprintf(out, "  %-16s unmatched: %s\n", "", strings.Join(stats.Unmatched, ", "))
		}
	}

	allPassed := true
	for _, c := range checks {
		if c.passed() {
			continue
		}
		allPassed = false
		fmt.Fprintf(out, "\n--- %s ---\n", c.name)
		for i, e := range c.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll joins checked.")
		return 0
	}
	fmt.Fprintln(out, "\nJoin check FAILED.")
	return 1
}

func selectPipelines(catalog *config.Catalog, only string) []string {
	if only != "" {
		return strings.Split(only, ",")
	}
	var names []string
	for _, p := range catalog.Pipelines {
		if p.Kind == config.KindChoropleth || p.Kind == config.KindTimeSlider {
			names = append(names, p.Name)
		}
	}
	return names
}
