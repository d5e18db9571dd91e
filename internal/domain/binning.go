package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Spacing selects how bucket boundaries are laid out between min and max.
type Spacing string

const (
	SpacingLinear    Spacing = "linear"
	SpacingGeometric Spacing = "geometric"
)

// ScaleSpec parameterizes ComputeScale for one metric.
type ScaleSpec struct {
	// Buckets is the number of data classes; the palette holds Buckets+1 colors.
	Buckets int
	Spacing Spacing
	// Precision is the number of decimals kept on boundaries: 0 for counts, 2 for rates.
	Precision int
	Palette   Palette
	// Unit is appended to legend numbers, e.g. "$".
	Unit string
}

// Validate checks the spec without looking at any data.
func (s ScaleSpec) Validate() error {
	if s.Buckets < 1 {
		return fmt.Errorf("%w: bucket count must be positive, got %d", ErrConfig, s.Buckets)
	}
	if s.Spacing != SpacingLinear && s.Spacing != SpacingGeometric {
		return fmt.Errorf("%w: unknown spacing %q", ErrConfig, s.Spacing)
	}
	if s.Precision != 0 && s.Precision != 2 {
		return fmt.Errorf("%w: precision must be 0 or 2, got %d", ErrConfig, s.Precision)
	}
	if len(s.Palette) != s.Buckets+1 {
		return fmt.Errorf("%w: palette has %d colors, want %d (no-data + %d classes)",
			ErrConfig, len(s.Palette), s.Buckets+1, s.Buckets)
	}
	return nil
}

// Bucket is one color class of a Scale. Bucket 0 is the no-data class; the
// others are half-open [Lower, Upper) intervals, the last one unbounded.
type Bucket struct {
	Index  int
	Lower  float64
	Upper  float64
	Color  string
	NoData bool
}

// Scale is the binning of one metric. Boundaries holds the lower edge of each
// data class in strictly increasing order.
type Scale struct {
	spec       ScaleSpec
	boundaries []float64
}

// ComputeScale derives bucket boundaries from the valid values of one metric.
// When no value is valid the scale has no data classes and every value maps to
// the no-data bucket.
func ComputeScale(values []Value, spec ScaleSpec) (Scale, error) {
	if err := spec.Validate(); err != nil {
		return Scale{}, err
	}
	lo, hi, ok := valueRange(values)
	if !ok {
		return Scale{spec: spec}, nil
	}

	var raw []float64
	switch spec.Spacing {
	case SpacingGeometric:
		raw = geometricEdges(lo, hi, spec.Buckets)
	default:
		raw = linearEdges(lo, hi, spec.Buckets)
	}
	return Scale{spec: spec, boundaries: roundIncreasing(raw, spec.Precision)}, nil
}

// MustScale is ComputeScale for tests and static data; it panics on error.
func MustScale(values []Value, spec ScaleSpec) Scale {
	s, err := ComputeScale(values, spec)
	if err != nil {
		panic(err)
	}
	return s
}

func valueRange(values []Value) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !v.Valid || math.IsNaN(v.V) || math.IsInf(v.V, 0) {
			continue
		}
		lo = math.Min(lo, v.V)
		hi = math.Max(hi, v.V)
		ok = true
	}
	return lo, hi, ok
}

// linearEdges splits [lo, hi] into n equal classes and returns their lower edges.
func linearEdges(lo, hi float64, n int) []float64 {
	edges := make([]float64, n)
	step := (hi - lo) / float64(n)
	for i := range edges {
		edges[i] = lo + step*float64(i)
	}
	return edges
}

// geometricEdges returns n lower edges evenly spaced in log space. Log space is
// undefined below 1, so the computation starts at max(lo, 1) and the first
// edge is put back to the true minimum afterwards.
func geometricEdges(lo, hi float64, n int) []float64 {
	start := math.Max(lo, 1)
	if hi <= start {
		return linearEdges(lo, hi, n)
	}
	edges := make([]float64, n)
	ratio := math.Log(hi / start)
	for i := range edges {
		edges[i] = start * math.Exp(ratio*float64(i)/float64(n))
	}
	edges[0] = lo
	return edges
}

// roundIncreasing rounds edges to precision decimals and bumps any edge that
// does not exceed its predecessor by one precision step. The first edge is
// the column minimum and stays exact, so the lowest class always contains it.
func roundIncreasing(edges []float64, precision int) []float64 {
	step := math.Pow10(-precision)
	out := make([]float64, len(edges))
	for i, e := range edges {
		if i == 0 {
			out[0] = e
			continue
		}
		r := roundTo(e, precision)
		if r <= out[i-1] {
			r = roundTo(out[i-1]+step, precision)
		}
		out[i] = r
	}
	return out
}

func roundTo(v float64, precision int) float64 {
	p := math.Pow10(precision)
	return math.Round(v*p) / p
}

// Empty reports whether the scale was computed from a column without data.
func (s Scale) Empty() bool { return len(s.boundaries) == 0 }

// Spec returns the parameters the scale was built with.
func (s Scale) Spec() ScaleSpec { return s.spec }

// Boundaries returns a copy of the lower edges of the data classes.
func (s Scale) Boundaries() []float64 {
	return append([]float64(nil), s.boundaries...)
}

// Buckets lists the no-data bucket followed by one bucket per data class.
func (s Scale) Buckets() []Bucket {
	out := make([]Bucket, 0, len(s.boundaries)+1)
	out = append(out, Bucket{Index: 0, Lower: NoDataSentinel, Upper: NoDataSentinel, Color: s.spec.Palette[0], NoData: true})
	for i, lo := range s.boundaries {
		up := math.Inf(1)
		if i+1 < len(s.boundaries) {
			up = s.boundaries[i+1]
		}
		out = append(out, Bucket{Index: i + 1, Lower: lo, Upper: up, Color: s.spec.Palette[i+1]})
	}
	return out
}

// Classify returns the bucket index of v. Missing values land in bucket 0;
// valid values below the first boundary are clamped into bucket 1.
func (s Scale) Classify(v Value) int {
	if !v.Valid || len(s.boundaries) == 0 || math.IsNaN(v.V) {
		return 0
	}
	idx := sort.Search(len(s.boundaries), func(i int) bool { return s.boundaries[i] > v.V })
	if idx == 0 {
		return 1
	}
	return idx
}

// Color returns the palette color for v.
func (s Scale) Color(v Value) string {
	if len(s.spec.Palette) == 0 {
		return NoDataColor
	}
	return s.spec.Palette[s.Classify(v)]
}

// FormatBound renders a boundary with the scale's precision and unit.
func (s Scale) FormatBound(v float64) string {
	return strconv.FormatFloat(roundTo(v, s.spec.Precision), 'f', -1, 64) + s.spec.Unit
}

// FormatLowest formats the lower edge of the first class, rounded down so the
// label never starts above the smallest value it covers.
func (s Scale) FormatLowest(v float64) string {
	p := math.Pow10(s.spec.Precision)
	return strconv.FormatFloat(math.Floor(v*p+1e-9)/p, 'f', -1, 64) + s.spec.Unit
}

// Collect gathers the values of the given columns across records, for scales
// shared by several columns of one metric.
func Collect(records []JoinedRecord, columns ...string) []Value {
	out := make([]Value, 0, len(records)*len(columns))
	for _, r := range records {
		for _, c := range columns {
			out = append(out, r.Value(c))
		}
	}
	return out
}

// Colorize assigns each record's color for column from s.
func Colorize(records []JoinedRecord, column string, s Scale) {
	for i := range records {
		if records[i].Colors == nil {
			records[i].Colors = make(map[string]string)
		}
		records[i].Colors[column] = s.Color(records[i].Value(column))
	}
}
