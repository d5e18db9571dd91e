package domain

import (
	"fmt"
	"sort"
)

// Reduction folds the values of rows sharing a join key into one value.
type Reduction string

const (
	// ReduceSum adds values; used for additive counts (confirmed, deaths, active).
	ReduceSum Reduction = "sum"
	// ReduceMean averages values; used for rates (incidence rate, case-fatality ratio).
	ReduceMean Reduction = "mean"
)

// JoinMode selects which keys survive the join.
type JoinMode string

const (
	// JoinRight keeps every geographic feature, matched or not.
	JoinRight JoinMode = "right"
	// JoinInner keeps only keys present in both datasets.
	JoinInner JoinMode = "inner"
)

// MergeSpec parameterizes Merge for one dataset.
type MergeSpec struct {
	// Columns maps each value column to its reduction rule.
	Columns     map[string]Reduction
	Join        JoinMode
	TableKeys   Normalizer
	FeatureKeys Normalizer
}

// MergeStats describes how well the tabular data joined onto the features.
type MergeStats struct {
	Features int
	Rows     int
	Groups   int
	Matched  int
	// Unmatched lists normalized tabular keys with no feature; those rows are
	// excluded from the output.
	Unmatched []string
	// Dropped counts features removed by an inner join.
	Dropped int
}

// Merge normalizes keys on both sides, reduces tabular rows per key and joins
// the result onto the features. With JoinRight the output has exactly one
// record per feature, in feature order.
func Merge(features []GeoFeature, records []DataRecord, spec MergeSpec) ([]JoinedRecord, MergeStats, error) {
	if len(spec.Columns) == 0 {
		return nil, MergeStats{}, fmt.Errorf("%w: merge needs at least one value column", ErrConfig)
	}
	for col, red := range spec.Columns {
		if red != ReduceSum && red != ReduceMean {
			return nil, MergeStats{}, fmt.Errorf("%w: column %q has unknown reduction %q", ErrConfig, col, red)
		}
	}
	join := spec.Join
	if join == "" {
		join = JoinRight
	}
	if join != JoinRight && join != JoinInner {
		return nil, MergeStats{}, fmt.Errorf("%w: unknown join mode %q", ErrConfig, join)
	}

	grouped := reduce(records, spec)
	stats := MergeStats{Features: len(features), Rows: len(records), Groups: len(grouped)}

	seen := make(map[string]bool, len(features))
	out := make([]JoinedRecord, 0, len(features))
	for _, f := range features {
		key := spec.FeatureKeys.Normalize(f.Key)
		f.Key = key
		seen[key] = true

		values, ok := grouped[key]
		if !ok && join == JoinInner {
			stats.Dropped++
			continue
		}
		rec := JoinedRecord{Feature: f, Key: key, Matched: ok, Values: make(map[string]Value, len(spec.Columns))}
		for col := range spec.Columns {
			rec.Values[col] = values[col]
		}
		if ok {
			stats.Matched++
		}
		out = append(out, rec)
	}

	for _, key := range sortedKeys(grouped) {
		if !seen[key] {
			stats.Unmatched = append(stats.Unmatched, key)
		}
	}
	return out, stats, nil
}

// reduce groups records by normalized key and applies each column's reduction.
// Missing cells are skipped; a group without any valid cell for a column stays
// missing for that column.
func reduce(records []DataRecord, spec MergeSpec) map[string]map[string]Value {
	type acc struct {
		sum   float64
		count int
	}
	groups := make(map[string]map[string]*acc)
	for _, r := range records {
		key := spec.TableKeys.Normalize(r.Key)
		g, ok := groups[key]
		if !ok {
			g = make(map[string]*acc, len(spec.Columns))
			groups[key] = g
		}
		for col := range spec.Columns {
			v := r.Values[col]
			if !v.Valid {
				continue
			}
			a, ok := g[col]
			if !ok {
				a = &acc{}
				g[col] = a
			}
			a.sum += v.V
			a.count++
		}
	}

	out := make(map[string]map[string]Value, len(groups))
	for key, g := range groups {
		vals := make(map[string]Value, len(spec.Columns))
		for col, red := range spec.Columns {
			a, ok := g[col]
			if !ok || a.count == 0 {
				vals[col] = None()
				continue
			}
			switch red {
			case ReduceMean:
				vals[col] = Some(a.sum / float64(a.count))
			default:
				vals[col] = Some(a.sum)
			}
		}
		out[key] = vals
	}
	return out
}

// Keys returns the normalized join keys of records, sorted and deduplicated.
func Keys(records []DataRecord, n Normalizer) []string {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[n.Normalize(r.Key)] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
