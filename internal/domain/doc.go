// Package domain holds the data-to-color pipeline shared by every map.
//
// # Join keys
//
// Tabular rows and boundary features are matched on one key column (country
// name, ISO 3166-1 alpha-3 code). Both sides pass through a [Normalizer]
// first. Normalization is an exact, case-sensitive alias table; anything not
// in the table is left alone. Rows whose key still has no feature are
// reported in [MergeStats.Unmatched] and never attached to another feature.
//
// # Missing values
//
// A feature without a matching row, or a cell that failed to parse, carries
// the zero [Value]. It lands in bucket 0 and is drawn in [NoDataColor]. The
// number -1 ([NoDataSentinel]) is only produced when a missing value is
// exported to something that needs a plain float.
//
// # Binning
//
// [ComputeScale] turns the valid values of one metric into N strictly
// increasing lower edges:
//
//	linear:    min + i*(max-min)/N
//	geometric: max(min,1) * (max/max(min,1))^(i/N), first edge reset to min
//
// Edges are rounded to 0 decimals for counts and 2 for rates. Bucket b holds
// values in [edge[b-1], edge[b]); the last bucket is unbounded above. Scales
// are per metric; a time-series metric shares one scale across its periods.
package domain
