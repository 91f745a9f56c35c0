package engine

import "github.com/locustdb/locustdb/pkg/wire"

// ToWireResponse converts a query's merged Result into the wire schema
// pkg/wire defines for transport, picking the column shape that
// matches how Finalize populated the Result (scalar aggregates,
// group-by, top-k, or a bare projection).
func ToWireResponse(res *Result) *wire.QueryResponse {
	switch {
	case res.TopK != nil:
		return &wire.QueryResponse{Columns: []wire.Column{wire.IntColumn("topk", res.TopK)}}

	case res.GroupNames != nil || res.GroupKeys != nil:
		cols := make([]wire.Column, 0, 1+len(res.GroupValues))
		if res.GroupNames != nil {
			cols = append(cols, wire.StringColumn("group", res.GroupNames))
		} else {
			cols = append(cols, wire.IntColumn("group", res.GroupKeys))
		}
		for _, alias := range sortedKeys(res.GroupValues) {
			cols = append(cols, wire.IntColumn(alias, res.GroupValues[alias]))
		}
		return &wire.QueryResponse{Columns: cols}

	case res.ProjectionInts != nil:
		vals := make([]wire.AnyVal, len(res.ProjectionInts))
		for i, v := range res.ProjectionInts {
			if i < len(res.ProjectionValid) && !res.ProjectionValid[i] {
				vals[i] = wire.AnyVal{Tag: wire.AnyNull}
				continue
			}
			vals[i] = wire.AnyVal{Tag: wire.AnyInt, I: v}
		}
		return &wire.QueryResponse{Columns: []wire.Column{{Name: "projection", Kind: wire.KindMixed, Mixed: vals}}}

	default:
		cols := make([]wire.Column, 0, len(res.Scalar))
		for _, alias := range sortedKeys(res.Scalar) {
			cols = append(cols, wire.IntColumn(alias, []int64{res.Scalar[alias]}))
		}
		return &wire.QueryResponse{Columns: cols}
	}
}

// sortedKeys returns m's keys in ascending order so wire output column
// ordering is deterministic across runs of the same query.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
