package nmr

import (
	"math"
	"sort"

	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// Cluster groups raw peaks into signals. Peaks are sorted ascending and
// scanned once; each cluster is anchored at its first member and absorbs
// every following peak within tolerance of that anchor. Anchors never move,
// so a chain of close peaks can split into several clusters.
//
// Non-finite deltas and peaks with AtomCount < 1 are dropped.
func Cluster(peaks []types.RawPeak, tolerance float64) []types.ClusteredSignal {
	valid := make([]types.RawPeak, 0, len(peaks))
	for _, p := range peaks {
		if math.IsNaN(p.Delta) || math.IsInf(p.Delta, 0) || p.AtomCount < 1 {
			continue
		}
		valid = append(valid, p)
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Delta < valid[j].Delta })

	out := make([]types.ClusteredSignal, 0, len(valid))
	var (
		current *types.ClusteredSignal
		ids     map[int]struct{}
	)
	flush := func() {
		if current == nil {
			return
		}
		current.AtomIDs = sortedIDs(ids)
		out = append(out, *current)
	}

	for _, p := range valid {
		if current != nil && p.Delta-current.Delta <= tolerance {
			current.Count += p.AtomCount
			for _, id := range p.AtomIDs {
				ids[id] = struct{}{}
			}
			continue
		}
		flush()
		current = &types.ClusteredSignal{Delta: p.Delta, Count: p.AtomCount}
		ids = make(map[int]struct{}, len(p.AtomIDs))
		for _, id := range p.AtomIDs {
			ids[id] = struct{}{}
		}
	}
	flush()
	return out
}

func sortedIDs(set map[int]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// ClusterNucleus drops peaks outside the nucleus range and clusters the rest
// with the nucleus tolerance.
func ClusterNucleus(catalog *Catalog, key types.NucleusKey, peaks []types.RawPeak) []types.ClusteredSignal {
	cfg := catalog.Config(key)
	kept := make([]types.RawPeak, 0, len(peaks))
	for _, p := range peaks {
		if cfg.InRange(p.Delta) {
			kept = append(kept, p)
		}
	}
	return Cluster(kept, cfg.ClusterTolerance)
}

// ClusterAll clusters every nucleus in raw and returns a complete result.
func ClusterAll(catalog *Catalog, raw map[types.NucleusKey][]types.RawPeak) types.PredictionResult {
	result := types.NewPredictionResult()
	for _, k := range catalog.Keys() {
		result[k] = ClusterNucleus(catalog, k, raw[k])
	}
	return result
}
