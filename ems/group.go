package ems

import (
	"sort"

	"github.com/angas/netload-go/types"
)

// EffectiveFactor is the single multiplier a system's measured load is scaled
// by: polarity times factor. Two systems sharing an effective factor are
// numerically interchangeable for aggregation, so their raw series can be
// summed before the multiplier is applied.
type EffectiveFactor float64

// Multiplier computes a system's effective factor. An unset polarity (0) is
// treated as +1 so it never silently zeroes out a system's contribution. A
// factor of 0 is kept as-is: that is a valid "weigh this system out"
// configuration.
func Multiplier(s types.System) EffectiveFactor {
	sign := s.Polarity
	if sign == 0 {
		sign = 1
	}
	return EffectiveFactor(float64(sign) * s.Factor)
}

// FactorGroup is a set of systems sharing one effective factor.
type FactorGroup struct {
	Factor  EffectiveFactor
	Systems []types.System
}

func (g FactorGroup) SystemIDs() []string {
	ids := make([]string, len(g.Systems))
	for i, s := range g.Systems {
		ids[i] = s.ID
	}
	return ids
}

// GroupByEffectiveFactor partitions systems into groups with identical
// effective factors. Every system lands in exactly one group. Groups are
// returned sorted ascending by factor so callers iterate (and query) in a
// reproducible order.
func GroupByEffectiveFactor(systems []types.System) []FactorGroup {
	byFactor := make(map[EffectiveFactor][]types.System)
	for _, s := range systems {
		f := Multiplier(s)
		byFactor[f] = append(byFactor[f], s)
	}

	groups := make([]FactorGroup, 0, len(byFactor))
	for f, members := range byFactor {
		groups = append(groups, FactorGroup{Factor: f, Systems: members})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Factor < groups[j].Factor
	})
	return groups
}
