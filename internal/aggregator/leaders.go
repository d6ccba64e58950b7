package aggregator

import (
	"sort"

	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
)

// Leader is one leaderboard entry
type Leader struct {
	Agent     string  `json:"agent"`
	Value     float64 `json:"value"`
	Display   string  `json:"display"`
	CallCount float64 `json:"call_count"`
}

// Leaderboard holds the top agents per ranked metric. A board is nil when
// the table lacks the metric or the call count used to break ties.
type Leaderboard struct {
	FCR          []Leader `json:"first_contact_resolution"`
	Satisfaction []Leader `json:"satisfaction"`
	PreCallTime  []Leader `json:"avg_pre_call_time"`
}

var leaderSpecs = []Spec{
	{types.FieldCallCount, Sum},
	{types.FieldFCR, Mean},
	{types.FieldSatisfaction, Mean},
	{types.FieldPreCallTime, Mean},
}

type board struct {
	field     types.Field
	keep      func(float64) bool
	ascending bool
}

// Leaders ranks agents after reducing the table per agent. FCR keeps values
// strictly inside (0, 1) and satisfaction strictly inside (0, 5), best
// first; TMIA keeps positive values, shortest first. Ties go to the agent
// with more calls.
func Leaders(t types.Table, n int) Leaderboard {
	var lb Leaderboard
	if !t.Has(types.FieldCallCount) {
		return lb
	}
	groups := GroupBy(t, ByAgent, leaderSpecs)

	lb.FCR = rank(t, groups, n, board{
		field: types.FieldFCR,
		keep:  func(v float64) bool { return v > 0 && v < 1 },
	})
	lb.Satisfaction = rank(t, groups, n, board{
		field: types.FieldSatisfaction,
		keep:  func(v float64) bool { return v > 0 && v < normalize.SatisfactionScale },
	})
	lb.PreCallTime = rank(t, groups, n, board{
		field:     types.FieldPreCallTime,
		keep:      func(v float64) bool { return v > 0 },
		ascending: true,
	})
	return lb
}

func rank(t types.Table, groups []Group, n int, b board) []Leader {
	if !t.Has(b.field) {
		return nil
	}

	leaders := make([]Leader, 0)
	for _, g := range groups {
		v, ok := g.KPIs[b.field]
		if !ok || !b.keep(v) {
			continue
		}
		leaders = append(leaders, Leader{
			Agent:     g.Agent,
			Value:     v,
			Display:   normalize.FormatMetric(b.field, types.Some(v)),
			CallCount: g.KPIs[types.FieldCallCount],
		})
	}

	sort.SliceStable(leaders, func(i, j int) bool {
		a, c := leaders[i], leaders[j]
		if a.Value != c.Value {
			if b.ascending {
				return a.Value < c.Value
			}
			return a.Value > c.Value
		}
		return a.CallCount > c.CallCount
	})

	if n > 0 && len(leaders) > n {
		leaders = leaders[:n]
	}
	return leaders
}
