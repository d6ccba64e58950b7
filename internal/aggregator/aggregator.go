package aggregator

import (
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
)

// Reduction combines the valid values of one metric
type Reduction string

const (
	Sum  Reduction = "sum"
	Mean Reduction = "mean"
)

// Spec pairs a metric with its reduction
type Spec struct {
	Field     types.Field
	Reduction Reduction
}

// DefaultKPIs are the dashboard headline figures
var DefaultKPIs = []Spec{
	{types.FieldCallCount, Sum},
	{types.FieldHandleTime, Mean},
	{types.FieldWaitTime, Mean},
	{types.FieldPreCallTime, Mean},
	{types.FieldFCR, Mean},
	{types.FieldSatisfaction, Mean},
	{types.FieldNPS, Mean},
	{types.FieldEvaluationCount, Sum},
}

// Summary holds one scalar per reduced metric
type Summary map[types.Field]float64

// Reduce computes one scalar per spec. Missing values are ignored, metrics
// absent from the table are omitted, and a mean over no valid values is
// omitted.
func Reduce(t types.Table, specs []Spec) Summary {
	return reduceRows(t, t.Rows, specs)
}

func reduceRows(t types.Table, rows []types.Row, specs []Spec) Summary {
	out := make(Summary, len(specs))
	for _, s := range specs {
		if !s.Field.IsMetric() || !t.Has(s.Field) {
			continue
		}

		var sum float64
		var n int
		for _, r := range rows {
			m := r.Metric(s.Field)
			if !m.Valid {
				continue
			}
			sum += m.Value
			n++
		}

		switch s.Reduction {
		case Sum:
			out[s.Field] = sum
		case Mean:
			if n > 0 {
				out[s.Field] = sum / float64(n)
			}
		}
	}
	return out
}

// Formatted renders a summary the way the dashboard displays it, in
// DefaultKPIs order. Metrics absent from the summary read "N/A".
func Formatted(s Summary) []FormattedKPI {
	out := make([]FormattedKPI, 0, len(DefaultKPIs))
	for _, spec := range DefaultKPIs {
		m := types.Missing
		if v, ok := s[spec.Field]; ok {
			m = types.Some(v)
		}
		out = append(out, FormattedKPI{Field: spec.Field, Value: normalize.FormatMetric(spec.Field, m)})
	}
	return out
}

// FormattedKPI is one display-ready figure
type FormattedKPI struct {
	Field types.Field `json:"field"`
	Value string      `json:"value"`
}

// FilterDateRange keeps rows whose calendar date falls within [from, to].
// A nil bound is open. Rows without a calendar date are dropped when any
// bound is set.
func FilterDateRange(t types.Table, from, to *time.Time) types.Table {
	if from == nil && to == nil {
		return t
	}
	return t.Where(func(r types.Row) bool {
		if r.Day == nil || r.Day.Date == nil {
			return false
		}
		d := truncateDay(*r.Day.Date)
		if from != nil && d.Before(truncateDay(*from)) {
			return false
		}
		if to != nil && d.After(truncateDay(*to)) {
			return false
		}
		return true
	})
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FilterAgent keeps the rows of one agent, compared by identity key
func FilterAgent(t types.Table, agent string) types.Table {
	agent = normalize.CleanAgent(agent)
	if agent == "" {
		return t
	}
	return t.Where(func(r types.Row) bool { return r.Agent == agent })
}
