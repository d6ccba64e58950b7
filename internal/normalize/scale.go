package normalize

import "github.com/dennisdiepolder/monti/agentkpi/internal/types"

const (
	// FCRMeanThreshold: an FCR column whose mean exceeds this is stored as 0-100
	FCRMeanThreshold = 1.0

	// SatisfactionMaxThreshold: a satisfaction column whose max exceeds this is stored as 0-100
	SatisfactionMaxThreshold = 5.0

	// SatisfactionScale is the canonical rating ceiling
	SatisfactionScale = 5.0
)

// ReconcileFCR rescales an integer-percent FCR column to a fraction.
// A column mixing both conventions cannot be detected.
func ReconcileFCR(col []types.Measure) []types.Measure {
	var sum float64
	var n int
	for _, m := range col {
		if m.Valid {
			sum += m.Value
			n++
		}
	}
	if n == 0 || sum/float64(n) <= FCRMeanThreshold {
		return append([]types.Measure(nil), col...)
	}
	return rescale(col, func(v float64) float64 { return v / 100 })
}

// ReconcileSatisfaction rescales a 0-100 satisfaction column to the 0-5 rating
func ReconcileSatisfaction(col []types.Measure) []types.Measure {
	peak, found := 0.0, false
	for _, m := range col {
		if m.Valid && (!found || m.Value > peak) {
			peak, found = m.Value, true
		}
	}
	if !found || peak <= SatisfactionMaxThreshold {
		return append([]types.Measure(nil), col...)
	}
	return rescale(col, func(v float64) float64 { return v / 100 * SatisfactionScale })
}

func rescale(col []types.Measure, fn func(float64) float64) []types.Measure {
	out := make([]types.Measure, len(col))
	for i, m := range col {
		if m.Valid {
			out[i] = types.Some(fn(m.Value))
		}
	}
	return out
}

// reconcileRows applies both heuristics to the rows of a single source file
func reconcileRows(rows []types.Row) {
	for _, spec := range []struct {
		field types.Field
		fn    func([]types.Measure) []types.Measure
	}{
		{types.FieldFCR, ReconcileFCR},
		{types.FieldSatisfaction, ReconcileSatisfaction},
	} {
		col := make([]types.Measure, len(rows))
		for i := range rows {
			col[i] = rows[i].Metric(spec.field)
		}
		for i, m := range spec.fn(col) {
			rows[i].SetMetric(spec.field, m)
		}
	}
}
