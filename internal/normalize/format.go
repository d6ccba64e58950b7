package normalize

import (
	"fmt"
	"math"

	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
)

// FormatMinutes renders fractional minutes as MM:SS
func FormatMinutes(minutes float64) string {
	if minutes <= 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return "00:00"
	}
	total := int64(math.Round(minutes * 60))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatFraction renders a 0-1 fraction as a percentage
func FormatFraction(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// FormatSatisfaction renders a 0-5 rating as a percentage of the ceiling
func FormatSatisfaction(v float64) string {
	return fmt.Sprintf("%.2f%%", v/SatisfactionScale*100)
}

// FormatMetric renders a value the way the dashboard shows it
func FormatMetric(f types.Field, m types.Measure) string {
	if !m.Valid {
		return "N/A"
	}
	switch f {
	case types.FieldHandleTime, types.FieldWaitTime, types.FieldPreCallTime, types.FieldPostCallTime:
		return FormatMinutes(m.Value)
	case types.FieldFCR:
		return FormatFraction(m.Value)
	case types.FieldSatisfaction:
		return FormatSatisfaction(m.Value)
	case types.FieldCallCount, types.FieldEvaluationCount:
		return fmt.Sprintf("%.0f", m.Value)
	default:
		return fmt.Sprintf("%.2f", m.Value)
	}
}
