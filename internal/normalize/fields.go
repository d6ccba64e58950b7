package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"golang.org/x/text/unicode/norm"
)

// ParseDuration converts "HH:MM:SS" or "MM:SS" into fractional minutes.
// Any other shape, empty input, or a non-numeric or negative part yields 0.
func ParseDuration(s string) float64 {
	parts := strings.Split(strings.TrimSpace(s), ":")

	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		vals[i] = v
	}

	switch len(vals) {
	case 3:
		return vals[0]*60 + vals[1] + vals[2]/60
	case 2:
		return vals[0] + vals[1]/60
	default:
		return 0
	}
}

// ParsePercent parses percentage and rating cells such as "85%", "0,85" or "4.7".
// The unit scale is left untouched; see ReconcileFCR and ReconcileSatisfaction.
func ParsePercent(s string) types.Measure {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return types.Missing
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return types.Missing
	}
	return types.Some(v)
}

// ParseCount parses a volume cell. Unparseable or negative input counts as 0.
func ParseCount(s string) types.Measure {
	m := ParsePercent(s)
	if !m.Valid || m.Value < 0 {
		return types.Some(0)
	}
	return types.Some(math.Round(m.Value))
}

// CleanAgent produces the identity key used to join agent rows with user
// profiles: NFC form, trimmed, inner whitespace runs collapsed, case kept.
func CleanAgent(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// SameAgent compares two agent names by their identity keys
func SameAgent(a, b string) bool {
	return CleanAgent(a) == CleanAgent(b)
}
