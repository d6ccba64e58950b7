package dataset

import (
	"strings"
	"unicode"

	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MonthNames is the calendar order used by the export file names
var MonthNames = []string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

var monthKeys = func() map[string]int {
	keys := make(map[string]int, len(MonthNames))
	for i, name := range MonthNames {
		keys[monthKey(name)] = i
	}
	return keys
}()

// monthKey folds case and accents so "Março", "marco" and "MARÇO" agree
func monthKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// MonthIndex returns the 0-11 calendar index of a month name
func MonthIndex(name string) (int, bool) {
	i, ok := monthKeys[monthKey(name)]
	return i, ok
}

// MonthLabel returns the display label of a month index: "Outubro"
func MonthLabel(index int) string {
	if index < 0 || index >= len(MonthNames) {
		return ""
	}
	name := []rune(MonthNames[index])
	name[0] = unicode.ToUpper(name[0])
	return string(name)
}

// MonthRef builds the grouping key for a month name
func MonthRef(name string) (*types.MonthRef, bool) {
	i, ok := MonthIndex(name)
	if !ok {
		return nil, false
	}
	return &types.MonthRef{Index: i, Label: MonthLabel(i)}, true
}

// CanonicalMonth returns the lowercase file-name spelling of a month
func CanonicalMonth(name string) (string, bool) {
	i, ok := MonthIndex(name)
	if !ok {
		return "", false
	}
	return MonthNames[i], true
}
