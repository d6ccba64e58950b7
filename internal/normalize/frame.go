package normalize

import (
	"strings"

	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
)

// Frame is one source file after normalization
type Frame struct {
	Columns []types.Field // canonical fields present, in header order
	Rows    []types.Row
}

// HasAgent reports whether the file carried an agent column
func (f Frame) HasAgent() bool {
	for _, c := range f.Columns {
		if c == types.FieldAgent {
			return true
		}
	}
	return false
}

// Normalize maps headers, converts every cell and reconciles unit scales.
// Records shorter than the header read missing cells as empty strings.
func (c *Canonicalizer) Normalize(header []string, records [][]string) Frame {
	cols := c.Map(header)
	idx := Index(cols)

	frame := Frame{Rows: make([]types.Row, 0, len(records))}
	for i, col := range cols {
		if col.Mapped && idx[col.Field] == i {
			frame.Columns = append(frame.Columns, col.Field)
		}
	}

	cell := func(rec []string, f types.Field) (string, bool) {
		i, ok := idx[f]
		if !ok {
			return "", false
		}
		if i >= len(rec) {
			return "", true
		}
		return rec[i], true
	}

	for _, rec := range records {
		var row types.Row

		if v, ok := cell(rec, types.FieldAgent); ok {
			row.Agent = CleanAgent(v)
		}
		for _, f := range types.DurationFields {
			if v, ok := cell(rec, f); ok {
				row.SetMetric(f, types.Some(ParseDuration(v)))
			}
		}
		for _, f := range types.RatioFields {
			if v, ok := cell(rec, f); ok {
				row.SetMetric(f, ParsePercent(v))
			}
		}
		for _, f := range types.CountFields {
			if v, ok := cell(rec, f); ok {
				row.SetMetric(f, ParseCount(v))
			}
		}

		row.Protocol, _ = cell(rec, types.FieldProtocol)
		row.Note, _ = cell(rec, types.FieldNote)
		row.SourceDay, _ = cell(rec, types.FieldSourceDay)
		row.Comment, _ = cell(rec, types.FieldComment)
		row.Protocol = strings.TrimSpace(row.Protocol)
		row.Note = strings.TrimSpace(row.Note)
		row.SourceDay = strings.TrimSpace(row.SourceDay)
		row.Comment = strings.TrimSpace(row.Comment)

		for i, col := range cols {
			if col.Mapped || i >= len(rec) {
				continue
			}
			if row.Extra == nil {
				row.Extra = make(map[string]string)
			}
			row.Extra[col.Name] = strings.TrimSpace(rec[i])
		}

		frame.Rows = append(frame.Rows, row)
	}

	reconcileRows(frame.Rows)
	return frame
}
