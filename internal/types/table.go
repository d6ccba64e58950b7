package types

// Kind names the assembler that produced a table
type Kind string

const (
	KindMonthly    Kind = "monthly"
	KindHistory    Kind = "history"
	KindDaily      Kind = "daily"
	KindEvaluation Kind = "evaluation"
	KindRanking    Kind = "ranking"
)

// Table is a tidy table: canonical rows plus the canonical columns present
// in at least one contributing file.
type Table struct {
	Kind    Kind    `json:"kind"`
	Columns []Field `json:"columns"`
	Missing []Field `json:"missing,omitempty"`
	Rows    []Row   `json:"rows"`
}

// Empty returns a table of the given kind with no rows
func Empty(kind Kind) Table {
	return Table{Kind: kind, Columns: []Field{}, Rows: []Row{}}
}

// Len returns the number of rows
func (t Table) Len() int {
	return len(t.Rows)
}

// Has reports whether the column was present in the source data
func (t Table) Has(f Field) bool {
	for _, c := range t.Columns {
		if c == f {
			return true
		}
	}
	return false
}

// Where returns a new table holding only the rows accepted by keep
func (t Table) Where(keep func(Row) bool) Table {
	out := Table{Kind: t.Kind, Columns: t.Columns, Missing: t.Missing, Rows: make([]Row, 0, len(t.Rows))}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Agents returns the distinct agent names in first-seen order
func (t Table) Agents() []string {
	seen := make(map[string]bool)
	var agents []string
	for _, r := range t.Rows {
		if r.Agent == "" || seen[r.Agent] {
			continue
		}
		seen[r.Agent] = true
		agents = append(agents, r.Agent)
	}
	return agents
}

// MergeColumns returns the union of two column lists, preserving order
func MergeColumns(a, b []Field) []Field {
	out := make([]Field, 0, len(a)+len(b))
	seen := make(map[Field]bool)
	for _, list := range [][]Field{a, b} {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
