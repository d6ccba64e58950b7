package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/csvload"
	"github.com/dennisdiepolder/monti/agentkpi/internal/metrics"
	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/rs/zerolog"
)

// Directory layout below the data root
const (
	RankingDir          = "semana"
	EvaluationDir       = "notes"
	LegacyEvaluationDir = "notas"

	SnapshotCurrent  = "ranking_semanal_atual"
	SnapshotPrevious = "ranking_semanal_anterior"
)

var snapshotAliases = map[string]string{
	"current":  SnapshotCurrent,
	"atual":    SnapshotCurrent,
	"previous": SnapshotPrevious,
	"anterior": SnapshotPrevious,
}

// DailyQuery selects the per-day files of one month
type DailyQuery struct {
	Month string
	Year  int    // 0 leaves DayRef.Date unset
	Agent string // empty loads every agent
}

// Loader assembles tidy tables from the CSV exports under a data root.
// It holds no state between calls.
type Loader struct {
	root   string
	canon  *normalize.Canonicalizer
	logger zerolog.Logger
}

// NewLoader creates a loader reading from root
func NewLoader(root string, canon *normalize.Canonicalizer, logger zerolog.Logger) *Loader {
	if canon == nil {
		canon = normalize.NewCanonicalizer()
	}
	return &Loader{
		root:   root,
		canon:  canon,
		logger: logger.With().Str("component", "loader").Logger(),
	}
}

// Root returns the data root directory
func (l *Loader) Root() string {
	return l.root
}

// Monthly loads data/<month>.csv. Missing lists the expected KPI columns the
// export did not carry.
func (l *Loader) Monthly(month string) types.Table {
	start := time.Now()
	table := types.Empty(types.KindMonthly)

	path, ok := l.monthFile(month)
	if !ok {
		l.logger.Debug().Str("month", month).Msg("monthly file not found")
		return l.finish(table, start)
	}

	frame, ok := l.readFrame(path)
	if !ok {
		return l.finish(table, start)
	}
	appendFrame(&table, frame, nil)
	table.Missing = missingKPIs(table.Columns)
	return l.finish(table, start)
}

// Months returns the months that have a monthly export, in calendar order
func (l *Loader) Months() []types.MonthRef {
	seen := make(map[int]bool)
	var months []types.MonthRef
	for _, m := range l.monthFiles() {
		if seen[m.ref.Index] {
			continue
		}
		seen[m.ref.Index] = true
		months = append(months, *m.ref)
	}
	sort.SliceStable(months, func(i, j int) bool { return months[i].Index < months[j].Index })
	return months
}

// History concatenates every monthly export, tagging rows with their month.
// Files without an agent column or without rows are skipped.
func (l *Loader) History() types.Table {
	start := time.Now()
	table := types.Empty(types.KindHistory)

	seen := make(map[int]bool)
	for _, m := range l.monthFiles() {
		if seen[m.ref.Index] {
			continue
		}
		seen[m.ref.Index] = true

		frame, ok := l.readFrame(m.path)
		if !ok {
			continue
		}
		if !frame.HasAgent() || len(frame.Rows) == 0 {
			l.logger.Warn().Str("path", m.path).Msg("skipping monthly file without agent data")
			metrics.Get().RecordFileSkipped()
			continue
		}
		ref := m.ref
		appendFrame(&table, frame, func(r *types.Row) { r.Month = ref })
	}

	sort.SliceStable(table.Rows, func(i, j int) bool {
		return table.Rows[i].Month.Index < table.Rows[j].Month.Index
	})
	table.Missing = missingKPIs(table.Columns)
	return l.finish(table, start)
}

// Daily concatenates data/<month>/<day>.csv, tagging rows with their day,
// ordered by day number. The agent filter is applied per file before
// concatenation; with a filter set, files without an agent column are
// skipped.
func (l *Loader) Daily(q DailyQuery) types.Table {
	start := time.Now()
	table := types.Empty(types.KindDaily)

	monthIdx, ok := MonthIndex(q.Month)
	if !ok {
		return l.finish(table, start)
	}
	dir, ok := l.monthDir(monthIdx)
	if !ok {
		return l.finish(table, start)
	}

	agent := normalize.CleanAgent(q.Agent)
	for _, path := range l.list(dir) {
		day, ok := dayRef(path)
		if !ok {
			l.logger.Warn().Str("path", path).Msg("skipping daily file with unrecognized name")
			metrics.Get().RecordFileSkipped()
			continue
		}
		if q.Year > 0 {
			day.Date = calendarDate(q.Year, monthIdx, day.Index)
		}

		frame, ok := l.readFrame(path)
		if !ok {
			continue
		}
		if agent != "" {
			if !frame.HasAgent() {
				l.logger.Warn().Str("path", path).Msg("skipping daily file without agent column")
				metrics.Get().RecordFileSkipped()
				continue
			}
			frame = filterFrame(frame, agent)
		}
		if len(frame.Rows) == 0 {
			continue
		}
		appendFrame(&table, frame, func(r *types.Row) {
			d := day
			r.Day = &d
		})
	}
	sortByDay(table.Rows)
	return l.finish(table, start)
}

// Evaluations loads data/<month>/notes/<day>.csv for exactly one agent,
// ordered by day number. An empty agent yields an empty table.
func (l *Loader) Evaluations(month, agent string) types.Table {
	start := time.Now()
	table := types.Empty(types.KindEvaluation)

	agent = normalize.CleanAgent(agent)
	if agent == "" {
		return l.finish(table, start)
	}
	dir, ok := l.evaluationDir(month)
	if !ok {
		return l.finish(table, start)
	}

	for _, path := range l.list(dir) {
		day, ok := dayRef(path)
		if !ok {
			l.logger.Warn().Str("path", path).Msg("skipping evaluation file with unrecognized name")
			metrics.Get().RecordFileSkipped()
			continue
		}

		frame, ok := l.readFrame(path)
		if !ok {
			continue
		}
		if !frame.HasAgent() {
			l.logger.Warn().Str("path", path).Msg("skipping evaluation file without agent column")
			metrics.Get().RecordFileSkipped()
			continue
		}
		frame = filterFrame(frame, agent)
		if len(frame.Rows) == 0 {
			continue
		}
		appendFrame(&table, frame, func(r *types.Row) {
			d := day
			r.Day = &d
		})
	}
	sortByDay(table.Rows)
	return l.finish(table, start)
}

// Ranking loads data/semana/<snapshot>.csv. A file without an agent column
// yields an empty table.
func (l *Loader) Ranking(snapshot string) types.Table {
	start := time.Now()
	table := types.Empty(types.KindRanking)

	path, ok := l.rankingFile(snapshot)
	if !ok {
		return l.finish(table, start)
	}
	frame, ok := l.readFrame(path)
	if !ok {
		return l.finish(table, start)
	}
	if !frame.HasAgent() {
		l.logger.Warn().Str("path", path).Msg("skipping ranking file without agent column")
		metrics.Get().RecordFileSkipped()
		return l.finish(table, start)
	}
	appendFrame(&table, frame, nil)
	return l.finish(table, start)
}

// Sources lists the paths a load reads, including the directories whose
// listing it depends on. Used to build cache signatures.
func (l *Loader) Sources(kind types.Kind, selector string) []string {
	switch kind {
	case types.KindMonthly:
		if path, ok := l.monthFile(selector); ok {
			return []string{l.root, path}
		}
		return []string{l.root}
	case types.KindHistory:
		paths := []string{l.root}
		for _, m := range l.monthFiles() {
			paths = append(paths, m.path)
		}
		return paths
	case types.KindDaily:
		idx, ok := MonthIndex(selector)
		if !ok {
			return nil
		}
		dir, ok := l.monthDir(idx)
		if !ok {
			return []string{l.root}
		}
		return append([]string{l.root, dir}, l.list(dir)...)
	case types.KindEvaluation:
		dir, ok := l.evaluationDir(selector)
		if !ok {
			return []string{l.root}
		}
		return append([]string{l.root, dir}, l.list(dir)...)
	case types.KindRanking:
		if path, ok := l.rankingFile(selector); ok {
			return []string{path}
		}
		return []string{filepath.Join(l.root, RankingDir)}
	}
	return nil
}

// SnapshotName resolves aliases such as "current" to a ranking file stem
func SnapshotName(snapshot string) string {
	s := strings.ToLower(strings.TrimSpace(snapshot))
	if name, ok := snapshotAliases[s]; ok {
		return name
	}
	return strings.TrimSuffix(s, ".csv")
}

type monthFile struct {
	path string
	ref  *types.MonthRef
}

// monthFiles returns the monthly exports in calendar order
func (l *Loader) monthFiles() []monthFile {
	var files []monthFile
	for _, path := range l.list(l.root) {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		ref, ok := MonthRef(stem)
		if !ok {
			continue
		}
		files = append(files, monthFile{path: path, ref: ref})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].ref.Index < files[j].ref.Index })
	return files
}

func (l *Loader) monthFile(month string) (string, bool) {
	if idx, ok := MonthIndex(month); ok {
		for _, m := range l.monthFiles() {
			if m.ref.Index == idx {
				return m.path, true
			}
		}
		return "", false
	}
	if strings.TrimSpace(month) == "" || strings.ContainsAny(month, `/\`) {
		return "", false
	}
	return csvload.Resolve(filepath.Join(l.root, month+".csv"))
}

// monthDir finds the per-day directory of a month, ignoring case and accents
func (l *Loader) monthDir(idx int) (string, bool) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return "", false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if i, ok := MonthIndex(e.Name()); ok && i == idx {
			return filepath.Join(l.root, e.Name()), true
		}
	}
	return "", false
}

func (l *Loader) evaluationDir(month string) (string, bool) {
	idx, ok := MonthIndex(month)
	if !ok {
		return "", false
	}
	dir, ok := l.monthDir(idx)
	if !ok {
		return "", false
	}
	for _, name := range []string{EvaluationDir, LegacyEvaluationDir} {
		if p, ok := csvload.ResolveDir(filepath.Join(dir, name)); ok {
			return p, true
		}
	}
	return "", false
}

func (l *Loader) rankingFile(snapshot string) (string, bool) {
	name := SnapshotName(snapshot)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", false
	}
	return csvload.Resolve(filepath.Join(l.root, RankingDir, name+".csv"))
}

func (l *Loader) list(dir string) []string {
	files, err := csvload.List(dir)
	if err != nil {
		l.logger.Debug().Err(err).Str("dir", dir).Msg("directory not readable")
		return nil
	}
	return files
}

// readFrame reads and normalizes one file; unreadable files are logged and skipped
func (l *Loader) readFrame(path string) (normalize.Frame, bool) {
	m := metrics.Get()

	raw, err := csvload.Read(path)
	if err != nil {
		l.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable file")
		m.RecordFileSkipped()
		return normalize.Frame{}, false
	}
	m.RecordFileRead()
	if raw.Skipped > 0 {
		l.logger.Warn().Str("path", path).Int("records", raw.Skipped).Msg("skipped unparseable records")
	}

	l.logger.Debug().
		Str("path", path).
		Str("delimiter", string(raw.Delimiter)).
		Str("encoding", raw.Encoding).
		Int("records", len(raw.Records)).
		Msg("file read")

	return l.canon.Normalize(raw.Header, raw.Records), true
}

func (l *Loader) finish(table types.Table, start time.Time) types.Table {
	metrics.Get().RecordLoad(string(table.Kind), table.Len(), time.Since(start))
	return table
}

func appendFrame(t *types.Table, f normalize.Frame, decorate func(*types.Row)) {
	t.Columns = types.MergeColumns(t.Columns, f.Columns)
	for _, r := range f.Rows {
		if decorate != nil {
			decorate(&r)
		}
		t.Rows = append(t.Rows, r)
	}
}

func filterFrame(f normalize.Frame, agent string) normalize.Frame {
	out := normalize.Frame{Columns: f.Columns}
	for _, r := range f.Rows {
		if r.Agent == agent {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

func missingKPIs(cols []types.Field) []types.Field {
	present := make(map[types.Field]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	var missing []types.Field
	for _, f := range types.ExpectedKPIFields {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// dayRef derives the day key from a file name: "01.10.csv" -> 1, "01/10"
func dayRef(path string) (types.DayRef, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	first, _, _ := strings.Cut(stem, ".")
	n, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return types.DayRef{}, false
	}
	return types.DayRef{Index: n, Label: strings.ReplaceAll(stem, ".", "/")}, true
}

// sortByDay orders rows by day number; "2.10.csv" comes before "10.10.csv"
func sortByDay(rows []types.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Day.Index < rows[j].Day.Index
	})
}

// calendarDate returns nil for dates that do not exist, such as 30 February
func calendarDate(year, monthIdx, day int) *time.Time {
	if day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, time.Month(monthIdx+1), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != monthIdx+1 {
		return nil
	}
	return &t
}
