package dataset

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func writeLatin1(t *testing.T, path, content string) {
	t.Helper()
	enc, err := charmap.ISO8859_1.NewEncoder().String(content)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	writeFile(t, path, enc)
}

func newTestLoader(root string) *Loader {
	return NewLoader(root, nil, zerolog.New(&bytes.Buffer{}))
}

func TestMonthIndex(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"janeiro", 0, true},
		{"Março", 2, true},
		{"marco", 2, true},
		{"MARÇO", 2, true},
		{" Outubro ", 9, true},
		{"dezembro", 11, true},
		{"october", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := MonthIndex(tt.name)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("MonthIndex(%q) = (%d, %v), expected (%d, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}

	if MonthLabel(9) != "Outubro" || MonthLabel(2) != "Março" {
		t.Errorf("unexpected labels: %q %q", MonthLabel(9), MonthLabel(2))
	}
	if MonthLabel(12) != "" {
		t.Error("expected empty label for out-of-range index")
	}
}

func TestMonthlyMissingFileIsEmpty(t *testing.T) {
	l := newTestLoader(t.TempDir())

	table := l.Monthly("outubro")
	if table.Len() != 0 {
		t.Errorf("expected empty table, got %d rows", table.Len())
	}
	if table.Kind != types.KindMonthly {
		t.Errorf("expected monthly kind, got %s", table.Kind)
	}
}

func TestMonthlyLatin1Semicolon(t *testing.T) {
	root := t.TempDir()
	writeLatin1(t, filepath.Join(root, "outubro.csv"),
		"NOM_AGENTE;QtdAtendimento;TMA;FCR;Satisfação\n"+
			"João Silva ;120;00:04:30;85%;90\n"+
			"Ana Lima;80;00:05:00;70%;80\n")

	table := newTestLoader(root).Monthly("Outubro")
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	if table.Rows[0].Agent != "João Silva" {
		t.Errorf("expected cleaned agent, got %q", table.Rows[0].Agent)
	}
	if table.Rows[0].FCR.Value != 0.85 {
		t.Errorf("expected FCR 0.85, got %v", table.Rows[0].FCR.Value)
	}
	if math.Abs(table.Rows[1].Satisfaction.Value-4) > 1e-9 {
		t.Errorf("expected satisfaction 4, got %v", table.Rows[1].Satisfaction.Value)
	}

	wantMissing := []types.Field{
		types.FieldWaitTime, types.FieldPreCallTime, types.FieldPostCallTime,
		types.FieldNPS, types.FieldEvaluationCount,
	}
	if diff := cmp.Diff(wantMissing, table.Missing); diff != "" {
		t.Errorf("missing columns mismatch (-want +got):\n%s", diff)
	}
}

func TestMonthlyIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "outubro.csv"), "NOM_AGENTE,TMA,FCR\nAna,01:30,0.9\nRui,02:00,0.8\n")

	l := newTestLoader(root)
	first := l.Monthly("outubro")
	second := l.Monthly("outubro")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reload differs (-first +second):\n%s", diff)
	}
}

func TestMonths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "outubro.csv"), "A;B\n")
	writeFile(t, filepath.Join(root, "Marco.csv"), "A;B\n")
	writeFile(t, filepath.Join(root, "notes.csv"), "A;B\n")
	writeFile(t, filepath.Join(root, "janeiro", "01.01.csv"), "A;B\n")

	want := []types.MonthRef{{Index: 2, Label: "Março"}, {Index: 9, Label: "Outubro"}}
	if diff := cmp.Diff(want, newTestLoader(root).Months()); diff != "" {
		t.Errorf("months mismatch (-want +got):\n%s", diff)
	}
}

func TestHistorySkipsBadFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "outubro.csv"), "NOM_AGENTE;FCR\nAna;90\n")
	writeFile(t, filepath.Join(root, "setembro.csv"), "NOM_AGENTE;FCR\nAna;0,8\nRui;0,6\n")
	// no agent column
	writeFile(t, filepath.Join(root, "agosto.csv"), "TMA;FCR\n01:00;80\n")
	// malformed: unclosed quote
	writeFile(t, filepath.Join(root, "julho.csv"), "NOM_AGENTE;FCR\n\"Ana;80\n")

	table := newTestLoader(root).History()
	if table.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", table.Len())
	}

	var labels []string
	for _, r := range table.Rows {
		labels = append(labels, r.Month.Label)
	}
	if diff := cmp.Diff([]string{"Setembro", "Setembro", "Outubro"}, labels); diff != "" {
		t.Errorf("month order mismatch (-want +got):\n%s", diff)
	}
	// October FCR was stored as 90 and reconciled within its own file
	if table.Rows[2].FCR.Value != 0.9 {
		t.Errorf("expected October FCR 0.9, got %v", table.Rows[2].FCR.Value)
	}
}

func TestDaily(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "fevereiro")
	writeFile(t, filepath.Join(dir, "02.02.csv"), "NOM_AGENTE;TMA\nAna;01:00\nRui;02:00\n")
	writeFile(t, filepath.Join(dir, "01.02.csv"), "NOM_AGENTE;TMA\nAna;03:00\n")
	writeFile(t, filepath.Join(dir, "30.02.csv"), "NOM_AGENTE;TMA\nAna;04:00\n")
	writeFile(t, filepath.Join(dir, "resumo.csv"), "NOM_AGENTE;TMA\nAna;04:00\n")
	writeFile(t, filepath.Join(dir, "03.02.csv"), "SOLO\n")

	l := newTestLoader(root)

	table := l.Daily(DailyQuery{Month: "Fevereiro", Year: 2025})
	if table.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", table.Len())
	}

	first := table.Rows[0]
	if first.Day.Label != "01/02" || first.Day.Index != 1 {
		t.Errorf("unexpected first day: %+v", first.Day)
	}
	want := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	if first.Day.Date == nil || !first.Day.Date.Equal(want) {
		t.Errorf("expected date %v, got %v", want, first.Day.Date)
	}

	last := table.Rows[3]
	if last.Day.Label != "30/02" {
		t.Fatalf("expected last row from 30/02, got %s", last.Day.Label)
	}
	if last.Day.Date != nil {
		t.Errorf("expected no calendar date for 30 February, got %v", last.Day.Date)
	}

	filtered := l.Daily(DailyQuery{Month: "fevereiro", Agent: " Rui"})
	if filtered.Len() != 1 || filtered.Rows[0].Agent != "Rui" {
		t.Fatalf("expected only Rui's row, got %+v", filtered.Rows)
	}
	if filtered.Rows[0].Day.Date != nil {
		t.Error("expected no calendar date without a year")
	}
}

func TestDailyFilterSkipsFilesWithoutAgent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "outubro")
	writeFile(t, filepath.Join(dir, "01.10.csv"), "NOM_AGENTE;QTD_ATENDIMENTO\nAna Lima;10\nRui;5\n")
	writeFile(t, filepath.Join(dir, "02.10.csv"), "QTD_ATENDIMENTO;TMA\n999;01:00\n")
	writeFile(t, filepath.Join(dir, "03.10.csv"), "QTD_ATENDIMENTO;TMA\n777;02:00\n")

	l := newTestLoader(root)

	filtered := l.Daily(DailyQuery{Month: "outubro", Agent: "Ana Lima"})
	if filtered.Len() != 1 {
		t.Fatalf("expected only Ana Lima's row, got %+v", filtered.Rows)
	}
	if filtered.Rows[0].Agent != "Ana Lima" || filtered.Rows[0].CallCount.Value != 10 {
		t.Errorf("unexpected row %+v", filtered.Rows[0])
	}

	if all := l.Daily(DailyQuery{Month: "outubro"}); all.Len() != 4 {
		t.Errorf("expected every row without a filter, got %d", all.Len())
	}
}

func TestDailyAndEvaluationsOrderByDayNumber(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "outubro")
	for _, day := range []string{"10", "2", "1"} {
		writeFile(t, filepath.Join(dir, day+".10.csv"), "NOM_AGENTE;TMA\nAna;01:00\n")
		writeFile(t, filepath.Join(dir, "notes", day+".10.csv"), "NOM_AGENTE;NUM_PROTOCOLO\nAna;P-"+day+"\n")
	}

	l := newTestLoader(root)
	want := []int{1, 2, 10}

	for name, table := range map[string]types.Table{
		"daily":       l.Daily(DailyQuery{Month: "outubro"}),
		"evaluations": l.Evaluations("outubro", "Ana"),
	} {
		var got []int
		for _, r := range table.Rows {
			got = append(got, r.Day.Index)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s day order mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestDailyMissingMonth(t *testing.T) {
	l := newTestLoader(t.TempDir())
	if table := l.Daily(DailyQuery{Month: "outubro", Year: 2025}); table.Len() != 0 {
		t.Errorf("expected empty table, got %d rows", table.Len())
	}
	if table := l.Daily(DailyQuery{Month: "brumaire"}); table.Len() != 0 {
		t.Errorf("expected empty table for unknown month, got %d rows", table.Len())
	}
}

func TestEvaluations(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "outubro", "notes", "02.10.csv"),
		"nom_agente,num_protocolo,nom_valor,dia\nAna,P-2,5,02/10\nRui,P-3,3,02/10\n")
	writeFile(t, filepath.Join(root, "outubro", "notes", "01.10.csv"),
		"nom_agente,num_protocolo,nom_valor\nAna,P-1,4\n")
	writeFile(t, filepath.Join(root, "outubro", "notes", "03.10.csv"),
		"num_protocolo,nom_valor\nP-9,1\n")

	l := newTestLoader(root)

	table := l.Evaluations("outubro", "Ana")
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	if table.Rows[0].Protocol != "P-1" || table.Rows[1].Protocol != "P-2" {
		t.Errorf("unexpected protocol order: %q %q", table.Rows[0].Protocol, table.Rows[1].Protocol)
	}
	if table.Rows[1].Note != "5" || table.Rows[1].SourceDay != "02/10" {
		t.Errorf("unexpected evaluation fields: %+v", table.Rows[1])
	}

	if empty := l.Evaluations("outubro", ""); empty.Len() != 0 {
		t.Errorf("expected empty table for empty agent, got %d rows", empty.Len())
	}
}

func TestEvaluationsLegacyDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "outubro", "notas", "01.10.csv"),
		"nom_agente;num_protocolo;nom_valor\nAna;P-1;4\n")

	if table := newTestLoader(root).Evaluations("outubro", "Ana"); table.Len() != 1 {
		t.Errorf("expected 1 row from legacy directory, got %d", table.Len())
	}
}

func TestRanking(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "semana", "ranking_semanal_atual.csv"),
		"NOM_AGENTE;FCR;Satisfacao\nAna;0,9;4,5\n")
	writeFile(t, filepath.Join(root, "semana", "ranking_semanal_anterior.csv"),
		"FCR;Satisfacao\n0,9;4,5\n")

	l := newTestLoader(root)
	if table := l.Ranking("current"); table.Len() != 1 {
		t.Errorf("expected 1 row, got %d", table.Len())
	}
	if table := l.Ranking(SnapshotPrevious); table.Len() != 0 {
		t.Errorf("expected empty table without agent column, got %d rows", table.Len())
	}
	if table := l.Ranking("../outubro"); table.Len() != 0 {
		t.Errorf("expected path traversal to be refused, got %d rows", table.Len())
	}
}

func TestServiceCachesUntilFileChanges(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "outubro.csv")
	writeFile(t, path, "NOM_AGENTE;TMA\nAna;01:00\n")

	svc := NewService(newTestLoader(root), zerolog.New(&bytes.Buffer{}))

	if got := svc.Monthly("outubro").Len(); got != 1 {
		t.Fatalf("expected 1 row, got %d", got)
	}
	if got := svc.Monthly("outubro").Len(); got != 1 {
		t.Fatalf("expected cached 1 row, got %d", got)
	}

	writeFile(t, path, "NOM_AGENTE;TMA\nAna;01:00\nRui;02:00\n")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("failed to touch file: %v", err)
	}

	if got := svc.Monthly("outubro").Len(); got != 2 {
		t.Errorf("expected reload after file change, got %d rows", got)
	}
}

func TestServiceInvalidate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "outubro.csv"), "NOM_AGENTE;TMA\nAna;01:00\n")

	svc := NewService(newTestLoader(root), zerolog.New(&bytes.Buffer{}))
	svc.History()
	svc.Invalidate()

	if got := svc.History().Len(); got != 1 {
		t.Errorf("expected 1 row after invalidation, got %d", got)
	}
}
