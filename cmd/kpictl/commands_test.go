package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dennisdiepolder/monti/agentkpi/internal/storage"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/rs/zerolog"
)

func newDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"outubro.csv": "NOM_AGENTE;QTD_ATENDIMENTO;TMA;FCR\nAna Lima;100;01:30;90\nJoao Silva;50;02:30;80\n",
		"janeiro.csv": "NOM_AGENTE;QTD_ATENDIMENTO\nAna Lima;10\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(zerolog.Nop())
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMonthsCmd(t *testing.T) {
	out, err := run(t, "months", "--data-dir", newDataDir(t))
	if err != nil {
		t.Fatalf("months failed: %v", err)
	}
	if out != "0\tJaneiro\n9\tOutubro\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestLoadCmd(t *testing.T) {
	dir := newDataDir(t)

	tests := []struct {
		name     string
		args     []string
		wantKind types.Kind
		wantRows int
	}{
		{"monthly", []string{"load", "monthly", "outubro"}, types.KindMonthly, 2},
		{"monthly agent", []string{"load", "monthly", "outubro", "--agent", " Ana  Lima "}, types.KindMonthly, 1},
		{"history", []string{"load", "history"}, types.KindHistory, 3},
		{"missing month", []string{"load", "monthly", "julho"}, types.KindMonthly, 0},
		{"missing daily", []string{"load", "daily", "outubro", "--year", "2024"}, types.KindDaily, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(tt.args, "--data-dir", dir)...)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}

			var table types.Table
			if err := json.Unmarshal([]byte(out), &table); err != nil {
				t.Fatalf("output is not a table: %v\n%s", err, out)
			}
			if table.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", table.Kind, tt.wantKind)
			}
			if len(table.Rows) != tt.wantRows {
				t.Errorf("rows = %d, want %d", len(table.Rows), tt.wantRows)
			}
		})
	}
}

func TestLoadCmdRejectsUnknownKind(t *testing.T) {
	if _, err := run(t, "load", "weekly", "--data-dir", newDataDir(t)); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}

func TestKPIsCmd(t *testing.T) {
	out, err := run(t, "kpis", "outubro", "--agent", "Ana Lima", "--data-dir", newDataDir(t))
	if err != nil {
		t.Fatalf("kpis failed: %v", err)
	}

	want := map[string]string{
		"call_count":               "100",
		"avg_handle_time":          "01:30",
		"first_contact_resolution": "90.00%",
		"satisfaction":             "N/A",
	}
	got := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 {
			got[fields[0]] = fields[1]
		}
	}
	for field, value := range want {
		if got[field] != value {
			t.Errorf("%s = %q, want %q", field, got[field], value)
		}
	}
}

func TestUsersSyncCmd(t *testing.T) {
	t.Setenv("CREDENTIALS_MODE", "memory")

	out, err := run(t, "users", "sync", "--month", "outubro", "--data-dir", newDataDir(t))
	if err != nil {
		t.Fatalf("users sync failed: %v", err)
	}

	var res storage.SyncResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not a sync result: %v\n%s", err, out)
	}
	if len(res.Created) != 2 {
		t.Fatalf("created %d accounts, want 2", len(res.Created))
	}
	if res.Created[0].Username != "ana.lima" || !res.Created[0].MustResetPassword {
		t.Errorf("unexpected first account %+v", res.Created[0])
	}
}
