package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunsCmd_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, "run", "--root", tmpDir, "--json", "--save",
		"--members", "200", "--partitions", "3", "--rounds", "5", "--seed", "3")
	if err != nil {
		t.Fatalf("run --save failed: %v", err)
	}
	var res runResult
	decodeJSON(t, out, &res)
	if !res.Saved {
		t.Fatal("run --save did not report saved")
	}
	id := res.Run.ID

	out, err = execute(t, "runs", "list", "--root", tmpDir, "--json")
	if err != nil {
		t.Fatalf("runs list failed: %v", err)
	}
	var list struct {
		Runs []struct {
			ID string `json:"id"`
		} `json:"runs"`
		Count int `json:"count"`
	}
	decodeJSON(t, out, &list)
	if list.Count != 1 || list.Runs[0].ID != id {
		t.Fatalf("runs list = %+v, want one run %s", list, id)
	}

	out, err = execute(t, "runs", "show", id, "--root", tmpDir, "--rounds")
	if err != nil {
		t.Fatalf("runs show failed: %v", err)
	}
	if !strings.Contains(out, "Run "+id) || !strings.Contains(out, "Rounds:") {
		t.Errorf("runs show output:\n%s", out)
	}

	csvPath := filepath.Join(tmpDir, "members.csv")
	if _, err := execute(t, "runs", "export", id, "--root", tmpDir, "--csv", csvPath); err != nil {
		t.Fatalf("runs export failed: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 201 {
		t.Errorf("exported CSV has %d lines, want 201", got)
	}

	if _, err := execute(t, "runs", "delete", id, "--root", tmpDir); err != nil {
		t.Fatalf("runs delete failed: %v", err)
	}
	if _, err := execute(t, "runs", "show", id, "--root", tmpDir); err == nil {
		t.Error("runs show after delete should fail")
	}
}

func TestRunsCmd_NoDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	_, err := execute(t, "runs", "list", "--root", tmpDir)
	if err == nil || !strings.Contains(err.Error(), "no results database") {
		t.Errorf("error = %v, want missing database error", err)
	}
	if _, statErr := os.Stat(filepath.Join(tmpDir, ".bucketsim")); !os.IsNotExist(statErr) {
		t.Error("runs list should not create the data directory")
	}
}

func TestRunsExportCmd_NothingToExport(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if _, err := execute(t, "runs", "export", "some-id", "--root", tmpDir); err == nil {
		t.Error("export without --csv or --partition-csv should fail")
	}
}
