package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnapshotCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	snapPath := filepath.Join(tmpDir, "run.json.gz")
	if _, err := execute(t, "run", "--root", tmpDir, "--no-history",
		"--members", "120", "--partitions", "2", "--rounds", "2", "--seed", "5", "--snapshot", snapPath); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out, err := execute(t, "snapshot", "info", snapPath)
	if err != nil {
		t.Fatalf("snapshot info failed: %v", err)
	}
	if !strings.Contains(out, "members:     120") || !strings.Contains(out, "history:     false") {
		t.Errorf("snapshot info output:\n%s", out)
	}

	out, err = execute(t, "snapshot", "verify", snapPath)
	if err != nil {
		t.Fatalf("snapshot verify failed: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "OK:") {
		t.Errorf("verify output:\n%s", out)
	}
}

func TestSnapshotVerifyCmd_Corrupt(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "bad.json.gz")
	if err := os.WriteFile(path, []byte("not a snapshot\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "snapshot", "verify", path, "--json")
	if err != nil {
		t.Fatalf("--json verify should report failures in the output, got %v", err)
	}
	if !strings.Contains(out, `"valid":false`) {
		t.Errorf("output = %s", out)
	}

	if _, err := execute(t, "snapshot", "verify", path); err == nil {
		t.Error("verify of a corrupt file should fail")
	}
}
