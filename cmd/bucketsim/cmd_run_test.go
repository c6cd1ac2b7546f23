package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/nvandessel/bucketsim/internal/models"
)

func TestNewRunCmd(t *testing.T) {
	cmd := newRunCmd()
	if cmd.Use != "run" {
		t.Errorf("Use = %q, want %q", cmd.Use, "run")
	}
	for _, flag := range []string{"members", "partitions", "skewed", "rounds", "seed", "workers", "alpha", "hash", "no-history", "save", "csv", "partition-csv", "snapshot"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("missing --%s flag", flag)
		}
	}
}

func TestApplyRunFlags(t *testing.T) {
	cmd := newRunCmd()
	if err := cmd.ParseFlags([]string{"--members", "250", "--skewed", "--seed", "18446744073709551615", "--hash", "sha256", "--no-history", "--alpha", "0.01"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	if err := applyRunFlags(cmd, cfg); err != nil {
		t.Fatalf("applyRunFlags() error = %v", err)
	}

	if cfg.Simulation.Members != 250 {
		t.Errorf("Members = %d, want 250", cfg.Simulation.Members)
	}
	if !cfg.Simulation.Skewed {
		t.Error("Skewed not applied")
	}
	if cfg.Simulation.Seed != 18446744073709551615 {
		t.Errorf("Seed = %d", cfg.Simulation.Seed)
	}
	if cfg.Hash.Algorithm != "sha256" {
		t.Errorf("Algorithm = %q", cfg.Hash.Algorithm)
	}
	if cfg.Simulation.RecordHistory {
		t.Error("--no-history not applied")
	}
	if cfg.Validation.Alpha != 0.01 {
		t.Errorf("Alpha = %g", cfg.Validation.Alpha)
	}
	// Unset flags keep the configured values.
	if cfg.Simulation.Rounds != config.Default().Simulation.Rounds {
		t.Errorf("Rounds = %d, want default", cfg.Simulation.Rounds)
	}
}

func TestRunCmd_ExampleScenario(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, "run", "--root", tmpDir, "--json",
		"--members", "1000", "--partitions", "2", "--rounds", "1", "--seed", "7")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var res runResult
	decodeJSON(t, out, &res)
	if res.Run.Members != 1000 || res.Run.Partitions != 2 || res.Run.Rounds != 1 {
		t.Errorf("run shape = %d/%d/%d, want 1000/2/1", res.Run.Members, res.Run.Partitions, res.Run.Rounds)
	}
	if res.Run.Seed != 7 {
		t.Errorf("Seed = %d, want 7", res.Run.Seed)
	}
	if res.Run.Algorithm != "md5" {
		t.Errorf("Algorithm = %q, want md5", res.Run.Algorithm)
	}
	total := 0
	for _, p := range res.Run.Weights {
		if p.Weight != 0.5 {
			t.Errorf("partition %s weight = %g, want 0.5", p.Label, p.Weight)
		}
		total += p.Members
	}
	if total != 1000 {
		t.Errorf("partition sizes sum to %d, want 1000", total)
	}
	if res.Saved {
		t.Error("run without --save reported saved")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".bucketsim", "results.db")); !os.IsNotExist(err) {
		t.Error("results database created without --save")
	}
}

func TestRunCmd_TextOutput(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, "run", "--root", tmpDir, "--members", "300", "--partitions", "3", "--skewed", "--rounds", "4", "--seed", "1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"300 in 3 skewed partitions", "Independence:", "Uniformity:", "Result:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	tests := []struct {
		name string
		args []string
	}{
		{"zero members", []string{"--members", "0"}},
		{"skewed single partition", []string{"--partitions", "1", "--skewed"}},
		{"unknown hash", []string{"--hash", "crc32"}},
		{"alpha out of range", []string{"--alpha", "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--root", tmpDir, "--rounds", "1"}, tt.args...)
			_, err := execute(t, args...)
			var cfgErr *models.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error = %v, want *ConfigurationError", err)
			}
		})
	}
}

func TestRunCmd_Exports(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	csvPath := filepath.Join(tmpDir, "members.csv")
	partCSVPath := filepath.Join(tmpDir, "partitions.csv")
	snapDir := filepath.Join(tmpDir, "snapshots")
	if err := os.MkdirAll(snapDir, 0755); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", "--root", tmpDir, "--json",
		"--members", "150", "--partitions", "2", "--rounds", "3", "--seed", "11",
		"--csv", csvPath, "--partition-csv", partCSVPath, "--snapshot", snapDir)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var res runResult
	decodeJSON(t, out, &res)

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 151 {
		t.Errorf("member CSV has %d lines, want 151", len(lines))
	}
	if !strings.HasPrefix(lines[0], "identity,partition,") {
		t.Errorf("member CSV header = %q", lines[0])
	}
	if _, err := os.Stat(partCSVPath); err != nil {
		t.Errorf("partition CSV not written: %v", err)
	}

	if filepath.Dir(res.Snapshot) != snapDir {
		t.Fatalf("snapshot path = %q, want inside %q", res.Snapshot, snapDir)
	}
	if _, err := execute(t, "snapshot", "verify", res.Snapshot); err != nil {
		t.Errorf("snapshot verify failed: %v", err)
	}
}
