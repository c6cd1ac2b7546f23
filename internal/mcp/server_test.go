package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/bucketsim/internal/store"
)

func TestNewServer(t *testing.T) {
	tmpDir := t.TempDir()

	server, err := NewServer(&Config{
		Name:    "test-server",
		Version: "v1.0.0",
		Root:    tmpDir,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.store == nil {
		t.Error("Server.store is nil")
	}
	if server.base == nil {
		t.Error("Server.base is nil")
	}
	if server.root != tmpDir {
		t.Errorf("Server.root = %q, want %q", server.root, tmpDir)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ".bucketsim", "results.db")); err != nil {
		t.Errorf("results database not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".bucketsim", AuditFile)); err != nil {
		t.Errorf("audit log not created: %v", err)
	}
}

func TestNewServer_InjectedStore(t *testing.T) {
	mem := store.NewInMemoryResultStore()
	server, err := NewServer(&Config{Name: "test", Version: "dev", Root: t.TempDir(), Store: mem})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	if server.store != mem {
		t.Error("injected store not used")
	}
}
