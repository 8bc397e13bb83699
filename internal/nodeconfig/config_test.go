package nodeconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "meshnode.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
network:
  network_id: test-net
identity:
  address: node-a
switchboard:
  url: http://localhost:8090
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.PresenceBroadcastInterval.Milliseconds() != 5000 {
		t.Fatalf("PresenceBroadcastInterval = %v, want 5s default", cfg.Network.PresenceBroadcastInterval)
	}
}

func TestLoadMissingNetworkIDFails(t *testing.T) {
	path := writeConfig(t, `
identity:
  address: node-a
switchboard:
  url: http://localhost:8090
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing network_id")
	}
}

func TestLoadRejectsWorldReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshnode.yaml")
	if err := os.WriteFile(path, []byte("network:\n  network_id: x\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected permission error for world-readable config")
	}
}
