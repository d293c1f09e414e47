package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("TEST_NEO4J_URI", "bolt://graph:7687")

	path := filepath.Join(t.TempDir(), "cfg.json")
	content := `{
		"server": {"port": 9090},
		"database": {
			"neo4j": {
				"uri": "${TEST_NEO4J_URI:bolt://localhost:7687}",
				"user": "${TEST_NEO4J_USER:neo4j}"
			}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Neo4j.URI != "bolt://graph:7687" {
		t.Errorf("uri = %q, want env value", cfg.Database.Neo4j.URI)
	}
	if cfg.Database.Neo4j.User != "neo4j" {
		t.Errorf("user = %q, want default", cfg.Database.Neo4j.User)
	}
}

func TestLoadDefaultPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/cfg.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
