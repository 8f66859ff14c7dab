package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte(`
broker = "tcp://localhost:1883"
page_size = 25

[[servers]]
id = "home"
name = "Home"
url = "https://music.example.com"
username = "alice"
password = "secret"

[aliases]
h = "home"

[defaults]
server = "home"
player = "kitchen"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != "tcp://localhost:1883" || cfg.PageSize != 25 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].BaseURL != "https://music.example.com" || cfg.Servers[0].Password != "secret" {
		t.Fatalf("unexpected servers %+v", cfg.Servers)
	}
	if cfg.Aliases["h"] != "home" || cfg.Defaults.Player != "kitchen" {
		t.Fatalf("expected aliases and defaults")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Aliases == nil || len(cfg.Servers) != 0 {
		t.Fatalf("expected empty config")
	}
}

func TestLoadFileRejectsIncompleteServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte(`
[[servers]]
id = "home"
username = "alice"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected error for server without url")
	}
}

func TestLoadUsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "sonic"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sonic", "config.toml"), []byte(`identity = "bob"`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Identity != "bob" {
		t.Fatalf("expected identity from xdg config, got %q", cfg.Identity)
	}
}
