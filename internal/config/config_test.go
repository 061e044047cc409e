package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Network.Retry != DefaultRetry {
		t.Errorf("Retry = %d, want default %d", cfg.Network.Retry, DefaultRetry)
	}
	if cfg.Base.Prefix == "" {
		t.Error("expected a non-empty default prefix")
	}
}

func TestLoadFromParsesMirrorListAndBase(t *testing.T) {
	path := writeConfigFile(t, `
mirror_list = [
  { url = "https://ghcr.io/v2/homebrew/core", type = "ghcr" },
  { url = "https://example.org/bottles", type = "bottle" },
]
[base]
cache = "/tmp/pacbrew-cache"
prefix = "/tmp/pacbrew-prefix"
arch = "arm64_sonoma"
[network]
retry = 3
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if len(cfg.MirrorList) != 2 {
		t.Fatalf("expected 2 mirrors, got %d", len(cfg.MirrorList))
	}
	if cfg.MirrorList[0].Type != "ghcr" || cfg.MirrorList[1].Type != "bottle" {
		t.Errorf("unexpected mirror types: %+v", cfg.MirrorList)
	}
	if cfg.Base.Cache != "/tmp/pacbrew-cache" {
		t.Errorf("Cache = %q", cfg.Base.Cache)
	}
	if cfg.Base.Arch != "arm64_sonoma" {
		t.Errorf("Arch = %q", cfg.Base.Arch)
	}
	if cfg.Network.Retry != 3 {
		t.Errorf("Retry = %d, want 3", cfg.Network.Retry)
	}
}

func TestLoadFromDefaultsLocalOptUnderPrefix(t *testing.T) {
	path := writeConfigFile(t, `
[base]
cache = "/tmp/pacbrew-cache"
prefix = "/tmp/pacbrew-prefix"
arch = "arm64_sonoma"
[network]
retry = 5
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	want := filepath.Join("/tmp/pacbrew-prefix", "local", "opt")
	if cfg.Base.LocalOpt != want {
		t.Errorf("LocalOpt = %q, want %q", cfg.Base.LocalOpt, want)
	}
}

func TestLoadFromRejectsUnknownMirrorType(t *testing.T) {
	path := writeConfigFile(t, `
mirror_list = [ { url = "https://example.org", type = "ftp" } ]
[base]
cache = "/tmp/c"
prefix = "/tmp/p"
arch = "arm64"
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if _, err := cfg.Mirrors(); err == nil {
		t.Error("expected an error for an unknown mirror type")
	}
}

func TestLoadFromMalformedTOMLFails(t *testing.T) {
	path := writeConfigFile(t, `this is not [ valid toml`)
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected a parse error for malformed TOML")
	}
}
