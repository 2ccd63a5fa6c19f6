package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type validatedConfig struct {
	Port int `yaml:"port"`
}

func (c *validatedConfig) Validate() error {
	if c.Port <= 0 {
		return os.ErrInvalid
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "name: dagaz\nport: 9090\n")
	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "dagaz" || cfg.Port != 9090 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_CONFIG_NAME", "from-env")
	path := writeFile(t, "name: ${TEST_CONFIG_NAME}\n")
	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestLoad_RunsValidator(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	var cfg validatedConfig
	err := Load(path, &cfg)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaults_FallsBack(t *testing.T) {
	fallback := writeFile(t, "name: fallback\n")
	var cfg testConfig
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	if err := LoadWithDefaults(missing, fallback, &cfg); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Name != "fallback" {
		t.Errorf("name = %q", cfg.Name)
	}
}
