package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points XDG_CONFIG_HOME and the working directory at fresh temp dirs
// and clears every environment variable Load reads.
func isolate(t *testing.T) (xdg, wd string) {
	t.Helper()
	xdg = t.TempDir()
	wd = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	for _, names := range envKeys {
		for _, name := range names {
			t.Setenv(name, "")
		}
	}

	origWd, _ := os.Getwd()
	if err := os.Chdir(wd); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return xdg, wd
}

func TestGlobalPath(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got, want := GlobalPath(), "/custom/config/roundtable/roundtable.yml"; got != want {
			t.Errorf("GlobalPath() = %v, want %v", got, want)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		got := GlobalPath()
		if !filepath.IsAbs(got) {
			t.Errorf("GlobalPath() should return absolute path, got %v", got)
		}
		if !strings.HasSuffix(got, filepath.Join(".config", "roundtable", "roundtable.yml")) {
			t.Errorf("unexpected global path %v", got)
		}
	})
}

func TestProjectPath(t *testing.T) {
	if got := ProjectPath(); got != "roundtable.yml" {
		t.Errorf("ProjectPath() = %v, want roundtable.yml", got)
	}
}

func TestExists(t *testing.T) {
	xdg, _ := isolate(t)

	if Exists() {
		t.Fatal("Exists() should be false with no config files")
	}

	if err := os.WriteFile("roundtable.yml", []byte("rounds: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !Exists() {
		t.Error("Exists() should be true with a project config")
	}
	_ = os.Remove("roundtable.yml")

	globalDir := filepath.Join(xdg, "roundtable")
	_ = os.MkdirAll(globalDir, 0755)
	if err := os.WriteFile(filepath.Join(globalDir, "roundtable.yml"), []byte("rounds: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !Exists() {
		t.Error("Exists() should be true with a global config")
	}
}

func TestLoad_NoConfig(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	d := Defaults()
	if cfg.Provider != d.Provider || cfg.Model != d.Model {
		t.Errorf("provider/model = %s/%s, want defaults", cfg.Provider, cfg.Model)
	}
	if cfg.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", cfg.Rounds)
	}
	if cfg.RealityCheckRound != 2 {
		t.Errorf("RealityCheckRound = %d, want 2", cfg.RealityCheckRound)
	}
	if cfg.Pacing != 1500*time.Millisecond {
		t.Errorf("Pacing = %v, want 1.5s", cfg.Pacing)
	}
	if cfg.Mode != "chat" {
		t.Errorf("Mode = %q, want chat", cfg.Mode)
	}
	if !cfg.AutoReact {
		t.Error("AutoReact should default to true")
	}
}

func TestLoad_Precedence(t *testing.T) {
	xdg, _ := isolate(t)

	globalDir := filepath.Join(xdg, "roundtable")
	_ = os.MkdirAll(globalDir, 0755)
	global := "model: global/model\nrounds: 5\nmode: hybrid\n"
	if err := os.WriteFile(filepath.Join(globalDir, "roundtable.yml"), []byte(global), 0644); err != nil {
		t.Fatal(err)
	}

	project := "rounds: 4\npacing: 250ms\n"
	if err := os.WriteFile("roundtable.yml", []byte(project), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ROUNDTABLE_MODE", "chat")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Model != "global/model" {
		t.Errorf("Model = %q, want value from global config", cfg.Model)
	}
	if cfg.Rounds != 4 {
		t.Errorf("Rounds = %d, project config should override global", cfg.Rounds)
	}
	if cfg.Pacing != 250*time.Millisecond {
		t.Errorf("Pacing = %v, want 250ms", cfg.Pacing)
	}
	if cfg.Mode != "chat" {
		t.Errorf("Mode = %q, env should override config files", cfg.Mode)
	}
}

func TestLoad_APIKeyFallbacks(t *testing.T) {
	isolate(t)

	t.Setenv("OPENROUTER_API_KEY", "sk-or-fallback")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "sk-or-fallback" {
		t.Errorf("APIKey = %q, want OPENROUTER_API_KEY value", cfg.APIKey)
	}

	t.Setenv("ROUNDTABLE_API_KEY", "sk-primary")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "sk-primary" {
		t.Errorf("APIKey = %q, ROUNDTABLE_API_KEY should win", cfg.APIKey)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	// godotenv sets process env directly; make sure it is cleared afterwards.
	t.Setenv("ROUNDTABLE_ROUNDS", "")
	_ = os.Unsetenv("ROUNDTABLE_ROUNDS")

	if err := os.WriteFile(".env", []byte("ROUNDTABLE_ROUNDS=7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Rounds != 7 {
		t.Errorf("Rounds = %d, want 7 from .env", cfg.Rounds)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	isolate(t)

	if err := os.WriteFile("roundtable.yml", []byte("mode: freestyle\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("Load() should reject an unknown mode")
	}
}

func TestWriteProject(t *testing.T) {
	isolate(t)

	cfg := Defaults()
	cfg.Model = "anthropic/claude-sonnet-4"
	cfg.APIKey = "secret"
	if err := WriteProject(cfg); err != nil {
		t.Fatalf("WriteProject() error = %v", err)
	}

	data, err := os.ReadFile("roundtable.yml")
	if err != nil {
		t.Fatalf("reading written config: %v", err)
	}
	if !strings.Contains(string(data), "anthropic/claude-sonnet-4") {
		t.Error("written config should contain the model")
	}
	if strings.Contains(string(data), "secret") {
		t.Error("API key must not be written to disk")
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Model != cfg.Model {
		t.Errorf("round-tripped Model = %q", loaded.Model)
	}
}

func TestWriteGlobal(t *testing.T) {
	xdg, _ := isolate(t)

	if err := WriteGlobal(Defaults()); err != nil {
		t.Fatalf("WriteGlobal() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(xdg, "roundtable", "roundtable.yml")); err != nil {
		t.Errorf("global config not written: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"opencode provider", func(c *Config) { c.Provider = "opencode" }, ""},
		{"opencode acp provider", func(c *Config) { c.Provider = "opencode-acp" }, ""},
		{"bad provider", func(c *Config) { c.Provider = "acme" }, "invalid provider"},
		{"bad mode", func(c *Config) { c.Mode = "debate" }, "invalid mode"},
		{"zero rounds", func(c *Config) { c.Rounds = 0 }, "rounds must be"},
		{"negative reality check", func(c *Config) { c.RealityCheckRound = -1 }, "reality_check_round"},
		{"reality check disabled", func(c *Config) { c.RealityCheckRound = 0 }, ""},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"negative pacing", func(c *Config) { c.Pacing = -time.Second }, "pacing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestArchivePath(t *testing.T) {
	cfg := Defaults()
	if got, want := cfg.ArchivePath(), filepath.Join(".roundtable", "archive.db"); got != want {
		t.Errorf("ArchivePath() = %v, want %v", got, want)
	}
	cfg.Archive = "/var/lib/roundtable.db"
	if got := cfg.ArchivePath(); got != "/var/lib/roundtable.db" {
		t.Errorf("absolute ArchivePath() = %v", got)
	}
}
