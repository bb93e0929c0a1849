// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for roundtable.
type Config struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	DataDir           string        `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile           string        `mapstructure:"log_file" yaml:"log_file"`
	Mode              string        `mapstructure:"mode" yaml:"mode"`
	Rounds            int           `mapstructure:"rounds" yaml:"rounds"`
	RealityCheckRound int           `mapstructure:"reality_check_round" yaml:"reality_check_round"`
	Pacing            time.Duration `mapstructure:"pacing" yaml:"pacing"`
	TurnTimeout       time.Duration `mapstructure:"turn_timeout" yaml:"turn_timeout"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	AutoReact         bool          `mapstructure:"auto_react" yaml:"auto_react"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Roster            string        `mapstructure:"roster" yaml:"roster"`
	Archive           string        `mapstructure:"archive" yaml:"archive"`
}

// envKeys maps config keys to the environment variables bound to them.
// The first variable wins when several are set.
var envKeys = map[string][]string{
	"provider":            {"ROUNDTABLE_PROVIDER"},
	"model":               {"ROUNDTABLE_MODEL", "AI_MODEL"},
	"base_url":            {"ROUNDTABLE_BASE_URL"},
	"api_key":             {"ROUNDTABLE_API_KEY", "OPENROUTER_API_KEY"},
	"temperature":         {"ROUNDTABLE_TEMPERATURE"},
	"max_tokens":          {"ROUNDTABLE_MAX_TOKENS"},
	"data_dir":            {"ROUNDTABLE_DATA_DIR"},
	"log_level":           {"ROUNDTABLE_LOG_LEVEL"},
	"log_file":            {"ROUNDTABLE_LOG_FILE"},
	"mode":                {"ROUNDTABLE_MODE"},
	"rounds":              {"ROUNDTABLE_ROUNDS"},
	"reality_check_round": {"ROUNDTABLE_REALITY_CHECK_ROUND"},
	"pacing":              {"ROUNDTABLE_PACING"},
	"turn_timeout":        {"ROUNDTABLE_TURN_TIMEOUT"},
	"concurrency":         {"ROUNDTABLE_CONCURRENCY"},
	"auto_react":          {"ROUNDTABLE_AUTO_REACT"},
	"headless":            {"ROUNDTABLE_HEADLESS"},
	"roster":              {"ROUNDTABLE_ROSTER"},
	"archive":             {"ROUNDTABLE_ARCHIVE"},
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Provider:          "openrouter",
		Model:             "openrouter/auto",
		BaseURL:           "https://openrouter.ai/api/v1",
		Temperature:       0.7,
		MaxTokens:         1024,
		DataDir:           ".roundtable",
		LogLevel:          "info",
		Mode:              "chat",
		Rounds:            3,
		RealityCheckRound: 2,
		Pacing:            1500 * time.Millisecond,
		Concurrency:       1,
		AutoReact:         true,
		Roster:            "roundtable.roster.yml",
		Archive:           "archive.db",
	}
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars (.env included) > project config > XDG global config > defaults
func Load() (*Config, error) {
	// .env is optional; existing environment variables are never overridden.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("roundtable")

	d := Defaults()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("api_key", "")
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("mode", d.Mode)
	v.SetDefault("rounds", d.Rounds)
	v.SetDefault("reality_check_round", d.RealityCheckRound)
	v.SetDefault("pacing", d.Pacing)
	v.SetDefault("turn_timeout", d.TurnTimeout)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("auto_react", d.AutoReact)
	v.SetDefault("headless", false)
	v.SetDefault("roster", d.Roster)
	v.SetDefault("archive", d.Archive)

	v.SetEnvPrefix("ROUNDTABLE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, names := range envKeys {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the dialogue engine cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openrouter", "opencode", "opencode-acp":
	default:
		return fmt.Errorf("invalid provider %q (must be openrouter, opencode or opencode-acp)", c.Provider)
	}
	switch c.Mode {
	case "chat", "hybrid":
	default:
		return fmt.Errorf("invalid mode %q (must be chat or hybrid)", c.Mode)
	}
	if c.Rounds < 1 {
		return fmt.Errorf("rounds must be >= 1, got %d", c.Rounds)
	}
	if c.RealityCheckRound < 0 {
		return fmt.Errorf("reality_check_round must be >= 0, got %d", c.RealityCheckRound)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.Pacing < 0 {
		return fmt.Errorf("pacing must not be negative")
	}
	return nil
}

// ArchivePath resolves the archive database location inside the data directory
// unless an absolute path was configured.
func (c *Config) ArchivePath() string {
	if filepath.IsAbs(c.Archive) {
		return c.Archive
	}
	return filepath.Join(c.DataDir, c.Archive)
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/roundtable/roundtable.yml or $XDG_CONFIG_HOME/roundtable/roundtable.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "roundtable", "roundtable.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "roundtable", "roundtable.yml")
}

// ProjectPath returns the project-local config path.
func ProjectPath() string {
	return "roundtable.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return write(path, cfg)
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	return write(ProjectPath(), cfg)
}

func write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
