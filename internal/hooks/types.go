package hooks

// Config is the top-level configuration for hooks loaded from .roundtable.hooks.yml.
type Config struct {
	Version int         `yaml:"version"`
	Hooks   HooksConfig `yaml:"hooks"`
}

// HooksConfig contains all hook configurations.
type HooksConfig struct {
	// RoundStart hooks run before each round. Piped output becomes extra
	// context in that round's prompts.
	RoundStart []*HookConfig `yaml:"round_start"`
	// SessionComplete hooks run once the dialogue has completed.
	SessionComplete []*HookConfig `yaml:"session_complete"`
}

// HookConfig defines a single hook's configuration.
type HookConfig struct {
	Command    string `yaml:"command"`
	Timeout    int    `yaml:"timeout"`     // seconds, default 30
	PipeOutput bool   `yaml:"pipe_output"` // include stdout in the prompt context
}

// DefaultTimeout is the default timeout for hook execution in seconds.
const DefaultTimeout = 30
