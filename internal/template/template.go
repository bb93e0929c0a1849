package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Variables holds the data to be injected into template placeholders.
type Variables struct {
	Topic        string // Dialogue topic
	Name         string // Speaking participant name
	Specialty    string // Speaking participant specialty
	Role         string // Role category derived from the specialty
	Backstory    string // Speaking participant backstory
	Round        int    // Current round (1-based)
	MaxRounds    int    // Total rounds
	Participants string // Formatted roster
	Transcript   string // Formatted transcript so far
	Hooks        string // round_start hook output
	Extra        string // Extra instructions
}

// Render replaces {{variable}} placeholders in template with actual values.
// Supports the following variables:
// - {{topic}} - Dialogue topic
// - {{name}}, {{specialty}}, {{role}}, {{backstory}} - Speaking participant
// - {{round}}, {{max_rounds}} - Round position
// - {{participants}} - Formatted roster
// - {{transcript}} - Formatted transcript (empty if none)
// - {{hooks}} - Hook output (empty if none)
// - {{extra}} - Extra instructions (empty if none)
func Render(template string, vars Variables) string {
	result := template

	replacements := map[string]string{
		"{{topic}}":        vars.Topic,
		"{{name}}":         vars.Name,
		"{{specialty}}":    vars.Specialty,
		"{{role}}":         vars.Role,
		"{{backstory}}":    vars.Backstory,
		"{{round}}":        strconv.Itoa(vars.Round),
		"{{max_rounds}}":   strconv.Itoa(vars.MaxRounds),
		"{{participants}}": vars.Participants,
		"{{transcript}}":   vars.Transcript,
		"{{hooks}}":        vars.Hooks,
		"{{extra}}":        vars.Extra,
	}

	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result
}

// LoadFromFile loads a template from a file.
// If the file doesn't exist or can't be read, returns an error.
func LoadFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	return string(data), nil
}

// GetTemplate returns the template content.
// If customPath is non-empty, loads from that file. Otherwise returns fallback.
func GetTemplate(customPath, fallback string) (string, error) {
	if customPath == "" {
		return fallback, nil
	}
	return LoadFromFile(customPath)
}

// Set groups the templates used by one dialogue session.
type Set struct {
	System    string
	Turn      string
	Synthesis string
}

// DefaultSet returns the embedded templates for the given mode ("chat" or "hybrid").
func DefaultSet(mode string) Set {
	turn := ChatTurnTemplate
	if mode == "hybrid" {
		turn = HybridTurnTemplate
	}
	return Set{
		System:    SystemTemplate,
		Turn:      turn,
		Synthesis: SynthesisTemplate,
	}
}

// LoadSet overlays custom template files from dir onto the defaults for mode.
// Recognized files: system.md, turn.md, synthesis.md. Missing files keep the default.
func LoadSet(dir, mode string) (Set, error) {
	set := DefaultSet(mode)
	if dir == "" {
		return set, nil
	}

	for name, dst := range map[string]*string{
		"system.md":    &set.System,
		"turn.md":      &set.Turn,
		"synthesis.md": &set.Synthesis,
	} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		content, err := LoadFromFile(path)
		if err != nil {
			return Set{}, err
		}
		*dst = content
	}
	return set, nil
}

// Section wraps content under a markdown heading, or returns "" for empty content
// so the heading is omitted from the rendered prompt.
func Section(title, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return fmt.Sprintf("## %s\n%s\n", title, content)
}
