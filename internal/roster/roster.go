// Package roster loads the participants of a roundtable from a YAML file.
package roster

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"gopkg.in/yaml.v3"
)

// DefaultFilename is the roster file looked up in the working directory.
const DefaultFilename = "roundtable.roster.yml"

// Roster models the on-disk roster schema.
type Roster struct {
	Name         string                 `yaml:"name,omitempty"`
	Description  string                 `yaml:"description,omitempty"`
	Participants []dialogue.Participant `yaml:"participants"`
}

// Default returns the built-in product team roster.
func Default() *Roster {
	return &Roster{
		Name:        "Product team",
		Description: "A cross-functional team reviewing a product decision.",
		Participants: []dialogue.Participant{
			{
				ID:        "maya",
				Name:      "Maya",
				Specialty: "Product Manager",
				Backstory: "Owns the roadmap and cares about user outcomes and business impact.",
			},
			{
				ID:        "theo",
				Name:      "Theo",
				Specialty: "Tech Lead",
				Backstory: "Has shipped and operated large systems; thinks in effort, dependencies and failure modes.",
			},
			{
				ID:        "ines",
				Name:      "Ines",
				Specialty: "UX Designer",
				Backstory: "Runs user research every week and pushes for the simplest flow that works.",
			},
			{
				ID:        "sam",
				Name:      "Sam",
				Specialty: "Risk and Compliance Analyst",
				Backstory: "Looks for what can go wrong: legal exposure, security, reputation and cost overruns.",
			},
		},
	}
}

// Load reads and validates a roster file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes and validates roster YAML. source names the input in errors.
func Parse(data []byte, source string) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("roster: parse %s: %w", source, err)
	}
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("roster: %s: %w", source, err)
	}
	r.normalize()
	return &r, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Roster, error) {
	r, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return r, err
}

// Write saves the roster as YAML, creating parent directories.
func (r *Roster) Write(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("roster: create %s: %w", dir, err)
		}
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("roster: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("roster: write %s: %w", path, err)
	}
	return nil
}

func (r *Roster) validate() error {
	if len(r.Participants) == 0 {
		return fmt.Errorf("at least one participant is required")
	}
	for i, p := range r.Participants {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("participants[%d].name is required", i)
		}
		if strings.TrimSpace(p.Specialty) == "" {
			return fmt.Errorf("participants[%d].specialty is required", i)
		}
	}
	return nil
}

// normalize trims fields and derives ids from names where missing. Ids stay unique.
func (r *Roster) normalize() {
	seen := make(map[string]int)
	for i := range r.Participants {
		p := &r.Participants[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Specialty = strings.TrimSpace(p.Specialty)
		p.Backstory = strings.TrimSpace(p.Backstory)

		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = slug.Make(p.Name)
		}
		if id == "" {
			id = "participant-" + strconv.Itoa(i+1)
		}
		seen[id]++
		if n := seen[id]; n > 1 {
			id = id + "-" + strconv.Itoa(n)
		}
		p.ID = id
	}
}
