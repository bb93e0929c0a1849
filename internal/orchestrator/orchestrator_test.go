package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/roundtable/internal/agent"
	"github.com/mark3labs/roundtable/internal/archive"
	"github.com/mark3labs/roundtable/internal/config"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const outcomeJSON = `{
  "consensus": ["Pilot with ten customers"],
  "tensions": [],
  "non_negotiables": ["Data stays in the EU"],
  "decision_options": []
}`

// recordingGenerator answers turns with a fixed line and synthesis with outcomeJSON,
// keeping every turn prompt.
type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (g *recordingGenerator) Generate(ctx context.Context, req dialogue.Request) (dialogue.Response, error) {
	if req.System == "" {
		return dialogue.Response{Text: outcomeJSON}, nil
	}
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()
	return dialogue.Response{Text: "I agree, let's pilot it."}, nil
}

func (g *recordingGenerator) turnPrompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func testSettings() *config.Config {
	s := config.Defaults()
	s.Rounds = 2
	s.Pacing = 0
	return s
}

func newHeadless(t *testing.T, dataDir, workDir string, gen dialogue.Generator, mutate func(*Config)) (*Orchestrator, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := Config{
		SessionName: "pilot",
		Topic:       "Launch in Germany?",
		DataDir:     dataDir,
		WorkDir:     workDir,
		RosterPath:  filepath.Join(workDir, "roundtable.roster.yml"),
		Headless:    true,
		Settings:    testSettings(),
		Generator:   gen,
		Output:      &out,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o, &out
}

func TestOrchestrator_HeadlessRun(t *testing.T) {
	dataDir, workDir := t.TempDir(), t.TempDir()
	gen := &recordingGenerator{}
	o, out := newHeadless(t, dataDir, workDir, gen, func(cfg *Config) {
		cfg.Synthesize = true
		cfg.Save = true
	})

	require.NoError(t, o.Start())
	require.NoError(t, o.Run())

	snap := o.Controller().Snapshot()
	require.NoError(t, o.Stop())
	require.NoError(t, o.Stop(), "stop is idempotent")

	// Default roster: four participants, two rounds, one reality check.
	assert.Len(t, gen.turnPrompts(), 8)
	assert.Len(t, snap.Messages, 9)
	assert.Equal(t, dialogue.StateComplete, snap.State)
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, []string{"Pilot with ten customers"}, snap.Outcome.Consensus)

	text := out.String()
	assert.Contains(t, text, "Roundtable: Launch in Germany?")
	assert.Contains(t, text, "Round 2")
	assert.Contains(t, text, "Saved as")
	assert.Contains(t, text, "agree 8")

	arch, err := archive.Open(filepath.Join(dataDir, "archive.db"))
	require.NoError(t, err)
	defer arch.Close()
	entries, err := arch.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pilot", entries[0].Session)
	assert.True(t, entries[0].HasOutcome)
}

func TestOrchestrator_RecordedSessionNeedsRestart(t *testing.T) {
	dataDir, workDir := t.TempDir(), t.TempDir()

	first, _ := newHeadless(t, dataDir, workDir, &recordingGenerator{}, nil)
	require.NoError(t, first.Start())
	require.NoError(t, first.Run())
	require.NoError(t, first.Stop())

	second, _ := newHeadless(t, dataDir, workDir, &recordingGenerator{}, nil)
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a transcript")
	require.NoError(t, second.Stop())

	third, _ := newHeadless(t, dataDir, workDir, &recordingGenerator{}, func(cfg *Config) {
		cfg.Restart = true
		cfg.Topic = "Launch in France?"
	})
	require.NoError(t, third.Start())
	require.NoError(t, third.Run())
	snap := third.Controller().Snapshot()
	require.NoError(t, third.Stop())

	assert.Equal(t, "Launch in France?", snap.Topic)
	assert.Len(t, snap.Messages, 9, "restart starts from an empty transcript")
}

func TestOrchestrator_RosterFileAndHooks(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("hooks need /bin/sh")
	}
	dataDir, workDir := t.TempDir(), t.TempDir()

	rosterYAML := `name: Duo
participants:
  - name: Ada Byron
    specialty: Tech Lead
  - name: Lin Chen
    specialty: Product Manager
`
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "roundtable.roster.yml"), []byte(rosterYAML), 0644))

	hooksYAML := `version: 1
hooks:
  round_start:
    - command: echo "Budget for round {{round}} is capped"
      pipe_output: true
  session_complete:
    - command: touch done.txt
`
	require.NoError(t, os.WriteFile(filepath.Join(workDir, ".roundtable.hooks.yml"), []byte(hooksYAML), 0644))

	gen := &recordingGenerator{}
	o, _ := newHeadless(t, dataDir, workDir, gen, nil)
	require.NoError(t, o.Start())
	require.NoError(t, o.Run())
	participants := o.Controller().Participants()
	require.NoError(t, o.Stop())

	require.Len(t, participants, 2)
	assert.Equal(t, "ada-byron", participants[0].ID)

	prompts := gen.turnPrompts()
	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[0], "Budget for round 1 is capped")
	assert.Contains(t, prompts[3], "Budget for round 2 is capped")

	_, err := os.Stat(filepath.Join(workDir, "done.txt"))
	assert.NoError(t, err, "session_complete hook ran")
}

func TestOrchestrator_InvalidMode(t *testing.T) {
	o, _ := newHeadless(t, t.TempDir(), t.TempDir(), &recordingGenerator{}, func(cfg *Config) {
		cfg.Settings.Mode = "debate"
	})
	err := o.Start()
	require.Error(t, err)
	require.NoError(t, o.Stop())
}

func TestNewGenerator(t *testing.T) {
	t.Run("opencode", func(t *testing.T) {
		s := config.Defaults()
		s.Provider = "opencode"
		gen, err := NewGenerator(s, t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &agent.Runner{}, gen)
	})

	t.Run("opencode acp", func(t *testing.T) {
		s := config.Defaults()
		s.Provider = "opencode-acp"
		gen, err := NewGenerator(s, t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &agent.ACPRunner{}, gen)
	})

	t.Run("openrouter needs a key", func(t *testing.T) {
		s := config.Defaults()
		s.APIKey = ""
		_, err := NewGenerator(s, "")
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "API key"))
	})

	t.Run("openrouter", func(t *testing.T) {
		s := config.Defaults()
		s.APIKey = "sk-test"
		gen, err := NewGenerator(s, "")
		require.NoError(t, err)
		assert.IsType(t, &llm.Client{}, gen)
	})
}

func TestSynthesizeStored(t *testing.T) {
	dataDir, workDir := t.TempDir(), t.TempDir()
	o, _ := newHeadless(t, dataDir, workDir, &recordingGenerator{}, nil)
	require.NoError(t, o.Start())
	require.NoError(t, o.Run())
	snap := o.Controller().Snapshot()
	require.NoError(t, o.Stop())
	require.Nil(t, snap.Outcome)

	settings := testSettings()

	t.Run("complete session without outcome", func(t *testing.T) {
		outcome, err := SynthesizeStored(context.Background(), settings, "", snap, &recordingGenerator{}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"Data stays in the EU"}, outcome.NonNegotiables)
	})

	t.Run("outcome already recorded", func(t *testing.T) {
		done := snap
		done.Outcome = &dialogue.Outcome{Consensus: []string{"x"}}
		_, err := SynthesizeStored(context.Background(), settings, "", done, &recordingGenerator{}, nil)
		assert.ErrorIs(t, err, dialogue.ErrOutcomeExists)
	})

	t.Run("empty session", func(t *testing.T) {
		empty := dialogue.Snapshot{Session: "pilot", Topic: "Launch in Germany?"}
		_, err := SynthesizeStored(context.Background(), settings, "", empty, &recordingGenerator{}, nil)
		assert.ErrorIs(t, err, dialogue.ErrNotComplete)
	})
}
