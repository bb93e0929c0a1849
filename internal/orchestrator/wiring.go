package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/mark3labs/roundtable/internal/agent"
	"github.com/mark3labs/roundtable/internal/config"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/hooks"
	"github.com/mark3labs/roundtable/internal/llm"
	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/mark3labs/roundtable/internal/roster"
	"github.com/mark3labs/roundtable/internal/template"
)

// NewGenerator builds the text generation backend selected by settings.
func NewGenerator(settings *config.Config, workDir string) (dialogue.Generator, error) {
	switch settings.Provider {
	case "opencode", "opencode-acp":
		model := settings.Model
		if model == config.Defaults().Model {
			// The OpenRouter default means nothing to opencode; let it pick.
			model = ""
		}
		rc := agent.RunnerConfig{Model: model, WorkDir: workDir}
		if settings.Provider == "opencode-acp" {
			return agent.NewACPRunner(rc), nil
		}
		return agent.NewRunner(rc), nil
	default:
		client, err := llm.New(llm.Config{
			BaseURL:     settings.BaseURL,
			APIKey:      settings.APIKey,
			Model:       settings.Model,
			Temperature: settings.Temperature,
			MaxTokens:   settings.MaxTokens,
			Title:       "roundtable",
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (o *Orchestrator) generator() (dialogue.Generator, error) {
	if o.cfg.Generator != nil {
		return o.cfg.Generator, nil
	}
	return NewGenerator(o.cfg.Settings, o.cfg.WorkDir)
}

// dialogueConfig maps settings onto the controller configuration.
func (o *Orchestrator) dialogueConfig() (dialogue.Config, error) {
	s := o.cfg.Settings
	mode, err := dialogue.ParseMode(s.Mode)
	if err != nil {
		return dialogue.Config{}, err
	}
	set, err := template.LoadSet(o.cfg.TemplateDir, string(mode))
	if err != nil {
		return dialogue.Config{}, fmt.Errorf("failed to load templates: %w", err)
	}
	return dialogue.Config{
		Session:           o.cfg.SessionName,
		Mode:              mode,
		MaxRounds:         s.Rounds,
		RealityCheckRound: s.RealityCheckRound,
		Pacing:            s.Pacing,
		TurnTimeout:       s.TurnTimeout,
		Concurrency:       s.Concurrency,
		AutoReact:         s.AutoReact,
		Templates:         set,
		RoundStart:        o.roundStart,
	}, nil
}

// loadRoster sets the participants and, when the roster comes from a file,
// watches it so edits apply from the next round on.
func (o *Orchestrator) loadRoster() error {
	r, err := roster.LoadOrDefault(o.cfg.RosterPath)
	if err != nil {
		return err
	}
	if err := o.ctrl.SetParticipants(o.ctx, r.Participants); err != nil {
		return fmt.Errorf("roster %s: %w", o.cfg.RosterPath, err)
	}

	if _, err := os.Stat(o.cfg.RosterPath); errors.Is(err, fs.ErrNotExist) {
		logger.Info("No roster at %s, using the default product team", o.cfg.RosterPath)
		return nil
	}
	w, err := roster.NewWatcher(o.cfg.RosterPath, func(r *roster.Roster) {
		logger.Info("Roster %s changed: %d participants from the next round", o.cfg.RosterPath, len(r.Participants))
	})
	if err != nil {
		return fmt.Errorf("failed to create roster watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		logger.Warn("Roster hot reload disabled: %v", err)
		return nil
	}
	o.watcher = w
	return nil
}

// roundStart runs before each round's roster snapshot: it applies a pending
// roster edit and returns the round_start hook output for the prompts.
func (o *Orchestrator) roundStart(ctx context.Context, round int) string {
	if o.watcher != nil {
		if r, ok := o.watcher.Pending(); ok {
			if err := o.ctrl.SetParticipants(ctx, r.Participants); err != nil {
				logger.Warn("Roster change not applied: %v", err)
			}
		}
	}

	if o.hooks == nil || len(o.hooks.Hooks.RoundStart) == 0 {
		return ""
	}
	output, err := hooks.ExecuteAllPiped(ctx, o.hooks.Hooks.RoundStart, o.cfg.WorkDir, hooks.Variables{
		Session: o.cfg.SessionName,
		Topic:   o.cfg.Topic,
		Round:   round,
	})
	if err != nil {
		logger.Warn("round_start hooks failed in round %d: %v", round, err)
		return ""
	}
	return output
}

func (o *Orchestrator) runCompleteHooks(round int) {
	if o.hooks == nil || len(o.hooks.Hooks.SessionComplete) == 0 {
		return
	}
	err := hooks.ExecuteAll(o.ctx, o.hooks.Hooks.SessionComplete, o.cfg.WorkDir, hooks.Variables{
		Session: o.cfg.SessionName,
		Topic:   o.cfg.Topic,
		Round:   round,
	})
	if err != nil {
		logger.Warn("session_complete hooks failed: %v", err)
	}
}
