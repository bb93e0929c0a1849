package orchestrator

import (
	"context"
	"fmt"

	"github.com/mark3labs/roundtable/internal/config"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/template"
)

// SynthesizeStored produces the outcome for a recorded session that finished
// without one. The snapshot is restored into an idle controller, so the usual
// rules apply: the session must have messages and no outcome yet. The outcome is
// recorded through rec when it is not nil.
func SynthesizeStored(ctx context.Context, settings *config.Config, templateDir string, snap dialogue.Snapshot, gen dialogue.Generator, rec dialogue.Recorder) (dialogue.Outcome, error) {
	mode := snap.Mode
	if mode == "" {
		m, err := dialogue.ParseMode(settings.Mode)
		if err != nil {
			return dialogue.Outcome{}, err
		}
		mode = m
	}
	set, err := template.LoadSet(templateDir, string(mode))
	if err != nil {
		return dialogue.Outcome{}, fmt.Errorf("failed to load templates: %w", err)
	}

	cfg := dialogue.DefaultConfig()
	cfg.Session = snap.Session
	cfg.Mode = mode
	cfg.TurnTimeout = settings.TurnTimeout
	cfg.Templates = set

	ctrl := dialogue.NewController(cfg, gen, rec)
	if err := ctrl.Restore(snap); err != nil {
		return dialogue.Outcome{}, err
	}
	return ctrl.Synthesize(ctx)
}
