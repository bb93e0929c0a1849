package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mark3labs/roundtable/internal/config"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/orchestrator"
	"github.com/mark3labs/roundtable/internal/render"
	"github.com/mark3labs/roundtable/internal/session"
	"github.com/spf13/cobra"
)

var transcriptFlags struct {
	name       string
	export     string
	width      int
	synthesize bool
	templates  string
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Replay a recorded session",
	Long: `Replay a recorded session from the event store.

Without --name the recorded sessions are listed. With --export the transcript
is also written as markdown into the given directory. With --synthesize a
finished session that has no outcome yet gets one, recorded to the session.`,
	RunE: runTranscript,
}

func init() {
	transcriptCmd.Flags().StringVarP(&transcriptFlags.name, "name", "n", "", "Session name")
	transcriptCmd.Flags().StringVarP(&transcriptFlags.export, "export", "e", "", "Write the transcript as markdown into this directory")
	transcriptCmd.Flags().IntVarP(&transcriptFlags.width, "width", "w", 100, "Render width")
	transcriptCmd.Flags().BoolVar(&transcriptFlags.synthesize, "synthesize", false, "Synthesize the outcome of a finished session that has none")
	transcriptCmd.Flags().StringVar(&transcriptFlags.templates, "templates", "", "Directory with custom prompt templates")
}

func runTranscript(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, cleanup, err := openStore(settings.DataDir)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	out := render.NewPrinter(cmd.OutOrStdout(), os.Environ(), transcriptFlags.width)

	if transcriptFlags.name == "" {
		names, err := store.ListSessions(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			out.Println(render.Muted("No recorded sessions."))
			return nil
		}
		for _, name := range names {
			out.Println(name)
		}
		return nil
	}

	state, err := store.LoadState(ctx, transcriptFlags.name)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if state.Topic == "" && len(state.Messages) == 0 {
		return fmt.Errorf("session '%s' has no recorded events", transcriptFlags.name)
	}

	snap := state.Snapshot()
	if transcriptFlags.synthesize {
		outcome, err := synthesizeStored(cmd.Context(), settings, store, snap)
		if err != nil {
			return fmt.Errorf("failed to synthesize outcome: %w", err)
		}
		snap.Outcome = &outcome
	}
	out.Transcript(snap)
	out.Summary(snap.Tally)

	if transcriptFlags.export != "" {
		path, err := render.Export(transcriptFlags.export, snap, time.Now())
		if err != nil {
			return fmt.Errorf("failed to export transcript: %w", err)
		}
		out.Println(render.Muted("Exported to " + path))
	}
	return nil
}

func synthesizeStored(ctx context.Context, settings *config.Config, store *session.Store, snap dialogue.Snapshot) (dialogue.Outcome, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return dialogue.Outcome{}, err
	}
	gen, err := orchestrator.NewGenerator(settings, workDir)
	if err != nil {
		return dialogue.Outcome{}, err
	}
	if c, ok := gen.(io.Closer); ok {
		defer c.Close()
	}
	return orchestrator.SynthesizeStored(ctx, settings, transcriptFlags.templates, snap, gen, store)
}
