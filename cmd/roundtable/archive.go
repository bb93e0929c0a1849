package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/roundtable/internal/archive"
	"github.com/mark3labs/roundtable/internal/render"
	"github.com/spf13/cobra"
)

var archiveFlags struct {
	limit int
	json  bool
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Browse saved sessions",
	Long: `Browse sessions saved with --save, the TUI save key or the MCP save tool.

Saved sessions live in a SQLite database under the data directory.`,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(a *archive.Archive, out *render.Printer) error {
			entries, err := a.List(cmd.Context(), archiveFlags.limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				out.Println(render.Muted("No saved sessions."))
				return nil
			}
			for _, e := range entries {
				outcome := "no outcome"
				if e.HasOutcome {
					outcome = "outcome"
				}
				out.Println(fmt.Sprintf("%s  %s  %s", render.Title(e.ID), e.SavedAt.Local().Format(time.DateTime), e.Topic))
				out.Println(render.Muted(fmt.Sprintf("    %s · %s · %d rounds · %d messages · %s", e.Session, e.Mode, e.Rounds, e.Messages, outcome)))
				if line := render.TallyLine(e.Tally); line != "" {
					out.Println("    " + line)
				}
			}
			return nil
		})
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(a *archive.Archive, out *render.Printer) error {
			_, snap, err := a.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if archiveFlags.json {
				if snap.Outcome == nil {
					return fmt.Errorf("saved session %s has no outcome", args[0])
				}
				text, err := render.OutcomeJSON(snap.Outcome)
				if err != nil {
					return err
				}
				out.Println(render.HighlightJSON(text))
				return nil
			}
			out.Transcript(snap)
			out.Summary(snap.Tally)
			return nil
		})
	},
}

var archiveDiffCmd = &cobra.Command{
	Use:   "diff <old-id> <new-id>",
	Short: "Diff the outcome records of two saved sessions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(a *archive.Archive, out *render.Printer) error {
			_, oldSnap, err := a.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			_, newSnap, err := a.Get(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			diff := render.OutcomeDiff(args[0], args[1], oldSnap.Outcome, newSnap.Outcome)
			if diff == "" {
				out.Println(render.Muted("Outcomes are identical."))
				return nil
			}
			out.Println(render.ColorizeDiff(diff))
			return nil
		})
	},
}

var archiveDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(a *archive.Archive, out *render.Printer) error {
			if err := a.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			out.Println(fmt.Sprintf("Deleted %s", args[0]))
			return nil
		})
	},
}

func init() {
	archiveListCmd.Flags().IntVarP(&archiveFlags.limit, "limit", "l", 20, "Maximum number of sessions to list, 0 for all")
	archiveShowCmd.Flags().BoolVar(&archiveFlags.json, "json", false, "Print only the outcome record as JSON")

	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	archiveCmd.AddCommand(archiveDiffCmd)
	archiveCmd.AddCommand(archiveDeleteCmd)
}

// withArchive opens the configured archive for the duration of fn.
func withArchive(fn func(a *archive.Archive, out *render.Printer) error) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := archive.Open(settings.ArchivePath())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, render.NewPrinter(os.Stdout, os.Environ(), 100))
}
