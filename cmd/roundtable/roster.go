package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/editor"
	"github.com/mark3labs/roundtable/internal/render"
	"github.com/mark3labs/roundtable/internal/roster"
	"github.com/spf13/cobra"
)

var rosterFlags struct {
	path  string
	force bool
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage the participant roster",
	Long: `Manage the roster file listing the dialogue's participants.

A running dialogue picks up roster edits at the next round boundary.`,
}

var rosterInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default roster file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := rosterPath()
		if err != nil {
			return err
		}
		if !rosterFlags.force && fileExists(path) {
			return fmt.Errorf("roster already exists at %s\n\nUse --force to overwrite", path)
		}
		if err := roster.Default().Write(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Roster written to: %s\n", path)
		return nil
	},
}

var rosterShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the roster in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := rosterPath()
		if err != nil {
			return err
		}
		r, err := roster.LoadOrDefault(path)
		if err != nil {
			return err
		}

		out := render.NewPrinter(cmd.OutOrStdout(), os.Environ(), 100)
		source := path
		if !fileExists(path) {
			source = "built-in default"
		}
		title := r.Name
		if title == "" {
			title = "Roster"
		}
		out.Println(render.Title(title) + render.Muted(" ("+source+")"))
		if r.Description != "" {
			out.Println(render.Muted(r.Description))
		}
		for _, p := range r.Participants {
			out.Println(fmt.Sprintf("  %s  %s %s", p.ID, p.Name, render.Muted(p.Specialty)))
		}
		return nil
	},
}

var rosterEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the roster in $EDITOR",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := rosterPath()
		if err != nil {
			return err
		}
		if !fileExists(path) {
			if err := roster.Default().Write(path); err != nil {
				return err
			}
		}

		c, err := editor.Command("roundtable", path)
		if err != nil {
			return fmt.Errorf("failed to prepare editor: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("editor failed: %w", err)
		}

		r, err := roster.Load(path)
		if err != nil {
			return fmt.Errorf("roster is invalid after editing: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Roster saved with %d participants.\n", len(r.Participants))
		return nil
	},
}

func init() {
	rosterCmd.PersistentFlags().StringVar(&rosterFlags.path, "file", "", "Roster file (default: from config)")
	rosterInitCmd.Flags().BoolVarP(&rosterFlags.force, "force", "f", false, "Overwrite an existing roster")

	rosterCmd.AddCommand(rosterInitCmd)
	rosterCmd.AddCommand(rosterShowCmd)
	rosterCmd.AddCommand(rosterEditCmd)
}

func rosterPath() (string, error) {
	if rosterFlags.path != "" {
		return rosterFlags.path, nil
	}
	settings, err := loadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return settings.Roster, nil
}
