package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/roundtable/internal/config"
	"github.com/spf13/cobra"
)

var setupFlags struct {
	project bool
	force   bool
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create roundtable configuration file",
	Long: `Create a roundtable configuration file with sensible defaults.

By default, creates a global config at ~/.config/roundtable/roundtable.yml.
Use --project to create a project-local config in the current directory.
The API key is never written; set ROUNDTABLE_API_KEY or OPENROUTER_API_KEY
(a .env file works too).`,
	// Skips config loading so a broken config can be replaced.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runSetup,
}

func init() {
	setupCmd.Flags().BoolVarP(&setupFlags.project, "project", "p", false, "Create config in current directory instead of global location")
	setupCmd.Flags().BoolVarP(&setupFlags.force, "force", "f", false, "Overwrite existing config file")
}

func runSetup(cmd *cobra.Command, args []string) error {
	// Determine target path
	targetPath := config.GlobalPath()
	if setupFlags.project {
		targetPath = config.ProjectPath()
	}

	// Check if config already exists
	if !setupFlags.force && fileExists(targetPath) {
		return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", targetPath)
	}

	cfg := config.Defaults()

	var err error
	if setupFlags.project {
		err = config.WriteProject(cfg)
	} else {
		err = config.WriteGlobal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Config written to: %s\n\n", targetPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Run 'roundtable roster init' to customize participants, then 'roundtable run --topic \"...\"'.")
	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
