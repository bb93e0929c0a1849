package main

import (
	"context"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/fang"
	"github.com/mark3labs/roundtable/internal/config"
	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/spf13/cobra"
)

const (
	logoText1 = "█▀█ █▀█ █ █ █▄ █ █▀▄ ▀█▀ ▄▀█ █▄▄ █   █▀▀"
	logoText2 = "█▀▄ █▄█ █▄█ █ ▀█ █▄▀  █  █▀█ █▄█ █▄▄ ██▄"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Turn-based multi-agent dialogue with stances, reactions and an outcome record",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		return logger.Configure(settings.LogLevel, settings.LogFile)
	},
}

// renderLogo renders the logo with a two-tone Catppuccin palette.
func renderLogo() string {
	top := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#cba6f7"))
	bottom := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	return strings.Join([]string{top.Render(logoText1), bottom.Render(logoText2)}, "\n")
}

// loadSettings loads the layered configuration once per invocation.
var loadSettings = func() func() (*config.Config, error) {
	var (
		cached *config.Config
		err    error
	)
	return func() (*config.Config, error) {
		if cached == nil && err == nil {
			cached, err = config.Load()
		}
		return cached, err
	}
}()

func init() {
	// Set Long description with logo
	rootCmd.Long = renderLogo() + `

roundtable runs a panel of AI personas through a fixed number of rounds on a
topic. Every reply is classified into a stance, participants react to each
other, and a synthesis step turns the finished transcript into an outcome
record: consensus, tensions, non-negotiables and decision options.

Sessions are event-sourced into embedded NATS JetStream, watched live in a
Bubbletea TUI, a web view or over MCP, and can be saved to a local archive.`

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(rosterCmd)
	rootCmd.AddCommand(setupCmd)
}
