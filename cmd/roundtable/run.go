package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gosimple/slug"
	"github.com/mark3labs/roundtable/internal/orchestrator"
	"github.com/spf13/cobra"
)

var runFlags struct {
	name        string
	topic       string
	roster      string
	templates   string
	mode        string
	rounds      int
	realityAt   int
	concurrency int
	pacing      time.Duration
	turnTimeout time.Duration
	headless    bool
	synthesize  bool
	save        bool
	mcp         bool
	serve       string
	dataDir     string
	model       string
	provider    string
	restart     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a dialogue on a topic",
	Long: `Run a dialogue on a topic with the configured roster.

Each round every participant takes one turn in roster order. Replies are
classified into stances, reactions are collected, and a reality check is
injected before the configured round. The session is recorded in embedded
NATS and shown in a TUI (unless --headless).

Configuration is loaded from multiple sources with the following precedence:
  CLI flags > Environment variables > Project config > Global config > Defaults`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.topic, "topic", "t", "", "Discussion topic (required)")
	f.StringVarP(&runFlags.name, "name", "n", "", "Session name (default: slug of the topic)")
	f.StringVar(&runFlags.roster, "roster", "", "Roster file (default: roundtable.roster.yml)")
	f.StringVar(&runFlags.templates, "templates", "", "Directory with system.md, turn.md and synthesis.md overrides")
	f.StringVar(&runFlags.mode, "mode", "", "Response mode: chat or hybrid")
	f.IntVarP(&runFlags.rounds, "rounds", "r", 0, "Number of rounds")
	f.IntVar(&runFlags.realityAt, "reality-check-round", 0, "Round that opens with a reality check, 0 disables it")
	f.IntVar(&runFlags.concurrency, "concurrency", 0, "Generation calls in flight per round")
	f.DurationVar(&runFlags.pacing, "pacing", 0, "Delay between turns")
	f.DurationVar(&runFlags.turnTimeout, "turn-timeout", 0, "Timeout for a single turn, 0 means none")
	f.BoolVar(&runFlags.headless, "headless", false, "Run without TUI (print turns to stdout)")
	f.BoolVar(&runFlags.synthesize, "synthesize", false, "Generate the outcome record when the dialogue completes")
	f.BoolVar(&runFlags.save, "save", false, "Save the finished session to the archive")
	f.BoolVar(&runFlags.mcp, "mcp", false, "Expose control tools over MCP (streamable HTTP on loopback)")
	f.StringVar(&runFlags.serve, "serve", "", "Serve the web view on this address (e.g. :8080)")
	f.StringVar(&runFlags.dataDir, "data-dir", "", "Data directory for NATS storage and the archive")
	f.StringVarP(&runFlags.model, "model", "m", "", "Model to use")
	f.StringVar(&runFlags.provider, "provider", "", "Backend: openrouter or opencode")
	f.BoolVar(&runFlags.restart, "restart", false, "Discard the session's transcript and start over")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runFlags.topic == "" {
		return fmt.Errorf("a topic is required (--topic)")
	}

	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags override everything else.
	flags := cmd.Flags()
	if flags.Changed("mode") {
		settings.Mode = runFlags.mode
	}
	if flags.Changed("rounds") {
		settings.Rounds = runFlags.rounds
	}
	if flags.Changed("reality-check-round") {
		settings.RealityCheckRound = runFlags.realityAt
	}
	if flags.Changed("concurrency") {
		settings.Concurrency = runFlags.concurrency
	}
	if flags.Changed("pacing") {
		settings.Pacing = runFlags.pacing
	}
	if flags.Changed("turn-timeout") {
		settings.TurnTimeout = runFlags.turnTimeout
	}
	if flags.Changed("headless") {
		settings.Headless = runFlags.headless
	}
	if flags.Changed("data-dir") {
		settings.DataDir = runFlags.dataDir
	}
	if flags.Changed("model") {
		settings.Model = runFlags.model
	}
	if flags.Changed("provider") {
		settings.Provider = runFlags.provider
	}
	if flags.Changed("roster") {
		settings.Roster = runFlags.roster
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	sessionName := runFlags.name
	if sessionName == "" {
		sessionName = slug.Make(runFlags.topic)
		if len(sessionName) > 64 {
			sessionName = sessionName[:64]
		}
	}
	if err := validateSessionName(sessionName); err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		SessionName: sessionName,
		Topic:       runFlags.topic,
		RosterPath:  settings.Roster,
		TemplateDir: runFlags.templates,
		Headless:    settings.Headless,
		Synthesize:  runFlags.synthesize,
		Save:        runFlags.save,
		MCP:         runFlags.mcp,
		ServeAddr:   runFlags.serve,
		Restart:     runFlags.restart,
		Settings:    settings,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if err := orch.Start(); err != nil {
		_ = orch.Stop()
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	// Ensure cleanup always runs using defer
	defer func() {
		if err := orch.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; !ok {
			return
		}
		fmt.Println("\nShutting down gracefully...")
		if err := orch.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		os.Exit(0)
	}()

	if err := orch.Run(); err != nil {
		return fmt.Errorf("dialogue failed: %w", err)
	}
	return nil
}

// validateSessionName accepts alphanumerics, hyphens and underscores (NATS subject constraint).
func validateSessionName(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("session name too long (max 64 characters): %s", name)
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_') {
			return fmt.Errorf("invalid session name: %s (use only alphanumeric, hyphens, underscores)", name)
		}
	}
	return nil
}
