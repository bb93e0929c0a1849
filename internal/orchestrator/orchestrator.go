package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/mark3labs/roundtable/internal/archive"
	"github.com/mark3labs/roundtable/internal/config"
	"github.com/mark3labs/roundtable/internal/dialogue"
	ierr "github.com/mark3labs/roundtable/internal/errors"
	"github.com/mark3labs/roundtable/internal/hooks"
	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/mark3labs/roundtable/internal/mcpserver"
	"github.com/mark3labs/roundtable/internal/nats"
	"github.com/mark3labs/roundtable/internal/render"
	"github.com/mark3labs/roundtable/internal/roster"
	"github.com/mark3labs/roundtable/internal/session"
	"github.com/mark3labs/roundtable/internal/tui"
	"github.com/mark3labs/roundtable/internal/web"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds configuration for the orchestrator.
type Config struct {
	SessionName string // Name of the session
	Topic       string // Discussion topic
	DataDir     string // Data directory for NATS storage and the archive
	WorkDir     string // Working directory for hooks and the agent
	RosterPath  string // Roster file; the default roster is used when missing
	TemplateDir string // Directory with custom templates (optional)
	Headless    bool   // Run without TUI
	Synthesize  bool   // Produce the outcome once the dialogue completes
	Save        bool   // Save the finished session to the archive
	MCP         bool   // Expose control tools over MCP
	ServeAddr   string // Serve the web view on this address (optional)
	Restart     bool   // Start over when the session already has a transcript

	Settings  *config.Config     // Loaded settings; defaults when nil
	Generator dialogue.Generator // Overrides the provider from Settings
	Output    io.Writer          // Headless output; os.Stdout when nil
}

// Orchestrator wires the dialogue controller to embedded NATS, the archive, the
// control surfaces and the TUI or headless printer.
type Orchestrator struct {
	cfg        Config
	ns         *natsserver.Server // Embedded NATS server (nil if node mode)
	nc         *natsgo.Conn       // NATS connection
	store      *session.Store     // Session store
	archive    *archive.Archive   // Saved sessions
	ctrl       *dialogue.Controller
	gen        dialogue.Generator
	hooks      *hooks.Config
	watcher    *roster.Watcher
	mcp        *mcpserver.Server
	web        *web.Server
	printer    *render.Printer
	tuiApp     *tui.App
	tuiProgram *tea.Program       // Bubbletea program
	tuiDone    chan struct{}      // TUI completion signal
	unsubs     []func()           // Controller subscriptions
	ctx        context.Context    // Context for cancellation
	cancel     context.CancelFunc // Cancel function
	mu         sync.Mutex
	stopped    bool // Track if Stop() was already called
	isPrimary  bool // True if this instance owns the NATS server
}

// New creates a new Orchestrator with the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Settings == nil {
		cfg.Settings = config.Defaults()
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfg.Settings.DataDir
	} else {
		settings := *cfg.Settings
		settings.DataDir = cfg.DataDir
		cfg.Settings = &settings
	}
	if cfg.RosterPath == "" {
		cfg.RosterPath = cfg.Settings.Roster
	}
	if cfg.SessionName == "" {
		cfg.SessionName = "default"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.WorkDir = wd
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		tuiDone: make(chan struct{}),
	}, nil
}

// Start initializes all components. The dialogue itself starts with Run.
func (o *Orchestrator) Start() error {
	logger.Info("Starting orchestrator for session '%s'", o.cfg.SessionName)

	// 1. Connect to existing NATS server or start a new one
	logger.Debug("Ensuring NATS connection")
	if err := o.ensureNATS(); err != nil {
		logger.Error("Failed to ensure NATS: %v", err)
		return fmt.Errorf("failed to ensure NATS: %w", err)
	}
	if o.isPrimary {
		logger.Debug("Running as primary (owns NATS server)")
	} else {
		logger.Debug("Running as node (connected to existing server)")
	}

	// 2. Setup JetStream stream
	logger.Debug("Setting up JetStream")
	if err := o.setupJetStream(); err != nil {
		logger.Error("Failed to setup JetStream: %v", err)
		return fmt.Errorf("failed to setup JetStream: %w", err)
	}

	// 3. Refuse to overwrite a recorded transcript unless asked to
	state, err := o.store.LoadState(o.ctx, o.cfg.SessionName)
	if err != nil {
		logger.Error("Failed to load session state: %v", err)
		return fmt.Errorf("failed to load session state: %w", err)
	}
	if len(state.Messages) > 0 && !o.cfg.Restart {
		return fmt.Errorf("session '%s' already has a transcript (use --restart or pick another --name)", o.cfg.SessionName)
	}

	// 4. Dialogue controller
	gen, err := o.generator()
	if err != nil {
		return err
	}
	dcfg, err := o.dialogueConfig()
	if err != nil {
		return err
	}
	o.gen = gen
	o.ctrl = dialogue.NewController(dcfg, gen, o.store)
	if len(state.Messages) > 0 {
		logger.Info("Restarting session '%s'", o.cfg.SessionName)
		if err := o.ctrl.Reset(o.ctx); err != nil {
			return fmt.Errorf("failed to reset session: %w", err)
		}
	}

	// 5. Roster and hooks
	if err := o.loadRoster(); err != nil {
		return err
	}
	hooksCfg, err := hooks.LoadConfig(o.cfg.WorkDir)
	if err != nil {
		return err
	}
	o.hooks = hooksCfg

	// 6. Archive
	arch, err := archive.Open(o.cfg.Settings.ArchivePath())
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	o.archive = arch

	// 7. Control surfaces
	if o.cfg.MCP {
		o.mcp = mcpserver.New(o.ctrl, o.archive)
		port, err := o.mcp.Start(o.ctx, "")
		if err != nil {
			return fmt.Errorf("failed to start MCP server: %w", err)
		}
		logger.Info("MCP server listening on port %d", port)
	}
	if o.cfg.ServeAddr != "" {
		o.web = web.New(o.store)
		o.web.Attach(o.cfg.SessionName, o.ctrl)
		if _, err := o.web.Listen(o.cfg.ServeAddr); err != nil {
			return err
		}
	}

	// 8. TUI or headless output
	if !o.cfg.Headless {
		logger.Debug("Starting TUI")
		if err := o.startTUI(); err != nil {
			logger.Error("Failed to start TUI: %v", err)
			return fmt.Errorf("failed to start TUI: %w", err)
		}
	} else {
		logger.Info("Running in headless mode")
		o.printer = render.NewPrinter(o.cfg.Output, os.Environ(), 100)
		o.unsubs = append(o.unsubs, o.ctrl.Subscribe(o.printer.Handle))
		o.printer.Handle(dialogue.Event{Type: dialogue.EventParticipants, Participants: o.ctrl.Participants()})
		o.printSurfaces()
	}

	logger.Info("Orchestrator started successfully")
	return nil
}

// Controller exposes the dialogue controller, e.g. for signal handling.
func (o *Orchestrator) Controller() *dialogue.Controller {
	return o.ctrl
}

// Run drives the dialogue to completion, then runs session_complete hooks and the
// optional synthesis and save steps. With the TUI it returns once the user quits.
func (o *Orchestrator) Run() error {
	logger.Info("Starting dialogue for session '%s'", o.cfg.SessionName)

	if o.printer != nil {
		o.printer.Println(render.Title("Roundtable: " + o.cfg.Topic))
	}

	err := ierr.Recover(func() error {
		return o.ctrl.Run(o.ctx, o.cfg.Topic)
	})
	if err != nil {
		var panicErr *ierr.PanicError
		if errors.As(err, &panicErr) {
			logger.Error("Dialogue panicked with stack trace: %s", panicErr.StackTrace)
			return fmt.Errorf("dialogue panicked: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("Dialogue interrupted")
			return nil
		}
		return fmt.Errorf("dialogue failed: %w", err)
	}

	state, round := o.ctrl.State()
	if state == dialogue.StateComplete {
		o.runCompleteHooks(round)
	}

	if o.cfg.Synthesize && state == dialogue.StateComplete {
		outcome, err := o.ctrl.Synthesize(o.ctx)
		if err != nil {
			logger.Warn("Synthesis failed: %v", err)
		}
		o.notify(tui.OutcomeMsg{Outcome: outcome, Err: err}, "Synthesis failed", err)
	}

	if o.cfg.Save {
		entry, err := o.archive.Save(o.ctx, o.ctrl.Snapshot())
		if err != nil {
			logger.Error("Failed to save session: %v", err)
		} else if o.printer != nil {
			o.printer.Println(render.Muted(fmt.Sprintf("Saved as %s", entry.ID)))
		}
		o.notify(tui.SavedMsg{Entry: entry, Err: err}, "Failed to save session", err)
	}

	if o.printer != nil {
		o.printer.Summary(o.ctrl.Tally())
		return nil
	}

	// Keep the TUI up so the outcome can be requested and read.
	select {
	case <-o.tuiDone:
	case <-o.ctx.Done():
	}
	logger.Info("Dialogue loop finished for session '%s'", o.cfg.SessionName)
	return nil
}

// Stop gracefully shuts down all components.
// It collects errors from each component and returns a combined error if any fail.
// Multiple calls to Stop() are safe and idempotent.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil
	}
	o.stopped = true

	logger.Info("Stopping orchestrator for session '%s'", o.cfg.SessionName)

	multiErr := &ierr.MultiError{}

	// No further turns; the turn in flight is cut short by the cancel below.
	if o.ctrl != nil {
		o.ctrl.Stop()
	}
	if o.cancel != nil {
		o.cancel()
	}

	if o.tuiProgram != nil {
		logger.Debug("Stopping TUI")
		o.tuiProgram.Quit()
		select {
		case <-o.tuiDone:
			logger.Debug("TUI stopped successfully")
		case <-time.After(2 * time.Second):
			logger.Warn("TUI shutdown timed out after 2s")
			multiErr.Append(ierr.NewTransientError("TUI shutdown", fmt.Errorf("timed out after 2s")))
		}
		o.tuiProgram = nil
	}
	if o.tuiApp != nil {
		o.tuiApp.Close()
	}
	for _, unsub := range o.unsubs {
		unsub()
	}
	o.unsubs = nil

	if closer, ok := o.gen.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			multiErr.Append(fmt.Errorf("generator close failed: %w", err))
		}
	}
	if o.watcher != nil {
		if err := o.watcher.Stop(); err != nil {
			multiErr.Append(fmt.Errorf("roster watcher: %w", err))
		}
	}
	if o.mcp != nil {
		if err := o.mcp.Stop(); err != nil {
			multiErr.Append(err)
		}
	}
	if o.web != nil {
		if err := o.web.Shutdown(); err != nil {
			multiErr.Append(err)
		}
	}
	if o.archive != nil {
		if err := o.archive.Close(); err != nil {
			multiErr.Append(fmt.Errorf("archive close failed: %w", err))
		}
	}

	// Close NATS connection (and server if primary)
	if o.isPrimary {
		logger.Debug("Shutting down NATS server (primary mode)")
		if err := nats.Shutdown(o.nc, o.ns); err != nil {
			logger.Error("NATS shutdown failed: %v", err)
			multiErr.Append(fmt.Errorf("NATS shutdown failed: %w", err))
		}
		nats.RemovePortFile(o.natsDir())
	} else if o.nc != nil {
		logger.Debug("Closing NATS connection (node mode)")
		o.nc.Close()
	}

	o.nc = nil
	o.ns = nil

	logger.Info("Orchestrator stopped")
	return multiErr.ErrorOrNil()
}

func (o *Orchestrator) natsDir() string {
	return filepath.Join(o.cfg.DataDir, "nats")
}

// ensureNATS connects to an existing NATS server or starts a new one.
// If another roundtable instance is already running with a NATS server,
// this instance runs in "node mode" and connects to the existing server.
// Otherwise, it starts a new embedded server and runs in "primary mode".
func (o *Orchestrator) ensureNATS() error {
	dataDir := o.natsDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create NATS data directory: %w", err)
	}

	if nc := nats.TryConnectExisting(dataDir); nc != nil {
		logger.Info("Connected to existing NATS server (node mode)")
		o.nc = nc
		o.isPrimary = false
		return nil
	}

	logger.Info("Starting NATS server (primary mode)")
	ns, port, err := nats.StartEmbeddedNATS(dataDir)
	if err != nil {
		return fmt.Errorf("failed to start NATS server: %w", err)
	}
	o.ns = ns
	o.isPrimary = true

	nc, err := nats.ConnectToPort(port)
	if err != nil {
		// Failed to connect to server we just started - shut it down
		ns.Shutdown()
		nats.RemovePortFile(dataDir)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	o.nc = nc
	return nil
}

// setupJetStream creates the JetStream stream and initializes the session store.
func (o *Orchestrator) setupJetStream() error {
	js, err := jetstream.New(o.nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := nats.SetupStream(o.ctx, js)
	if err != nil {
		return fmt.Errorf("failed to setup stream: %w", err)
	}

	o.store = session.NewStore(js, stream)
	return nil
}

// startTUI initializes and starts the Bubbletea TUI.
func (o *Orchestrator) startTUI() error {
	o.tuiApp = tui.NewApp(o.ctx, o.cfg.SessionName, o.ctrl, o.archive)
	o.tuiProgram = tea.NewProgram(o.tuiApp)

	// Start TUI in background with panic recovery
	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "TUI panic: %v\n", r)
			}
			close(o.tuiDone)
		}()

		if _, err := o.tuiProgram.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	// Quitting the TUI ends the dialogue.
	go func() {
		<-o.tuiDone
		logger.Debug("TUI quit detected, cancelling orchestrator context")
		if o.ctrl != nil {
			o.ctrl.Stop()
		}
		if o.cancel != nil {
			o.cancel()
		}
	}()

	return nil
}

// notify reports the result of a post-dialogue step: to the TUI when it runs,
// otherwise as a printed line on failure.
func (o *Orchestrator) notify(msg tea.Msg, failure string, err error) {
	if o.tuiProgram != nil {
		o.tuiProgram.Send(msg)
		return
	}
	if err != nil && o.printer != nil {
		o.printer.Println(fmt.Sprintf("%s: %v", failure, err))
	}
}

func (o *Orchestrator) printSurfaces() {
	if o.mcp != nil {
		o.printer.Println(render.Muted("MCP tools: " + o.mcp.URL()))
	}
	if o.cfg.ServeAddr != "" {
		o.printer.Println(render.Muted("Web view: http://" + o.cfg.ServeAddr + "/api/sessions/" + o.cfg.SessionName))
	}
}
