// Package tui is the live terminal view of a running dialogue.
package tui

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/mark3labs/roundtable/internal/archive"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/mark3labs/roundtable/internal/render"
)

var log = logger.For("tui")

// Dialogue is the controller surface driven from the keyboard.
type Dialogue interface {
	Snapshot() dialogue.Snapshot
	Subscribe(fn func(dialogue.Event)) func()
	Pause() error
	Resume() error
	IsPaused() bool
	Stop()
	Synthesize(ctx context.Context) (dialogue.Outcome, error)
}

// Saver stores snapshots in the archive.
type Saver interface {
	Save(ctx context.Context, snap dialogue.Snapshot) (archive.Entry, error)
}

// eventBuffer bounds queued controller events. Overflow is harmless: every event
// triggers a fresh snapshot.
const eventBuffer = 256

// App is the main Bubbletea model.
type App struct {
	ctx         context.Context
	dlg         Dialogue
	saver       Saver
	sessionName string

	snap        dialogue.Snapshot
	events      chan dialogue.Event
	unsubscribe func()

	viewport viewport.Model
	spinner  spinner.Model
	toast    *Toast
	keys     keyMap

	width        int
	height       int
	synthesizing bool
	saving       bool
	quitting     bool
}

// NewApp creates the TUI for dlg. saver may be nil, which disables the save key.
// The app subscribes to dlg immediately; call Close once the program exits.
func NewApp(ctx context.Context, sessionName string, dlg Dialogue, saver Saver) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorMauve)

	vp := viewport.New(
		viewport.WithWidth(80),
		viewport.WithHeight(20),
	)
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	keys := defaultKeyMap()
	keys.Save.SetEnabled(saver != nil)

	a := &App{
		ctx:         ctx,
		dlg:         dlg,
		saver:       saver,
		sessionName: sessionName,
		events:      make(chan dialogue.Event, eventBuffer),
		viewport:    vp,
		spinner:     s,
		toast:       NewToast(),
		keys:        keys,
		width:       80,
		height:      24,
	}
	a.unsubscribe = dlg.Subscribe(func(ev dialogue.Event) {
		select {
		case a.events <- ev:
		default:
		}
	})
	a.refresh()
	return a
}

// Close removes the controller subscription.
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
}

// Init initializes the application and returns any initial commands.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.waitForEvents(),
		a.spinner.Tick,
	)
}

// waitForEvents blocks until the controller publishes something.
func (a *App) waitForEvents() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-a.events:
			return EventMsg{Event: ev}
		case <-a.ctx.Done():
			return nil
		}
	}
}

// Update handles incoming messages and updates the model state.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return a.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case EventMsg:
		a.refresh()
		var cmd tea.Cmd
		if msg.Event.Type == dialogue.EventState && msg.Event.State == dialogue.StateComplete {
			cmd = a.toast.Show("Dialogue complete")
		}
		return a, tea.Batch(cmd, a.waitForEvents())

	case OutcomeMsg:
		a.synthesizing = false
		if msg.Err != nil {
			log.Warn("synthesis failed: %v", msg.Err)
			return a, a.toast.ShowError("Outcome failed: " + msg.Err.Error())
		}
		a.refresh()
		return a, a.toast.Show("Outcome ready")

	case SavedMsg:
		a.saving = false
		if msg.Err != nil {
			log.Warn("save failed: %v", msg.Err)
			return a, a.toast.ShowError("Save failed: " + msg.Err.Error())
		}
		return a, a.toast.Show("Saved as " + msg.Entry.ID)

	case ToastDismissMsg:
		return a, a.toast.Update(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

// handleKeyPress routes control keys; anything else scrolls the transcript.
func (a *App) handleKeyPress(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		a.quitting = true
		return a, tea.Quit

	case key.Matches(msg, a.keys.Pause):
		return a, a.togglePause()

	case key.Matches(msg, a.keys.Stop):
		a.dlg.Stop()
		return a, a.toast.Show("Stopping after the current turn")

	case key.Matches(msg, a.keys.Synthesize):
		return a, a.synthesize()

	case key.Matches(msg, a.keys.Save):
		return a, a.save()
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

// togglePause requests a pause, or releases one that is requested or in effect.
func (a *App) togglePause() tea.Cmd {
	if a.dlg.IsPaused() {
		if err := a.dlg.Resume(); err != nil {
			return a.toast.ShowError(err.Error())
		}
		return a.toast.Show("Resumed")
	}
	if err := a.dlg.Pause(); err != nil {
		return a.toast.ShowError(err.Error())
	}
	return a.toast.Show("Pausing before the next turn")
}

func (a *App) synthesize() tea.Cmd {
	if a.synthesizing {
		return nil
	}
	a.synthesizing = true
	ctx := a.ctx
	return func() tea.Msg {
		outcome, err := a.dlg.Synthesize(ctx)
		return OutcomeMsg{Outcome: outcome, Err: err}
	}
}

func (a *App) save() tea.Cmd {
	if a.saver == nil || a.saving {
		return nil
	}
	a.saving = true
	ctx := a.ctx
	snap := a.dlg.Snapshot()
	return func() tea.Msg {
		entry, err := a.saver.Save(ctx, snap)
		return SavedMsg{Entry: entry, Err: err}
	}
}

// refresh re-reads the snapshot and re-renders the transcript, following the
// bottom unless the user scrolled up.
func (a *App) refresh() {
	follow := a.viewport.AtBottom() || a.viewport.TotalLineCount() == 0
	a.snap = a.dlg.Snapshot()
	a.viewport.SetContent(renderTranscript(a.snap, a.viewport.Width()))
	if follow {
		a.viewport.GotoBottom()
	}
}

// resize gives the viewport everything except the header, tally and footer rows.
func (a *App) resize() {
	a.viewport.SetWidth(a.width)
	height := a.height - 3
	if height < 1 {
		height = 1
	}
	a.viewport.SetHeight(height)
	a.refresh()
}

// View renders the current view.
func (a *App) View() tea.View {
	var view tea.View
	view.AltScreen = true
	view.MouseMode = tea.MouseModeCellMotion

	if a.quitting {
		view.AltScreen = false
		view.MouseMode = 0
		view.Content = lipgloss.NewLayer("")
		return view
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		a.header(),
		a.viewport.View(),
		a.tallyLine(),
		a.footer(),
	)
	view.Content = lipgloss.NewLayer(content)
	return view
}

// header: roundtable | session | topic     state · round [spinner]
func (a *App) header() string {
	sep := styleHeaderSeparator.Render(" | ")
	left := styleHeaderTitle.Render("roundtable") + sep + styleHeaderInfo.Render(a.sessionName)
	if a.snap.Topic != "" {
		left += sep + styleHeaderInfo.Render(a.snap.Topic)
	}

	right := a.stateLabel()
	if a.snap.State == dialogue.StateRunning || a.synthesizing {
		right = a.spinner.View() + " " + right
	}
	return a.bar(left, right)
}

func (a *App) stateLabel() string {
	var label string
	switch a.snap.State {
	case dialogue.StatePaused:
		label = styleStatePaused.Render("paused")
	case dialogue.StateComplete:
		label = styleStateComplete.Render("complete")
	default:
		label = styleHeaderInfo.Render(string(a.snap.State))
	}
	if a.dlg.IsPaused() && a.snap.State == dialogue.StateRunning {
		label = styleStatePaused.Render("pausing")
	}
	if a.snap.Round > 0 && a.snap.MaxRounds > 0 {
		label += styleHeaderInfo.Render(fmt.Sprintf(" · round %d/%d", a.snap.Round, a.snap.MaxRounds))
	}
	if a.synthesizing {
		label += styleHeaderInfo.Render(" · synthesizing")
	}
	return label
}

func (a *App) tallyLine() string {
	barWidth := a.width / 3
	if barWidth < 10 {
		barWidth = 10
	}
	return " " + render.StanceBar(a.snap.Tally, barWidth) + "  " + render.TallyLine(a.snap.Tally)
}

func (a *App) footer() string {
	return a.bar(a.keys.hints(), a.toast.View(a.width/2))
}

// bar fills the width between left and right on the status background.
func (a *App) bar(left, right string) string {
	total := a.width - 2
	padding := total - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		padding = 1
	}
	return styleStatusBar.Width(a.width).Render(left + strings.Repeat(" ", padding) + right)
}
