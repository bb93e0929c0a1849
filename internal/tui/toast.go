package tui

import (
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// toastDuration is how long a toast stays on screen.
const toastDuration = 3 * time.Second

// ToastDismissMsg is sent when the toast should be dismissed.
type ToastDismissMsg struct {
	seq int
}

// Toast is a short notice shown at the right of the footer. It auto-dismisses;
// a newer toast replaces an older one and survives the older one's timer.
type Toast struct {
	message string
	isError bool
	visible bool
	seq     int
}

// NewToast creates a new Toast component.
func NewToast() *Toast {
	return &Toast{}
}

// Show displays msg and returns the command dismissing it.
func (t *Toast) Show(msg string) tea.Cmd {
	return t.show(msg, false)
}

// ShowError displays msg in the error color.
func (t *Toast) ShowError(msg string) tea.Cmd {
	return t.show(msg, true)
}

func (t *Toast) show(msg string, isError bool) tea.Cmd {
	t.message = msg
	t.isError = isError
	t.visible = true
	t.seq++
	seq := t.seq
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return ToastDismissMsg{seq: seq}
	})
}

// Update handles messages for the toast component.
func (t *Toast) Update(msg tea.Msg) tea.Cmd {
	if m, ok := msg.(ToastDismissMsg); ok && m.seq == t.seq {
		t.visible = false
		t.message = ""
	}
	return nil
}

// View renders the toast, truncated to width. Returns empty string if the
// toast is not visible.
func (t *Toast) View(width int) string {
	if !t.visible || t.message == "" || width <= 2 {
		return ""
	}

	bg := colorYellow
	if t.isError {
		bg = colorRed
	}
	style := lipgloss.NewStyle().
		Foreground(colorBase).
		Background(bg).
		Padding(0, 1).
		Bold(true)

	content := style.Render(t.message)
	if lipgloss.Width(content) > width {
		content = style.MaxWidth(width).Render(t.message)
	}
	return content
}

// IsVisible returns whether the toast is currently visible.
func (t *Toast) IsVisible() bool {
	return t.visible
}

// GetMessage returns the current toast message (empty if not visible).
func (t *Toast) GetMessage() string {
	if !t.visible {
		return ""
	}
	return t.message
}
