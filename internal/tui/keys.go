package tui

import "charm.land/bubbles/v2/key"

type keyMap struct {
	Pause      key.Binding
	Stop       key.Binding
	Synthesize key.Binding
	Save       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Pause:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause/resume")),
		Stop:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Synthesize: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "outcome")),
		Save:       key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// hints renders the enabled bindings as "key desc" pairs.
func (k keyMap) hints() string {
	var out string
	for _, b := range []key.Binding{k.Pause, k.Stop, k.Synthesize, k.Save, k.Quit} {
		if !b.Enabled() {
			continue
		}
		if out != "" {
			out += "  "
		}
		h := b.Help()
		out += styleHintKey.Render(h.Key) + " " + styleHintDesc.Render(h.Desc)
	}
	return out
}
