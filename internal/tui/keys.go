package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	New         key.Binding
	Edit        key.Binding
	Delete      key.Binding
	SignIn      key.Binding
	PasteLink   key.Binding
	SignOut     key.Binding
	Reload      key.Binding
	Theme       key.Binding
	Dismiss     key.Binding
	Quit        key.Binding
	Save        key.Binding
	NextField   key.Binding
	Cancel      key.Binding
	Submit      key.Binding
	Confirm     key.Binding
	Refuse      key.Binding
	SwitchFocus key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		New:         key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Edit:        key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e/enter", "edit")),
		Delete:      key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		SignIn:      key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "sign in")),
		PasteLink:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "paste link")),
		SignOut:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "sign out")),
		Reload:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Theme:       key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "theme")),
		Dismiss:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss")),
		Quit:        key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		Save:        key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		NextField:   key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch field")),
		Cancel:      key.NewBinding(key.WithKeys("esc", "ctrl+g"), key.WithHelp("esc", "cancel")),
		Submit:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
		Confirm:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "delete")),
		Refuse:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "keep")),
		SwitchFocus: key.NewBinding(key.WithKeys("tab", "shift+tab", "left", "right"), key.WithHelp("tab", "focus")),
	}
}

var keys = newKeyMap()

func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, "  ")
}
