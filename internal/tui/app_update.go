package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quicknotes/internal/store"
	"quicknotes/internal/syncer"
)

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case stateMsg:
		m.applyState(msg.state)
		cmds := []tea.Cmd{waitForState(m.eng.Updates())}
		if m.view.Busy && !m.spinning {
			m.spinning = true
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if !m.view.Busy {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.modal {
		case modalSignIn, modalCallbackURL:
			return m.updateInputModal(msg)
		case modalEditor:
			return m.updateEditor(msg)
		case modalConfirmDelete:
			return m.updateConfirmDelete(msg)
		}
		return m.updateMain(msg)
	}

	if m.modal == modalNone {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m appModel) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// While the filter prompt has focus every key belongs to it.
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.New):
		m.eng.Dispatch(syncer.OpenEditor{})
		return m, nil
	case key.Matches(msg, keys.Edit):
		if e, ok := m.selectedEntry(); ok {
			m.eng.Dispatch(syncer.OpenEditor{NoteID: e.ID})
		}
		return m, nil
	case key.Matches(msg, keys.Delete):
		e, ok := m.selectedEntry()
		if !ok {
			return m, nil
		}
		if !e.CanDelete {
			m.eng.Dispatch(syncer.DeleteNote{ID: e.ID})
			return m, nil
		}
		m.deleteID = e.ID
		m.deleteTitle = e.Title
		m.confirmFocus = confirmFocusCancel
		m.modal = modalConfirmDelete
		return m, nil
	case key.Matches(msg, keys.SignIn):
		if m.view.SignedIn {
			return m, nil
		}
		m.openInputModal(modalSignIn, "you@example.com")
		return m, nil
	case key.Matches(msg, keys.PasteLink):
		m.openInputModal(modalCallbackURL, "http://127.0.0.1:8765/#access_token=…")
		return m, nil
	case key.Matches(msg, keys.SignOut):
		if m.view.SignedIn {
			m.eng.Dispatch(syncer.SignOut{})
		}
		return m, nil
	case key.Matches(msg, keys.Reload):
		m.eng.Dispatch(syncer.Reload{})
		return m, nil
	case key.Matches(msg, keys.Theme):
		m.toggleTheme()
		return m, nil
	case key.Matches(msg, keys.Dismiss):
		if m.list.FilterState() == list.FilterApplied {
			m.list.ResetFilter()
			return m, nil
		}
		if m.view.Status != "" {
			m.eng.Dispatch(syncer.ClearStatus{})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *appModel) openInputModal(kind modalKind, placeholder string) {
	m.modal = kind
	m.input.SetValue("")
	m.input.Placeholder = placeholder
	m.input.Focus()
}

func (m appModel) updateInputModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.closeModal()
		return m, nil
	case key.Matches(msg, keys.Submit):
		v := strings.TrimSpace(m.input.Value())
		if v == "" {
			return m, nil
		}
		if m.modal == modalSignIn {
			m.eng.Dispatch(syncer.RequestMagicLink{Email: v})
		} else {
			m.eng.Dispatch(syncer.RecoverRedirect{URL: v})
		}
		m.closeModal()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m appModel) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		// The modal closes when the engine publishes the closed editor.
		m.eng.Dispatch(syncer.CloseEditor{})
		return m, nil
	case key.Matches(msg, keys.Save):
		m.eng.Dispatch(syncer.SaveNote{Title: m.titleInput.Value(), Content: m.textarea.Value()})
		return m, nil
	case key.Matches(msg, keys.NextField):
		if m.editorFocus == editorFocusTitle {
			m.setEditorFocus(editorFocusContent)
		} else {
			m.setEditorFocus(editorFocusTitle)
		}
		return m, nil
	case key.Matches(msg, keys.Submit) && m.editorFocus == editorFocusTitle:
		m.setEditorFocus(editorFocusContent)
		return m, nil
	}

	var cmd tea.Cmd
	if m.editorFocus == editorFocusTitle {
		m.titleInput, cmd = m.titleInput.Update(msg)
	} else {
		m.textarea, cmd = m.textarea.Update(msg)
	}
	return m, cmd
}

func (m appModel) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel), key.Matches(msg, keys.Refuse):
		m.closeModal()
	case key.Matches(msg, keys.SwitchFocus):
		if m.confirmFocus == confirmFocusConfirm {
			m.confirmFocus = confirmFocusCancel
		} else {
			m.confirmFocus = confirmFocusConfirm
		}
	case key.Matches(msg, keys.Confirm):
		m.confirmDelete()
	case key.Matches(msg, keys.Submit):
		if m.confirmFocus == confirmFocusConfirm {
			m.confirmDelete()
		} else {
			m.closeModal()
		}
	}
	return m, nil
}

func (m *appModel) confirmDelete() {
	id := m.deleteID
	m.closeModal()
	if id != "" {
		m.eng.Dispatch(syncer.DeleteNote{ID: id})
	}
}

func (m *appModel) closeModal() {
	m.modal = modalNone
	m.input.Blur()
	m.input.SetValue("")
	m.deleteID = ""
	m.deleteTitle = ""
}

// toggleTheme flips the palette and persists the choice. Persistence failures
// only get logged.
func (m *appModel) toggleTheme() {
	next := otherTheme(currentTheme())
	lipgloss.SetHasDarkBackground(next == store.ThemeDark)
	if m.prefs.Path == "" {
		return
	}

	p, err := m.prefs.LoadPrefs()
	if err != nil {
		m.logger.Warn("load prefs", "err", err)
		return
	}
	p.Theme = next
	if err := m.prefs.SavePrefs(p); err != nil {
		m.logger.Warn("save theme", "theme", next, "err", err)
	}
}
