package tui

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quicknotes/internal/render"
	"quicknotes/internal/store"
	"quicknotes/internal/syncer"
)

const (
	minListW = 28
	headerH  = 2
	footerH  = 3
)

type appModel struct {
	eng    Engine
	prefs  store.Dir
	logger *slog.Logger

	width  int
	height int

	state syncer.State
	view  render.View

	list    list.Model
	spinner spinner.Model
	// spinning is true while a spinner tick is outstanding.
	spinning bool

	modal        modalKind
	input        textinput.Model
	titleInput   textinput.Model
	textarea     textarea.Model
	editorFocus  editorFocus
	editorFor    string
	confirmFocus confirmModalFocus
	deleteID     string
	deleteTitle  string
}

func newAppModel(eng Engine, opts Options) appModel {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := appModel{
		eng:    eng,
		prefs:  opts.Prefs,
		logger: opts.Logger,
	}
	m.list = newList([]list.Item{})
	m.spinner = spinner.New(spinner.WithSpinner(spinner.Dot))

	m.input = textinput.New()
	m.input.CharLimit = 2048
	m.input.Width = 48

	m.titleInput = textinput.New()
	m.titleInput.Placeholder = "Title"
	m.titleInput.CharLimit = 200
	m.titleInput.Width = 48

	m.textarea = textarea.New()
	m.textarea.Placeholder = "Write…"
	m.textarea.CharLimit = 0
	m.textarea.SetWidth(72)
	m.textarea.SetHeight(10)
	m.textarea.ShowLineNumbers = false

	m.applyState(eng.Snapshot())
	return m
}

func (m appModel) Init() tea.Cmd {
	return waitForState(m.eng.Updates())
}

func waitForState(ch <-chan syncer.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg{state: st}
	}
}

func (m *appModel) applyState(st syncer.State) {
	m.state = st
	m.view = render.Build(st)

	curID := m.selectedID()
	items := make([]list.Item, 0, len(m.view.Entries))
	for _, e := range m.view.Entries {
		items = append(items, noteItem{entry: e})
	}
	m.list.SetItems(items)
	if curID != "" {
		selectListItemByID(&m.list, curID)
	}

	m.syncEditor()
}

// syncEditor opens, refills or closes the editor modal to follow the engine's
// editing target.
func (m *appModel) syncEditor() {
	if !m.view.Editing {
		if m.modal == modalEditor {
			m.modal = modalNone
		}
		m.editorFor = ""
		return
	}
	key := newNoteKey
	if m.view.EditorNote != nil {
		key = m.view.EditorNote.ID
	}
	if m.modal == modalEditor && m.editorFor == key {
		return
	}
	m.editorFor = key
	m.modal = modalEditor
	m.titleInput.SetValue("")
	m.textarea.SetValue("")
	if m.view.EditorNote != nil {
		m.titleInput.SetValue(m.view.EditorNote.Title)
		m.textarea.SetValue(m.view.EditorNote.Content)
	}
	m.titleInput.CursorEnd()
	m.setEditorFocus(editorFocusTitle)
}

func (m *appModel) setEditorFocus(f editorFocus) {
	m.editorFocus = f
	if f == editorFocusTitle {
		m.textarea.Blur()
		m.titleInput.Focus()
		return
	}
	m.titleInput.Blur()
	m.textarea.Focus()
}

func (m appModel) selectedEntry() (render.Entry, bool) {
	it, ok := m.list.SelectedItem().(noteItem)
	if !ok {
		return render.Entry{}, false
	}
	return it.entry, true
}

func (m appModel) selectedID() string {
	if e, ok := m.selectedEntry(); ok {
		return e.ID
	}
	return ""
}

func (m *appModel) resize() {
	w, h := m.paneSizes()
	m.list.SetSize(w, h)
	bodyW := modalBodyWidth(m.width) - 2
	m.textarea.SetWidth(bodyW)
	m.titleInput.Width = bodyW - 4
	m.input.Width = bodyW - 4
}

func (m appModel) paneSizes() (listW, bodyH int) {
	bodyH = m.height - headerH - footerH
	if bodyH < 4 {
		bodyH = 4
	}
	listW = m.width * 2 / 5
	if listW < minListW {
		listW = minListW
	}
	return listW, bodyH
}

func (m appModel) View() string {
	if m.width == 0 {
		return ""
	}
	header := m.viewHeader()
	var body string
	switch m.modal {
	case modalNone:
		body = m.viewBody()
	default:
		_, bodyH := m.paneSizes()
		body = lipgloss.Place(m.width, bodyH, lipgloss.Center, lipgloss.Center, m.viewModal())
	}
	return strings.Join([]string{header, body, m.viewStatus(), m.viewFooter()}, "\n")
}

func (m appModel) viewHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Render("QuickNotes")
	var who string
	switch {
	case !m.view.Enabled:
		who = "offline"
	case m.view.SignedIn:
		who = "signed in as " + m.view.UserLabel
	default:
		who = "not signed in"
	}
	right := styleMuted().Render(who + "  ·  " + m.view.Count)
	return title + "  " + right + "\n"
}

func (m appModel) viewBody() string {
	listW, bodyH := m.paneSizes()
	var left string
	if m.view.Empty {
		left = styleMuted().Render(m.emptyText())
	} else {
		left = m.list.View()
	}
	left = normalizePane(left, listW, bodyH)

	previewW := m.width - listW - 2
	if previewW < 10 {
		return left
	}
	preview := normalizePane(m.viewPreview(previewW), previewW, bodyH)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", preview)
}

func (m appModel) emptyText() string {
	switch {
	case !m.view.Enabled:
		return "Cloud sync is not configured."
	case !m.view.SignedIn:
		return "Sign in (l) to see your notes."
	default:
		return "No notes yet. Press n to create one."
	}
}

func (m appModel) viewPreview(width int) string {
	e, ok := m.selectedEntry()
	if !ok {
		return ""
	}
	title := lipgloss.NewStyle().Bold(true).Render(oneLine(e.Title))
	meta := styleMuted().Render(e.Created.Local().Format("Mon Jan 2 2006 15:04"))
	return strings.Join([]string{title, meta, "", renderMarkdown(e.Content, width)}, "\n")
}

func (m appModel) viewStatus() string {
	if m.view.Status == "" {
		return ""
	}
	st := lipgloss.NewStyle()
	switch m.view.StatusKind {
	case syncer.StatusSuccess:
		st = st.Foreground(colorSuccess)
	case syncer.StatusError:
		st = st.Foreground(colorError).Bold(true)
	case syncer.StatusLoading:
		st = st.Foreground(colorAccent)
	}
	text := st.Render(m.view.Status)
	if m.view.Busy {
		return m.spinner.View() + " " + text
	}
	return text
}

func (m appModel) viewFooter() string {
	var help string
	switch m.modal {
	case modalEditor:
		help = helpLine(keys.NextField, keys.Save, keys.Cancel)
	case modalSignIn, modalCallbackURL:
		help = helpLine(keys.Submit, keys.Cancel)
	case modalConfirmDelete:
	default:
		bindings := []key.Binding{keys.New, keys.Edit, keys.Delete}
		if m.view.SignedIn {
			bindings = append(bindings, keys.SignOut)
		} else {
			bindings = append(bindings, keys.SignIn, keys.PasteLink)
		}
		bindings = append(bindings, keys.Reload, keys.Theme, keys.Quit)
		help = helpLine(bindings...)
	}
	return styleMuted().Render(help)
}

func (m appModel) viewModal() string {
	bodyW := modalBodyWidth(m.width)
	switch m.modal {
	case modalSignIn:
		return renderModalBox(m.width, "Sign in", strings.Join([]string{
			"Email address for the magic link:",
			"",
			renderInputLine(bodyW-2, m.input.View()),
		}, "\n"))
	case modalCallbackURL:
		return renderModalBox(m.width, "Paste sign-in link", strings.Join([]string{
			"The address your browser landed on after clicking the link:",
			"",
			renderInputLine(bodyW-2, m.input.View()),
		}, "\n"))
	case modalEditor:
		return renderModalBox(m.width, m.view.EditorTitle, strings.Join([]string{
			renderInputLine(bodyW-2, m.titleInput.View()),
			"",
			m.textarea.View(),
		}, "\n"))
	case modalConfirmDelete:
		body := "Delete " + quoted(oneLine(m.deleteTitle)) + "?"
		return renderConfirmModal(m.width, "Delete note", body, "Delete", "Cancel", m.confirmFocus)
	}
	return ""
}

func quoted(s string) string {
	return "“" + s + "”"
}
