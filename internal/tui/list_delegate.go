package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"quicknotes/internal/render"
)

const createdLayout = "Jan 2 15:04"

type noteItem struct {
	entry render.Entry
}

func (i noteItem) FilterValue() string { return i.entry.Title + " " + i.entry.Content }
func (i noteItem) Title() string       { return i.entry.Title }
func (i noteItem) Description() string { return i.entry.Created.Local().Format(createdLayout) }

// compactItemDelegate renders one line per note: title on the left, creation
// time on the right.
type compactItemDelegate struct {
	normal   lipgloss.Style
	selected lipgloss.Style
}

func newCompactItemDelegate() compactItemDelegate {
	return compactItemDelegate{
		normal: lipgloss.NewStyle(),
		selected: lipgloss.NewStyle().
			Foreground(colorSelectedFg).
			Background(colorSelectedBg).
			Bold(true),
	}
}

func (d compactItemDelegate) Height() int  { return 1 }
func (d compactItemDelegate) Spacing() int { return 0 }
func (d compactItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

func (d compactItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	contentW := m.Width()
	if contentW < 4 {
		return
	}
	style := d.normal
	if index == m.Index() {
		style = d.selected
	}

	left, right := fmt.Sprint(item), ""
	if it, ok := item.(noteItem); ok {
		left = oneLine(it.entry.Title)
		if it.entry.Editing {
			left = "✎ " + left
		}
		right = it.Description()
	}

	line := left
	gap := contentW - xansi.StringWidth(left) - xansi.StringWidth(right)
	if right != "" && gap >= 2 {
		line = left + strings.Repeat(" ", gap) + right
	}
	lineW := xansi.StringWidth(line)
	if lineW < contentW {
		line += strings.Repeat(" ", contentW-lineW)
	} else if lineW > contentW {
		line = xansi.Cut(line, 0, contentW-1) + "…"
	}
	fmt.Fprint(w, style.Render(line))
}

func newList(items []list.Item) list.Model {
	l := list.New(items, newCompactItemDelegate(), 0, 0)
	l.Title = "Notes"
	// The app renders its own header and footer.
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)
	l.SetFilteringEnabled(true)
	l.SetStatusBarItemName("note", "notes")
	l.KeyMap.CursorUp.SetKeys(append(l.KeyMap.CursorUp.Keys(), "ctrl+p")...)
	l.KeyMap.CursorDown.SetKeys(append(l.KeyMap.CursorDown.Keys(), "ctrl+n")...)
	l.DisableQuitKeybindings()
	return l
}

func selectListItemByID(l *list.Model, id string) bool {
	for i, it := range l.Items() {
		if n, ok := it.(noteItem); ok && n.entry.ID == id {
			l.Select(i)
			return true
		}
	}
	return false
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
