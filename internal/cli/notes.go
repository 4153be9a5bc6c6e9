package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quicknotes/internal/model"
	"quicknotes/internal/notestore"
	"quicknotes/internal/render"
)

type noteOut struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Created string `json:"created"`
}

func noteOutFrom(n model.Note) noteOut {
	return noteOut{ID: n.ID, Title: n.Title, Content: n.Content, Created: notestore.FormatCreated(n.Created)}
}

type noteListOut struct {
	Data []noteOut    `json:"data"`
	Meta noteListMeta `json:"meta"`
	Hint []string     `json:"_hints,omitempty"`
}

type noteListMeta struct {
	Count string `json:"count"`
	User  string `json:"user"`
}

func (l noteListOut) Text() string {
	var b strings.Builder
	for _, n := range l.Data {
		created := n.Created
		if t, err := notestore.ParseCreated(n.Created); err == nil {
			created = time.UnixMilli(t).Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "%s  %s  %s\n", n.ID, created, strings.Join(strings.Fields(n.Title), " "))
	}
	b.WriteString(l.Meta.Count)
	for _, h := range l.Hint {
		b.WriteString("\n" + h)
	}
	return b.String()
}

func newNotesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List and change the signed-in user's notes",
	}
	cmd.AddCommand(newNotesListCmd(app))
	cmd.AddCommand(newNotesAddCmd(app))
	cmd.AddCommand(newNotesEditCmd(app))
	cmd.AddCommand(newNotesRmCmd(app))
	return cmd
}

func newNotesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List notes, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotesList(cmd, app)
		},
	}
}

func runNotesList(cmd *cobra.Command, app *App) error {
	out := noteListOut{Data: []noteOut{}, Meta: noteListMeta{Count: render.CountText(0), User: "-"}}
	p, ns, err := app.signedIn(cmd.Context(), cmd)
	switch {
	case errors.Is(err, errNotConfigured):
		out.Hint = []string{"cloud sync is not configured"}
		return writeOut(cmd, app, out)
	case isNotSignedIn(err):
		out.Hint = []string{"not signed in (run: quicknotes login <email>)"}
		return writeOut(cmd, app, out)
	case err != nil:
		return writeErr(cmd, err)
	}

	notes, err := ns.List(cmd.Context(), p.ID)
	if err != nil {
		return writeErr(cmd, err)
	}
	for _, n := range notes {
		out.Data = append(out.Data, noteOutFrom(n))
	}
	out.Meta = noteListMeta{Count: render.CountText(len(notes)), User: p.Label()}
	return writeOut(cmd, app, out)
}

// readContent resolves "-" to stdin.
func readContent(cmd *cobra.Command, v string) (string, error) {
	if v != "-" {
		return v, nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func newNotesAddCmd(app *App) *cobra.Command {
	var title, content string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a note",
		Example: strings.TrimSpace(`
quicknotes notes add --title "Groceries" --content "milk, eggs"
echo "from a pipe" | quicknotes notes add --title "Piped" --content -
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(cmd, content)
			if err != nil {
				return writeErr(cmd, err)
			}
			title, body = strings.TrimSpace(title), strings.TrimSpace(body)
			if title == "" || body == "" {
				return writeErr(cmd, errors.New("title and content are required"))
			}
			p, ns, err := app.signedIn(cmd.Context(), cmd)
			if err != nil {
				return writeErr(cmd, err)
			}
			now := time.Now()
			n := model.Note{ID: notestore.NewID(now), Title: title, Content: body, Created: now.UnixMilli()}
			if err := ns.Insert(cmd.Context(), p.ID, n); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": noteOutFrom(n)})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Note title")
	cmd.Flags().StringVar(&content, "content", "", "Note content (Markdown; - reads stdin)")
	return cmd
}

func newNotesEditCmd(app *App) *cobra.Command {
	var title, content string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note's title and/or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if !cmd.Flags().Changed("title") && !cmd.Flags().Changed("content") {
				return writeErr(cmd, errors.New("nothing to change (use --title and/or --content)"))
			}
			p, ns, err := app.signedIn(cmd.Context(), cmd)
			if err != nil {
				return writeErr(cmd, err)
			}
			notes, err := ns.List(cmd.Context(), p.ID)
			if err != nil {
				return writeErr(cmd, err)
			}
			var n *model.Note
			for i := range notes {
				if notes[i].ID == id {
					n = &notes[i]
					break
				}
			}
			if n == nil {
				return writeErr(cmd, errNotFound("note", id))
			}
			if cmd.Flags().Changed("title") {
				n.Title = strings.TrimSpace(title)
			}
			if cmd.Flags().Changed("content") {
				body, err := readContent(cmd, content)
				if err != nil {
					return writeErr(cmd, err)
				}
				n.Content = strings.TrimSpace(body)
			}
			if n.Title == "" || n.Content == "" {
				return writeErr(cmd, errors.New("title and content are required"))
			}
			if err := ns.Update(cmd.Context(), p.ID, *n); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": noteOutFrom(*n)})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&content, "content", "", "New content (- reads stdin)")
	return cmd
}

func newNotesRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a note (deleting a missing note succeeds)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			p, ns, err := app.signedIn(cmd.Context(), cmd)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ns.Delete(cmd.Context(), p.ID, id); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": id, "deleted": true}})
		},
	}
}
