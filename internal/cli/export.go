package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"quicknotes/internal/export"
	"quicknotes/internal/render"
)

func newExportCmd(app *App) *cobra.Command {
	var as string
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your notes as Markdown or HTML",
		Example: strings.TrimSpace(`
quicknotes export > notes.md
quicknotes export --as html --out notes.html
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ns, err := app.signedIn(cmd.Context(), cmd)
			if err != nil {
				return writeErr(cmd, err)
			}
			notes, err := ns.List(cmd.Context(), p.ID)
			if err != nil {
				return writeErr(cmd, err)
			}

			var b []byte
			switch strings.ToLower(strings.TrimSpace(as)) {
			case "", "md", "markdown":
				b = []byte(export.Markdown(notes))
			case "html":
				b, err = export.HTML(notes, render.CountText(len(notes)))
				if err != nil {
					return writeErr(cmd, err)
				}
			default:
				return writeErr(cmd, fmt.Errorf("unknown export format: %s", as))
			}

			if strings.TrimSpace(out) == "" {
				_, err := cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"path": out, "count": render.CountText(len(notes))}})
		},
	}
	cmd.Flags().StringVar(&as, "as", "md", "Export format (md|html)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to a file instead of stdout")
	return cmd
}
