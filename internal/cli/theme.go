package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quicknotes/internal/store"
)

func newThemeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark|auto]",
		Short:     "Show or set the TUI theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{store.ThemeLight, store.ThemeDark, "auto"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.state.LoadPrefs()
			if err != nil {
				return writeErr(cmd, err)
			}
			if len(args) == 1 {
				t := store.NormalizeTheme(args[0])
				if t == "" && args[0] != "auto" {
					return writeErr(cmd, fmt.Errorf("unknown theme: %s", args[0]))
				}
				p.Theme = t
				if err := app.state.SavePrefs(p); err != nil {
					return writeErr(cmd, err)
				}
			}
			theme := p.Theme
			if theme == "" {
				theme = "auto"
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"theme": theme}})
		},
	}
}
