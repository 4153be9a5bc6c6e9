package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"quicknotes/internal/config"
	"quicknotes/internal/format"
	"quicknotes/internal/store"
)

type App struct {
	Dir        string
	Format     string
	PrettyJSON bool
	Verbose    bool

	// CallbackURL is a redirect address to finish sign-in from at TUI startup.
	CallbackURL string

	cfg   config.Config
	state store.Dir
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "quicknotes",
		Short:        "QuickNotes: magic-link notes synced to a Supabase-style backend",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  quicknotes

  # Sign in, then script against your notes
  quicknotes login you@example.com
  quicknotes notes list --format text

  # Run a local backend for development
  quicknotes devserver
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			// No subcommand => interactive TUI, unless stdout is not a terminal.
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return runNotesList(cmd, app)
			}
			return runTUI(cmd, app)
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.load()
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("QUICKNOTES_CONFIG_DIR", ""), "State and config directory (default ~/.quicknotes)")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("QUICKNOTES_FORMAT", "json"), "Output format (json|yaml|text)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Debug logging to stderr")

	cmd.Flags().StringVar(&app.CallbackURL, "callback-url", "", "Magic-link redirect URL to sign in from at startup")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newCallbackCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newNotesCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newThemeCmd(app))
	cmd.AddCommand(newUIDCmd(app))
	cmd.AddCommand(newDevserverCmd(app))

	return cmd
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
