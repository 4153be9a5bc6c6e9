package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quicknotes/internal/devserver"
)

func newDevserverCmd(app *App) *cobra.Command {
	var addr, dataDir, apiKey, publicURL string
	var memory bool

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local auth + notes backend for development",
		Long: strings.TrimSpace(`
Run a local stand-in for the hosted backend: magic-link auth under /auth/v1
and a notes table under /rest/v1, stored in SQLite.

Magic links are not emailed. They are printed to stderr and written to
<data>/outbox.
`),
		Example: strings.TrimSpace(`
quicknotes devserver --addr 127.0.0.1:54321
QUICKNOTES_SUPABASE_URL=http://127.0.0.1:54321 QUICKNOTES_SUPABASE_ANON_KEY=dev-anon-key quicknotes
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dataDir) == "" {
				dataDir = filepath.Join(app.state.Path, "devserver")
			}
			logger := app.logger(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := devserver.New(ctx, devserver.Config{
				Dir:       dataDir,
				Memory:    memory,
				APIKey:    apiKey,
				PublicURL: publicURL,
				Logger:    logger,
				OnMagicLink: func(email, link string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "magic link for %s: %s\n", email, link)
				},
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer srv.Close()

			ln, err := net.Listen("tcp", strings.TrimSpace(addr))
			if err != nil {
				return writeErr(cmd, err)
			}
			url := "http://" + ln.Addr().String()
			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"url":       url,
					"apiKey":    apiKey,
					"dir":       dataDir,
					"memory":    memory,
					"startedAt": time.Now().UTC().Format(time.RFC3339Nano),
				},
				"_hints": []string{
					"export QUICKNOTES_SUPABASE_URL=" + url,
					"export QUICKNOTES_SUPABASE_ANON_KEY=" + apiKey,
				},
			})

			hs := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = hs.Shutdown(shutdownCtx)
			}()
			if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return writeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:54321", "Bind address (host:port or :port)")
	cmd.Flags().StringVar(&dataDir, "data", "", "Data directory (default <state dir>/devserver)")
	cmd.Flags().StringVar(&apiKey, "api-key", "dev-anon-key", "Required apikey header value (empty disables the check)")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "Base URL used in magic links (default: request host)")
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep the database in memory")
	return cmd
}
