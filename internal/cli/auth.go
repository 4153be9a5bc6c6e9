package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quicknotes/internal/callback"
	"quicknotes/internal/model"
	"quicknotes/internal/redirect"
)

type principalOut struct {
	SignedIn  bool   `json:"signedIn"`
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (p principalOut) Text() string {
	if !p.SignedIn {
		return "not signed in"
	}
	return model.Principal{ID: p.ID, Email: p.Email}.Label()
}

func principalFrom(s *model.Session) principalOut {
	if s == nil {
		return principalOut{}
	}
	out := principalOut{SignedIn: true, ID: s.User.ID, Email: s.User.Email}
	if !s.ExpiresAt.IsZero() {
		out.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return out
}

func newLoginCmd(app *App) *cobra.Command {
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Email a magic sign-in link",
		Long: strings.TrimSpace(`
Request a magic sign-in link for <email>.

By default the command then listens on the redirect URL (redirect_url,
default http://127.0.0.1:8765/) and finishes sign-in when the link is
opened in a browser on this machine. With --wait=false it returns right
away; finish with ` + "`quicknotes callback <url>`" + ` later.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.cfg.Enabled() {
				return writeErr(cmd, errNotConfigured)
			}
			email := strings.TrimSpace(args[0])
			if email == "" {
				return writeErr(cmd, errors.New("missing email"))
			}
			logger := app.logger(cmd)
			idc := app.identity(logger)
			ctx := cmd.Context()

			var got chan string
			if wait {
				addr, err := app.cfg.CallbackAddr()
				if err != nil {
					return writeErr(cmd, err)
				}
				got = make(chan string, 1)
				lctx, cancel := context.WithCancel(ctx)
				defer cancel()
				srv := callback.New(addr, func(u string) {
					select {
					case got <- u:
					default:
					}
				}, logger)
				if err := srv.Start(lctx); err != nil {
					return writeErr(cmd, fmt.Errorf("callback listener: %w", err))
				}
			}

			if err := idc.RequestMagicLink(ctx, email, app.cfg.RedirectURL); err != nil {
				return writeErr(cmd, err)
			}
			if !wait {
				return writeOut(cmd, app, map[string]any{
					"data":   map[string]any{"email": email, "redirectTo": app.cfg.RedirectURL, "sent": true},
					"_hints": []string{"open the emailed link, then run: quicknotes callback <url>"},
				})
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Check your email for the login link (waiting on %s)...\n", app.cfg.RedirectURL)
			wctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			select {
			case u := <-got:
				res, err := redirect.Recover(wctx, u, idc)
				if err != nil {
					return writeErr(cmd, err)
				}
				return writeOut(cmd, app, map[string]any{"data": principalFrom(res.Session)})
			case <-wctx.Done():
				return writeErr(cmd, fmt.Errorf("no sign-in redirect within %s", timeout))
			}
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "Listen for the redirect and finish sign-in")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "How long to wait for the redirect")
	return cmd
}

func newCallbackCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "callback <url>",
		Short: "Finish sign-in from the address a magic link redirected to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.cfg.Enabled() {
				return writeErr(cmd, errNotConfigured)
			}
			idc := app.identity(app.logger(cmd))
			res, err := redirect.Recover(cmd.Context(), args[0], idc)
			if err != nil {
				return writeErr(cmd, err)
			}
			if res.Kind == redirect.KindNone {
				return writeErr(cmd, errors.New("no sign-in credential in url"))
			}
			return writeOut(cmd, app, map[string]any{
				"data": principalFrom(res.Session),
				"meta": map[string]any{"kind": res.Kind.String(), "cleanUrl": res.CleanURL},
			})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.cfg.Enabled() {
				return writeOut(cmd, app, principalOut{})
			}
			s, err := app.identity(app.logger(cmd)).CurrentSession(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, principalFrom(s))
		},
	}
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out (the local session is always cleared)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.cfg.Enabled() {
				return writeOut(cmd, app, map[string]any{"data": map[string]any{"signedOut": true, "remote": false}})
			}
			logger := app.logger(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), app.cfg.SignOutTimeout)
			defer cancel()
			err := app.identity(logger).SignOut(ctx)
			if err != nil {
				logger.Warn("remote sign out failed, local session cleared", "err", err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"signedOut": true, "remote": err == nil}})
		},
	}
}
