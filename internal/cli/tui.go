package cli

import (
	"context"

	"github.com/spf13/cobra"

	"quicknotes/internal/callback"
	"quicknotes/internal/syncer"
	"quicknotes/internal/tui"
)

func runTUI(cmd *cobra.Command, app *App) error {
	logger, closeLog := app.tuiLogger()
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	opts := []syncer.Option{
		syncer.WithLogger(logger),
		syncer.WithSignOutDeadline(app.cfg.SignOutTimeout),
		syncer.WithStatusTTL(app.cfg.StatusTTL),
		syncer.WithRequestTimeout(app.cfg.RequestTimeout),
		syncer.WithCallbackURL(app.cfg.RedirectURL),
	}

	var eng *syncer.Engine
	if app.cfg.Enabled() {
		idc := app.identity(logger)
		eng = syncer.New(idc, app.notes(idc, logger), opts...)

		// Sign-ins and sign-outs from other quicknotes processes.
		go func() {
			if err := idc.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("watch auth state", "err", err)
			}
		}()

		if addr, err := app.cfg.CallbackAddr(); err != nil {
			logger.Warn("callback listener disabled", "err", err)
		} else {
			srv := callback.New(addr, func(u string) {
				eng.Dispatch(syncer.RecoverRedirect{URL: u})
			}, logger)
			if err := srv.Start(ctx); err != nil {
				logger.Warn("callback listener unavailable, paste links with u", "addr", addr, "err", err)
			}
		}
	} else {
		logger.Info("cloud sync not configured, running local only")
		eng = syncer.New(nil, nil, opts...)
	}

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, app.CallbackURL) }()

	err := tui.Run(ctx, eng, tui.Options{Prefs: app.state, Logger: logger})
	cancel()
	if runErr := <-done; runErr != nil {
		logger.Warn("engine stopped", "err", runErr)
	}
	return err
}
