package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"quicknotes/internal/config"
	"quicknotes/internal/identity"
	"quicknotes/internal/model"
	"quicknotes/internal/notestore"
	"quicknotes/internal/store"
)

func (a *App) load() error {
	d, err := store.Open(a.Dir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(d.Path)
	if err != nil {
		return err
	}
	a.state = d
	a.cfg = cfg
	return nil
}

func (a *App) level() slog.Level {
	if a.Verbose {
		return slog.LevelDebug
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(a.cfg.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// logger writes text logs to the command's stderr.
func (a *App) logger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: a.level()}))
}

// tuiLogger keeps logs off the screen: log_file when set, otherwise nowhere.
// The returned close func is never nil.
func (a *App) tuiLogger() (*slog.Logger, func()) {
	path := strings.TrimSpace(a.cfg.LogFile)
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: a.level()})), func() { _ = f.Close() }
}

func (a *App) identity(logger *slog.Logger) *identity.Client {
	return identity.New(identity.Options{
		BaseURL: a.cfg.SupabaseURL,
		APIKey:  a.cfg.SupabaseAnonKey,
		State:   a.state,
		Logger:  logger,
	})
}

func (a *App) notes(tokens notestore.TokenSource, logger *slog.Logger) *notestore.Client {
	return notestore.NewClient(notestore.Options{
		BaseURL: a.cfg.SupabaseURL,
		APIKey:  a.cfg.SupabaseAnonKey,
		Tokens:  tokens,
		Logger:  logger,
	})
}

// signedIn resolves the current principal and a note store bound to it.
func (a *App) signedIn(ctx context.Context, cmd *cobra.Command) (model.Principal, *notestore.Client, error) {
	if !a.cfg.Enabled() {
		return model.Principal{}, nil, errNotConfigured
	}
	logger := a.logger(cmd)
	idc := a.identity(logger)
	s, err := idc.CurrentSession(ctx)
	if err != nil {
		return model.Principal{}, nil, err
	}
	if s == nil {
		return model.Principal{}, nil, errNotSignedIn
	}
	return s.User, a.notes(idc, logger), nil
}

func isNotSignedIn(err error) bool {
	return errors.Is(err, errNotSignedIn) || errors.Is(err, identity.ErrNoSession)
}
