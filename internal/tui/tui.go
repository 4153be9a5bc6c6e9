package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"quicknotes/internal/store"
	"quicknotes/internal/syncer"
)

// Engine is the part of the reconciler the TUI talks to.
type Engine interface {
	Dispatch(syncer.Action)
	Updates() <-chan syncer.State
	Snapshot() syncer.State
}

type Options struct {
	// Prefs is where the theme choice is persisted.
	Prefs  store.Dir
	Logger *slog.Logger
}

func Run(ctx context.Context, eng Engine, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	applyColorProfilePreference()
	theme := ""
	if p, err := opts.Prefs.LoadPrefs(); err == nil {
		theme = p.Theme
	} else {
		opts.Logger.Warn("load prefs", "err", err)
	}
	applyThemePreference(theme)

	m := newAppModel(eng, opts)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
