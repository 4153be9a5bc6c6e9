package store

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
)

const prefsFileName = "prefs.json"

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type Prefs struct {
	Version int `json:"version"`
	// Theme is "light" or "dark"; empty means follow the terminal.
	Theme string `json:"theme,omitempty"`
}

func NormalizeTheme(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ThemeLight:
		return ThemeLight
	case ThemeDark:
		return ThemeDark
	default:
		return ""
	}
}

func (d Dir) LoadPrefs() (*Prefs, error) {
	b, err := os.ReadFile(d.file(prefsFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Prefs{Version: 1}, nil
		}
		return nil, err
	}
	var p Prefs
	if err := json.Unmarshal(b, &p); err != nil {
		return &Prefs{Version: 1}, nil
	}
	p.Theme = NormalizeTheme(p.Theme)
	if p.Version == 0 {
		p.Version = 1
	}
	return &p, nil
}

func (d Dir) SavePrefs(p *Prefs) error {
	if p == nil {
		return nil
	}
	if err := d.Ensure(); err != nil {
		return err
	}
	if p.Version == 0 {
		p.Version = 1
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(d.Path, "prefs.json.*.tmp", d.file(prefsFileName), b, 0o644)
}
