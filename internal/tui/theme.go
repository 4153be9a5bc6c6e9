package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"quicknotes/internal/store"
)

// The TUI must stay readable on light and dark terminals, so colors are
// adaptive and faint styling is only applied on dark backgrounds.

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

func faintIfDark(st lipgloss.Style) lipgloss.Style {
	if lipgloss.HasDarkBackground() {
		return st.Faint(true)
	}
	return st
}

var (
	colorMuted      = ac("240", "243")
	colorSelectedBg = ac("#e9e9e9", "#262626")
	colorSelectedFg = ac("235", "255")
	colorSurfaceBg  = ac("255", "235")
	colorSurfaceFg  = ac("235", "252")
	colorControlBg  = ac("252", "235")
	colorInputBg    = ac("254", "234")
	colorAccent     = ac("27", "62")
	colorSuccess    = ac("28", "42")
	colorError      = ac("160", "203")
)

func styleMuted() lipgloss.Style {
	return faintIfDark(lipgloss.NewStyle().Foreground(colorMuted))
}

// applyColorProfilePreference honors NO_COLOR and otherwise trusts the
// terminal, bumping the profile when TERM/COLORTERM claim more than the
// detector found.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	profile := termenv.ColorProfile()
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	colorterm := strings.ToLower(strings.TrimSpace(os.Getenv("COLORTERM")))
	if strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit") {
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	} else if strings.Contains(term, "256color") && (profile == termenv.Ascii || profile == termenv.ANSI) {
		profile = termenv.ANSI256
	}
	lipgloss.SetColorProfile(profile)
}

// applyThemePreference configures background detection.
//
// Priority:
// 1) the stored theme (light|dark)
// 2) QUICKNOTES_TUI_THEME=light|dark
// 3) COLORFGBG heuristic ("fg;bg")
// 4) termenv's background query
func applyThemePreference(stored string) {
	if t := store.NormalizeTheme(stored); t != "" {
		lipgloss.SetHasDarkBackground(t == store.ThemeDark)
		return
	}
	if t := store.NormalizeTheme(os.Getenv("QUICKNOTES_TUI_THEME")); t != "" {
		lipgloss.SetHasDarkBackground(t == store.ThemeDark)
		return
	}
	if v := strings.TrimSpace(os.Getenv("COLORFGBG")); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1])); err == nil {
			lipgloss.SetHasDarkBackground(bg < 7)
			return
		}
	}
	lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())
}

func currentTheme() string {
	if lipgloss.HasDarkBackground() {
		return store.ThemeDark
	}
	return store.ThemeLight
}

func otherTheme(t string) string {
	if t == store.ThemeDark {
		return store.ThemeLight
	}
	return store.ThemeDark
}
