package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"QUICKNOTES_SUPABASE_URL", "SUPABASE_URL",
		"QUICKNOTES_SUPABASE_ANON_KEY", "SUPABASE_ANON_KEY",
		"QUICKNOTES_REDIRECT_URL", "QUICKNOTES_OFFLINE",
		"QUICKNOTES_SIGN_OUT_TIMEOUT", "QUICKNOTES_STATUS_TTL", "QUICKNOTES_REQUEST_TIMEOUT",
		"QUICKNOTES_LOG_FILE", "QUICKNOTES_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsAreDisabled(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("expected disabled config without url/key")
	}
	if cfg.SignOutTimeout != 8*time.Second {
		t.Fatalf("expected 8s sign-out timeout, got %s", cfg.SignOutTimeout)
	}
	if cfg.StatusTTL != 3*time.Second {
		t.Fatalf("expected 3s status ttl, got %s", cfg.StatusTTL)
	}
	if cfg.RedirectURL != DefaultRedirectURL {
		t.Fatalf("expected default redirect url, got %q", cfg.RedirectURL)
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yml := "supabase_url: https://file.example.co/\nsupabase_anon_key: file-key\nsign_out_timeout: 2s\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SUPABASE_ANON_KEY", "env-key")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SupabaseURL != "https://file.example.co" {
		t.Fatalf("expected trimmed file url, got %q", cfg.SupabaseURL)
	}
	if cfg.SupabaseAnonKey != "env-key" {
		t.Fatalf("expected env key to win, got %q", cfg.SupabaseAnonKey)
	}
	if cfg.SignOutTimeout != 2*time.Second {
		t.Fatalf("expected 2s from file, got %s", cfg.SignOutTimeout)
	}
	if !cfg.Enabled() {
		t.Fatalf("expected enabled config")
	}
	if cfg.Dir != dir {
		t.Fatalf("expected dir to be kept, got %q", cfg.Dir)
	}
}

func TestLoad_OfflineFlagDisables(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUICKNOTES_SUPABASE_URL", "https://x.example.co")
	t.Setenv("QUICKNOTES_SUPABASE_ANON_KEY", "k")
	t.Setenv("QUICKNOTES_OFFLINE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("expected offline to disable the client")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("supabase_url: [\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCallbackAddr(t *testing.T) {
	cases := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "http://127.0.0.1:8765/", want: "127.0.0.1:8765"},
		{url: "http://localhost/", want: "localhost:80"},
		{url: "https://notes.example.com/", wantErr: true},
		{url: "http:///nohost", wantErr: true},
	}
	for _, tc := range cases {
		cfg := Config{RedirectURL: tc.url}
		got, err := cfg.CallbackAddr()
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error, got %q", tc.url, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.url, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.url, tc.want, got)
		}
	}
}
