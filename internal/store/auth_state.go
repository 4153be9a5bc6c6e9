package store

import (
	"encoding/json"
	"errors"
	"os"

	"quicknotes/internal/model"
)

const AuthStateFileName = "auth.json"

// AuthState is the persisted half of the identity provider: the current
// session and the PKCE verifier of the last magic-link request.
//
// Callers should tolerate missing or invalid data; a corrupt file reads as empty.
type AuthState struct {
	Version      int            `json:"version"`
	Session      *model.Session `json:"session,omitempty"`
	CodeVerifier string         `json:"codeVerifier,omitempty"`
}

func (d Dir) AuthStatePath() string {
	return d.file(AuthStateFileName)
}

func (d Dir) LoadAuthState() (*AuthState, error) {
	b, err := os.ReadFile(d.AuthStatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &AuthState{Version: 1}, nil
		}
		return nil, err
	}
	var st AuthState
	if err := json.Unmarshal(b, &st); err != nil {
		return &AuthState{Version: 1}, nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	return &st, nil
}

func (d Dir) SaveAuthState(st *AuthState) error {
	if st == nil {
		st = &AuthState{}
	}
	if err := d.Ensure(); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	// Tokens live here: keep the file private to the user.
	return atomicWriteFile(d.Path, "auth.json.*.tmp", d.AuthStatePath(), b, 0o600)
}

// UpdateAuthState loads, applies fn and saves in one step.
func (d Dir) UpdateAuthState(fn func(st *AuthState)) error {
	st, err := d.LoadAuthState()
	if err != nil {
		return err
	}
	fn(st)
	return d.SaveAuthState(st)
}
