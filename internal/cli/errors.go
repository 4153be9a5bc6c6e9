package cli

import (
	"errors"
	"fmt"
)

var (
	errNotConfigured = errors.New("cloud sync is not configured (set supabase_url and supabase_anon_key)")
	errNotSignedIn   = errors.New("not signed in (run: quicknotes login <email>)")
)

type notFoundError struct {
	kind string
	id   string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.kind, e.id)
}

func errNotFound(kind, id string) error {
	return notFoundError{kind: kind, id: id}
}
