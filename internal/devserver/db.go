package devserver

import (
	"context"
	"database/sql"
	"path/filepath"

	_ "modernc.org/sqlite"
)

func openDB(ctx context.Context, dir string, memory bool) (*sql.DB, error) {
	dsn := ":memory:"
	if !memory {
		dsn = filepath.Join(dir, "devserver.sqlite")
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: a :memory: database exists per connection, and a dev
	// server never needs concurrent writers.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS magic_links (
			nonce TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			code_challenge TEXT NOT NULL DEFAULT '',
			redirect_to TEXT NOT NULL DEFAULT '',
			used INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS flow_states (
			auth_code TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			code_challenge TEXT NOT NULL,
			expires_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			revoked INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_unixus INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_user_created ON notes(user_id, created_unixus);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}
