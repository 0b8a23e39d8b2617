package accesstokens

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmfstudio/reportgate/internal/dbx"
	"github.com/pmfstudio/reportgate/internal/server/models"
)

// SQLiteStore keeps records in the access_tokens table of a SQLite
// database. Timestamps are stored as RFC 3339 UTC text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database whose schema is already migrated.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context) ([]models.AccessToken, error) {
	return s.load(ctx, s.db)
}

func (s *SQLiteStore) load(ctx context.Context, q dbx.DBTX) ([]models.AccessToken, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT token, label, perm, expires_at, created_at, active
		FROM access_tokens
		ORDER BY seq
	`)
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to list access tokens: %w", err))
	}
	defer rows.Close()

	var tokens []models.AccessToken
	for rows.Next() {
		var (
			token, label, perm, expires string
			created                     sql.NullString
			active                      bool
		)
		if err := rows.Scan(&token, &label, &perm, &expires, &created, &active); err != nil {
			return nil, corrupt(fmt.Errorf("failed to scan access token row: %w", err))
		}
		rec := recordIn{Label: label, Perm: perm, ExpiresAt: expires, CreatedAt: created.String, Active: &active}
		t, err := rec.toModel(token)
		if err != nil {
			return nil, corrupt(err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(fmt.Errorf("failed to iterate access token rows: %w", err))
	}
	return tokens, nil
}

func (s *SQLiteStore) Save(ctx context.Context, tokens []models.AccessToken) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.replace(ctx, tx, tokens)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Update reads and rewrites the table in one transaction. Its first
// statement is a write, so the database lock is taken before the read and
// writers in other processes wait on busy_timeout instead of interleaving.
func (s *SQLiteStore) Update(ctx context.Context, fn UpdateFunc) error {
	var fnErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `UPDATE access_tokens SET active = active WHERE 0`); err != nil {
			return fmt.Errorf("failed to lock access tokens: %w", err)
		}
		tokens, err := s.load(ctx, tx)
		if err != nil {
			fnErr = err
			return err
		}
		next, err := fn(tokens)
		if err != nil || next == nil {
			fnErr = err
			return err
		}
		return s.replace(ctx, tx, next)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *SQLiteStore) replace(ctx context.Context, tx dbx.DBTX, tokens []models.AccessToken) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM access_tokens`); err != nil {
		return fmt.Errorf("failed to clear access tokens: %w", err)
	}
	for i, t := range tokens {
		var created sql.NullString
		if !t.CreatedAt.IsZero() {
			created = sql.NullString{String: FormatTime(t.CreatedAt), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO access_tokens (seq, token, label, perm, expires_at, created_at, active)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, i, t.Token, t.Label, t.Perm.String(), FormatTime(t.ExpiresAt), created, t.Active); err != nil {
			return fmt.Errorf("failed to insert access token: %w", err)
		}
	}
	return nil
}
