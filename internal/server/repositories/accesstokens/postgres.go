package accesstokens

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmfstudio/reportgate/internal/dbx"
	"github.com/pmfstudio/reportgate/internal/server/models"
)

// writerLockKey names the transaction-scoped advisory lock that serializes
// writers of access_tokens across every connected process.
const writerLockKey int64 = 0x72676174_6f6b656e

// PostgresStore keeps records in the access_tokens table of a PostgreSQL
// database reached through the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database whose schema is already migrated.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context) ([]models.AccessToken, error) {
	return s.load(ctx, s.db)
}

func (s *PostgresStore) load(ctx context.Context, q dbx.DBTX) ([]models.AccessToken, error) {
	query := `
		SELECT token, label, perm, expires_at, created_at, active
		FROM access_tokens
		ORDER BY seq
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable(fmt.Errorf("db error: %w", err))
	}
	defer rows.Close()

	var tokens []models.AccessToken
	for rows.Next() {
		var (
			t       models.AccessToken
			perm    string
			created sql.NullTime
		)
		if err := rows.Scan(&t.Token, &t.Label, &perm, &t.ExpiresAt, &created, &t.Active); err != nil {
			return nil, corrupt(fmt.Errorf("scan error: %w", err))
		}
		if t.Perm, err = models.ParsePermission(perm); err != nil {
			return nil, corrupt(err)
		}
		t.ExpiresAt = t.ExpiresAt.UTC()
		if created.Valid {
			t.CreatedAt = created.Time.UTC()
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(fmt.Errorf("db error: %w", err))
	}
	return tokens, nil
}

func (s *PostgresStore) Save(ctx context.Context, tokens []models.AccessToken) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockWriters(ctx, tx); err != nil {
			return err
		}
		return s.replace(ctx, tx, tokens)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Update reads and rewrites the table in one READ COMMITTED transaction
// behind the advisory lock, so every statement after the lock sees the
// commits of the previous holder.
func (s *PostgresStore) Update(ctx context.Context, fn UpdateFunc) error {
	var fnErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockWriters(ctx, tx); err != nil {
			return err
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

func lockWriters(ctx context.Context, tx dbx.DBTX) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, writerLockKey); err != nil {
		return fmt.Errorf("error acquiring writer lock: %w", err)
	}
	return nil
}

func (s *PostgresStore) replace(ctx context.Context, tx dbx.DBTX, tokens []models.AccessToken) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM access_tokens`); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	query := `
		INSERT INTO access_tokens (seq, token, label, perm, expires_at, created_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, t := range tokens {
		var created sql.NullTime
		if !t.CreatedAt.IsZero() {
			created = sql.NullTime{Time: t.CreatedAt.UTC(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, query, i, t.Token, t.Label, t.Perm.String(), t.ExpiresAt.UTC(), created, t.Active); err != nil {
			return fmt.Errorf("error performing sql request: %w", err)
		}
	}
	return nil
}
