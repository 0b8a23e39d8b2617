package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pmfstudio/reportgate/internal/logging"
	sc "github.com/pmfstudio/reportgate/internal/server/config"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/repositories/accesstokens"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens_db.json")
	h, err := Open(context.Background(), &sc.Config{StoreBackend: sc.BackendFile, TokensDBPath: path}, logging.Nop())
	require.NoError(t, err)
	defer h.Close()

	fs, ok := h.Store.(*accesstokens.FileStore)
	require.True(t, ok, "expected *FileStore, got %T", h.Store)
	assert.Equal(t, path, fs.Path())
	assert.Equal(t, sc.BackendFile, h.Backend)
	assert.NoError(t, h.Close())
}

func TestOpen_SQLiteBackendRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")
	ctx := context.Background()

	h, err := Open(ctx, &sc.Config{StoreBackend: sc.BackendSQLite, SQLitePath: path}, logging.Nop())
	require.NoError(t, err)
	defer h.Close()

	tok := models.AccessToken{
		Token:     "abc",
		Label:     "label",
		Perm:      models.PermissionFull,
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:    true,
	}
	require.NoError(t, h.Store.Save(ctx, []models.AccessToken{tok}))

	got, err := h.Store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.AccessToken{tok}, got)
}

func TestOpen_PostgresBackend(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)

	origOpen, origUp := sqlOpen, gooseUpContext
	t.Cleanup(func() { sqlOpen, gooseUpContext = origOpen, origUp })

	var gotDriver, gotDSN, gotDir string
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	}
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	h, err := Open(context.Background(), &sc.Config{StoreBackend: sc.BackendPostgres, DatabaseDSN: "postgres://x"}, logging.Nop())
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, "postgres://x", gotDSN)
	assert.Equal(t, "postgres", gotDir)
	assert.IsType(t, &accesstokens.PostgresStore{}, h.Store)
}

func TestOpen_PostgresMigrationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	origOpen, origUp := sqlOpen, gooseUpContext
	t.Cleanup(func() { sqlOpen, gooseUpContext = origOpen, origUp })

	sqlOpen = func(string, string) (*sql.DB, error) { return db, nil }
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	_, err = Open(context.Background(), &sc.Config{StoreBackend: sc.BackendPostgres}, logging.Nop())
	require.ErrorContains(t, err, "migrations error: boom")
	require.NoError(t, mock.ExpectationsWereMet(), "db must be closed on failure")
}

func TestOpen_S3Backend(t *testing.T) {
	orig := newObjectClient
	t.Cleanup(func() { newObjectClient = orig })

	newObjectClient = func(ctx context.Context, c *sc.Config) (accesstokens.ObjectAPI, error) {
		return nil, errors.New("bad credentials")
	}
	_, err := Open(context.Background(), &sc.Config{StoreBackend: sc.BackendS3}, logging.Nop())
	require.ErrorContains(t, err, "s3 init error: bad credentials")
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), &sc.Config{StoreBackend: "redis"}, logging.Nop())
	require.ErrorContains(t, err, `unknown token store backend "redis"`)
}

func TestRunMigrations_UnknownBackend(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, RunMigrations(context.Background(), db, "file"))
}
