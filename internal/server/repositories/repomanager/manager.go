// Package repomanager opens the token store backend selected in the config
// and runs its schema migrations (via goose) where one is needed.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmfstudio/reportgate/internal/logging"
	sc "github.com/pmfstudio/reportgate/internal/server/config"
	"github.com/pmfstudio/reportgate/internal/server/migrations"
	"github.com/pmfstudio/reportgate/internal/server/objectstore"
	"github.com/pmfstudio/reportgate/internal/server/repositories/accesstokens"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Seams for tests.
var (
	sqlOpen = sql.Open

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}

	newObjectClient = func(ctx context.Context, c *sc.Config) (accesstokens.ObjectAPI, error) {
		return objectstore.NewClient(ctx, c)
	}
)

// Handle is an opened token store plus whatever must be released with it.
type Handle struct {
	Store   accesstokens.Store
	Backend string
	closeFn func() error
}

// Close releases the underlying database, if any.
func (h *Handle) Close() error {
	if h.closeFn == nil {
		return nil
	}
	return h.closeFn()
}

// Open builds the token store named by c.StoreBackend.
func Open(ctx context.Context, c *sc.Config, logger logging.Logger) (*Handle, error) {
	switch c.StoreBackend {
	case sc.BackendFile, "":
		logger.Info(ctx, "using file token store", "path", c.TokensDBPath)
		return &Handle{Store: accesstokens.NewFileStore(c.TokensDBPath), Backend: sc.BackendFile}, nil

	case sc.BackendSQLite:
		db, err := sqlOpen("sqlite", c.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		// one writer at a time; SQLite would answer SQLITE_BUSY otherwise
		db.SetMaxOpenConns(1)
		// writers in other processes wait for the lock instead of failing
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
			db.Close()
			return nil, fmt.Errorf("db init error: %w", err)
		}
		if err := RunMigrations(ctx, db, sc.BackendSQLite); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations error: %w", err)
		}
		logger.Info(ctx, "using sqlite token store", "path", c.SQLitePath)
		return &Handle{Store: accesstokens.NewSQLiteStore(db), Backend: sc.BackendSQLite, closeFn: db.Close}, nil

	case sc.BackendPostgres:
		db, err := sqlOpen("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		if err := RunMigrations(ctx, db, sc.BackendPostgres); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations error: %w", err)
		}
		logger.Info(ctx, "using postgres token store")
		return &Handle{Store: accesstokens.NewPostgresStore(db), Backend: sc.BackendPostgres, closeFn: db.Close}, nil

	case sc.BackendS3:
		client, err := newObjectClient(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		logger.Info(ctx, "using s3 token store", "bucket", c.S3Bucket, "key", c.S3TokensKey)
		return &Handle{Store: accesstokens.NewS3Store(client, c.S3Bucket, c.S3TokensKey), Backend: sc.BackendS3}, nil

	default:
		return nil, fmt.Errorf("unknown token store backend %q", c.StoreBackend)
	}
}

// RunMigrations applies the embedded migrations for backend ("sqlite" or
// "postgres") to db.
func RunMigrations(ctx context.Context, db *sql.DB, backend string) error {
	switch backend {
	case sc.BackendPostgres:
		goose.SetBaseFS(migrations.Postgres)
		if err := goose.SetDialect("pgx"); err != nil {
			return err
		}
	case sc.BackendSQLite:
		goose.SetBaseFS(migrations.SQLite)
		if err := goose.SetDialect("sqlite3"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("no migrations for backend %q", backend)
	}
	return gooseUpContext(ctx, db, backend)
}
