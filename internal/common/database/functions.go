package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	_ "modernc.org/sqlite"
)

type PostgresConfig struct {
	// libpq style key/value pairs, e.g. host, port, user, password, dbname, sslmode
	Connection map[string]string
}

type SqliteConfig struct {
	// Path of the database file. The parent directory is created if missing.
	Path string
}

func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	keys := maps.Keys(values)
	sort.Strings(keys)
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"='"+replacer.Replace(values[k])+"'")
	}
	return strings.Join(parts, " ")
}

func OpenPgxPool(ctx context.Context, config PostgresConfig) (*pgxpool.Pool, error) {
	return OpenPgxPoolFromConnectionString(ctx, CreateConnectionString(config.Connection))
}

// OpenPgxPoolFromConnectionString opens a pool and checks that the database is reachable.
func OpenPgxPoolFromConnectionString(ctx context.Context, connection string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, connection)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	return db, nil
}

// OpenSqlite opens (creating if needed) the sqlite database at config.Path.
// SQLite only allows one writer at a time so the pool is limited to a single connection.
func OpenSqlite(config SqliteConfig) (*sql.DB, error) {
	dbDir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not make directory at %s for sqlite db", dbDir)
	}
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening sqlite db at %s", config.Path)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA synchronous = NORMAL", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "error executing %q", pragma)
		}
	}
	return db, nil
}
