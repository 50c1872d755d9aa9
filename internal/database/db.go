package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Driver names a supported warehouse engine.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverDuckDB   Driver = "duckdb"
)

// ParseDriver validates a driver name.
func ParseDriver(s string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(s))); d {
	case DriverSQLite, DriverPostgres, DriverDuckDB:
		return d, nil
	case "":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported warehouse driver %q", s)
	}
}

// Options configures a warehouse connection.
type Options struct {
	Driver Driver
	// DSN is a file path for sqlite and duckdb, a connection string for postgres.
	DSN string
	// Schema is the dataset the tables live in. Ignored for sqlite.
	Schema string
	Debug  bool
}

// NewDB opens a warehouse connection for the configured engine.
func NewDB(ctx context.Context, opts Options) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)

	switch opts.Driver {
	case DriverPostgres:
		db, err = openPostgres(ctx, opts)
	case DriverDuckDB:
		db, err = openDuckDB(ctx, opts)
	default:
		db, err = openSQLite(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return db, nil
}

func openSQLite(ctx context.Context, opts Options) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, opts.DSN)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection also keeps in-memory databases stable.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -64000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	return db, nil
}

func openPostgres(ctx context.Context, opts Options) (*bun.DB, error) {
	cfg, err := pgx.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.Schema != "" {
		cfg.RuntimeParams["search_path"] = opts.Schema
	}

	sqldb := stdlib.OpenDB(*cfg)
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if opts.Schema != "" {
		if _, err := db.NewRaw("CREATE SCHEMA IF NOT EXISTS ?", bun.Ident(opts.Schema)).Exec(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema %s: %w", opts.Schema, err)
		}
	}

	return db, nil
}

// DuckDB shares postgres quoting and literal formatting, so the pg dialect formats its queries.
func openDuckDB(ctx context.Context, opts Options) (*bun.DB, error) {
	sqldb, err := sql.Open("duckdb", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// USE is connection-scoped; keep exactly one connection alive.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	db := bun.NewDB(sqldb, pgdialect.New())

	if opts.Schema != "" {
		if _, err := db.NewRaw("CREATE SCHEMA IF NOT EXISTS ?", bun.Ident(opts.Schema)).Exec(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema %s: %w", opts.Schema, err)
		}
		if _, err := db.NewRaw("USE ?", bun.Ident(opts.Schema)).Exec(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("use schema %s: %w", opts.Schema, err)
		}
	}

	return db, nil
}
