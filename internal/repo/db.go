package repo

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/xxxsen/bizdir/internal/config"
	"github.com/xxxsen/bizdir/internal/pkg/dbutil"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps database/sql with the driver name so repos can pick placeholder
// style and vector encoding per dialect.
type DB struct {
	*sql.DB
	Driver string
}

func Open(cfg config.StorageConfig) (*DB, error) {
	switch cfg.Type {
	case DriverSQLite:
		db, err := sql.Open("sqlite", cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		return &DB{DB: db, Driver: DriverSQLite}, nil
	case DriverPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		return &DB{DB: db, Driver: DriverPostgres}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func (d *DB) finalize(query string, args []interface{}) (string, []interface{}) {
	if d.Driver == DriverPostgres {
		return dbutil.Finalize(query, args)
	}
	return query, args
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS businesses (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	city TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	lat REAL NOT NULL DEFAULT 0,
	lng REAL NOT NULL DEFAULT 0,
	rating REAL NOT NULL DEFAULT 0,
	ctime INTEGER NOT NULL,
	mtime INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_businesses_city ON businesses(city);
CREATE INDEX IF NOT EXISTS idx_businesses_category ON businesses(category);
CREATE TABLE IF NOT EXISTS business_embeddings (
	business_id TEXT NOT NULL,
	version TEXT NOT NULL,
	embedding BLOB NOT NULL,
	source_text TEXT NOT NULL DEFAULT '',
	mtime INTEGER NOT NULL,
	PRIMARY KEY (business_id, version)
);
CREATE TABLE IF NOT EXISTS embedding_status (
	business_id TEXT NOT NULL,
	version TEXT NOT NULL,
	status TEXT NOT NULL,
	has_embedding INTEGER NOT NULL DEFAULT 0,
	last_generated INTEGER NOT NULL DEFAULT 0,
	mtime INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (business_id, version)
);
CREATE INDEX IF NOT EXISTS idx_embedding_status_version ON embedding_status(version, status);
`

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS businesses (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	city TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	lat DOUBLE PRECISION NOT NULL DEFAULT 0,
	lng DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating DOUBLE PRECISION NOT NULL DEFAULT 0,
	ctime BIGINT NOT NULL,
	mtime BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_businesses_city ON businesses(city);
CREATE INDEX IF NOT EXISTS idx_businesses_category ON businesses(category);
CREATE TABLE IF NOT EXISTS business_embeddings (
	business_id TEXT NOT NULL,
	version TEXT NOT NULL,
	embedding vector NOT NULL,
	source_text TEXT NOT NULL DEFAULT '',
	mtime BIGINT NOT NULL,
	PRIMARY KEY (business_id, version)
);
CREATE TABLE IF NOT EXISTS embedding_status (
	business_id TEXT NOT NULL,
	version TEXT NOT NULL,
	status TEXT NOT NULL,
	has_embedding BOOLEAN NOT NULL DEFAULT FALSE,
	last_generated BIGINT NOT NULL DEFAULT 0,
	mtime BIGINT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (business_id, version)
);
CREATE INDEX IF NOT EXISTS idx_embedding_status_version ON embedding_status(version, status);
`

func ApplyMigrations(db *DB) error {
	schema := sqliteSchema
	if db.Driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, q := range strings.Split(schema, ";") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, err := db.Exec(q); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
