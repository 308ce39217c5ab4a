package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DBPair holds the SQLite pools for play history. Writes go through a single
// connection; reads use a small read-only pool that WAL lets run alongside it.
type DBPair struct {
	reader *sql.DB
	writer *sql.DB
}

// Reader returns the read-only pool.
func (p *DBPair) Reader() *sql.DB { return p.reader }

// Writer returns the single-connection write pool.
func (p *DBPair) Writer() *sql.DB { return p.writer }

// Close closes both pools.
func (p *DBPair) Close() error {
	return errors.Join(
		wrapClose("reader", p.reader.Close()),
		wrapClose("writer", p.writer.Close()),
	)
}

type poolOptions struct {
	mode     string
	maxOpen  int
	maxIdle  int
	lifetime time.Duration
}

var (
	writerPool = poolOptions{mode: "rwc", maxOpen: 1, maxIdle: 1, lifetime: time.Hour}
	readerPool = poolOptions{mode: "ro", maxOpen: 4, maxIdle: 2, lifetime: time.Hour}
)

// Init opens the history database at dbPath, creating it and its parent
// directory if needed, and applies the schema. The caller must import a
// driver registered as "sqlite3".
func Init(dbPath string) (*DBPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	writer, err := open(dbPath, writerPool)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	// mode=ro cannot create the file, so the writer migrates first.
	for _, stmt := range []string{"PRAGMA journal_mode = WAL;", schemaSQL} {
		if _, err := writer.Exec(stmt); err != nil {
			writer.Close()
			return nil, fmt.Errorf("prepare database: %w", err)
		}
	}

	reader, err := open(dbPath, readerPool)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DBPair{reader: reader, writer: writer}, nil
}

func open(dbPath string, options poolOptions) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=%s", dbPath, options.mode)
	pool, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(options.maxOpen)
	pool.SetMaxIdleConns(options.maxIdle)
	pool.SetConnMaxLifetime(options.lifetime)
	return pool, nil
}

func wrapClose(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", name, err)
}
