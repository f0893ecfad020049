// Package sqlstore implements storage.Storage over database/sql against a
// MySQL-wire server, so the same single physical table works unmodified
// against either a real MySQL server or a Dolt SQL server (the teacher's
// internal/storage/dolt package runs Dolt the identical way, over the
// go-sql-driver/mysql wire protocol, once it leaves embedded mode).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/dolthub/driver"        // registers the "dolt" sql.DB driver
	_ "github.com/go-sql-driver/mysql"  // registers the "mysql" sql.DB driver

	"github.com/flowcanon/canon/internal/storage"
)

// Config selects the driver and connection target.
type Config struct {
	// Driver is "mysql" (default) or "dolt" (embedded, file-path DSN).
	Driver string
	// DSN is the driver-specific data source name, e.g.
	// "canon@tcp(127.0.0.1:3306)/canon?parseTime=true" for mysql, or a
	// local directory path for the dolt embedded driver.
	DSN string
	// Table overrides the default physical table name ("canon_records").
	Table string
}

const defaultTable = "canon_records"

// Store is a database/sql-backed storage.Storage adapter. Every logical
// set/id pair lives as one row of a single physical table, the same
// "everything is one table keyed by a couple of columns" shape the
// teacher's resources.go uses for its own auxiliary tables.
type Store struct {
	db    *sql.DB
	table string
}

var _ storage.Storage = (*Store)(nil)

// resolveConfig fills in cfg's defaults, split out from Open so the
// defaulting logic is unit-testable without a live connection.
func resolveConfig(cfg Config) (driver, table string) {
	driver = cfg.Driver
	if driver == "" {
		driver = "mysql"
	}
	table = cfg.Table
	if table == "" {
		table = defaultTable
	}
	return driver, table
}

// Open connects to cfg's target and ensures the backing table exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, table := resolveConfig(cfg)

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, table: table}
	if err := storage.WithRetry(ctx, func() error { return s.ensureSchema(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// schemaDDL builds the CREATE TABLE statement for table, split out for
// unit testing without a live connection.
func schemaDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		set_name VARCHAR(255) NOT NULL,
		id VARCHAR(255) NOT NULL,
		seq BIGINT NOT NULL AUTO_INCREMENT,
		body JSON NOT NULL,
		PRIMARY KEY (set_name, id),
		UNIQUE KEY %s_seq (seq)
	)`, table, table)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL(s.table))
	return classify(err)
}

func (s *Store) GetRaw(ctx context.Context, set, id string) ([]byte, error) {
	var body []byte
	q := fmt.Sprintf("SELECT body FROM %s WHERE set_name = ? AND id = ?", s.table)
	err := storage.WithRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, q, set, id)
		if err := row.Scan(&body); err != nil {
			if err == sql.ErrNoRows {
				return err
			}
			return classify(err)
		}
		return nil
	})
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// UpsertRaw inserts or replaces the body under (set, id). An update keeps
// the row's original seq, so PageRaw orders records by first insertion;
// unlike memory.Store, a rewrite does not move a record to the end.
func (s *Store) UpsertRaw(ctx context.Context, set, id string, data []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s (set_name, id, body) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE body = VALUES(body), seq = seq`, s.table)
	return storage.WithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, q, set, id, data)
		return classify(err)
	})
}

func (s *Store) Delete(ctx context.Context, set, id string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE set_name = ? AND id = ?", s.table)
	return storage.WithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, q, set, id)
		return classify(err)
	})
}

func (s *Store) PageRaw(ctx context.Context, set string, page, pageSize int) ([][]byte, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	offset := pageOffset(page, pageSize)
	q := fmt.Sprintf("SELECT body FROM %s WHERE set_name = ? ORDER BY seq ASC LIMIT ? OFFSET ?", s.table)

	var out [][]byte
	err := storage.WithRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, q, set, pageSize, offset)
		if err != nil {
			return classify(err)
		}
		defer rows.Close()
		for rows.Next() {
			var body []byte
			if err := rows.Scan(&body); err != nil {
				return classify(err)
			}
			out = append(out, body)
		}
		return classify(rows.Err())
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = [][]byte{}
	}
	return out, nil
}

// pageOffset computes the SQL OFFSET for a 1-indexed page, split out for
// unit testing.
func pageOffset(page, pageSize int) int {
	return (page - 1) * pageSize
}

func (s *Store) Count(ctx context.Context, set string) (int64, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE set_name = ?", s.table)
	var n int64
	err := storage.WithRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, q, set)
		return classify(row.Scan(&n))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// classify tags driver errors as transient or permanent per the same
// substring taxonomy the teacher's isRetryableError uses for its
// go-sql-driver/mysql server-mode connections.
func classify(err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	for _, substr := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
		"lost connection",
		"gone away",
		"i/o timeout",
		"unknown database",
	} {
		if strings.Contains(lower, substr) {
			return storage.WrapTransient("sqlstore", err)
		}
	}
	return storage.WrapPermanent("sqlstore", err)
}
