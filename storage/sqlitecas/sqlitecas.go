// Package sqlitecas stores objects in a single SQLite table.
//
// Raw 39-byte IDs are the primary key; SQLite compares BLOBs with memcmp, so
// ORDER BY id is ID order.
package sqlitecas

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS objects (
	id   BLOB PRIMARY KEY,
	size INTEGER NOT NULL,
	data BLOB NOT NULL
) WITHOUT ROWID`

const queryTimeout = 10 * time.Second

type CAS struct {
	sqlDB *sql.DB
	alg   digest.Algorithm
}

var (
	_ storage.CAS    = (*CAS)(nil)
	_ storage.Lister = (*CAS)(nil)
)

// Open opens (creating if needed) the database at path.
func Open(path string, alg digest.Algorithm) (*CAS, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlitecas: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitecas: open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlitecas: ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlitecas: create schema: %w", err)
	}
	return &CAS{sqlDB: sqlDB, alg: alg.OrDefault()}, nil
}

// Close closes the underlying database.
func (c *CAS) Close() error {
	if c == nil || c.sqlDB == nil {
		return nil
	}
	return c.sqlDB.Close()
}

func (c *CAS) Put(data []byte) (ocid.V0, error) {
	id, err := storage.Address(data, c.alg)
	if err != nil {
		return ocid.V0{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	res, err := c.sqlDB.ExecContext(ctx,
		`INSERT INTO objects (id, size, data) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		rowKey(id), int64(len(data)), data)
	if err != nil {
		return ocid.V0{}, fmt.Errorf("sqlitecas: put: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ocid.V0{}, fmt.Errorf("sqlitecas: put: %w", err)
	}
	if n == 0 {
		var existing []byte
		err := c.sqlDB.QueryRowContext(ctx, `SELECT data FROM objects WHERE id = ?`, rowKey(id)).Scan(&existing)
		if err != nil || !bytes.Equal(existing, data) {
			return ocid.V0{}, storage.ErrImmutable
		}
	}
	return id, nil
}

func (c *CAS) Get(id ocid.V0) ([]byte, error) {
	if id.IsEmpty() {
		return nil, storage.ErrInvalidID
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var data []byte
	err := c.sqlDB.QueryRowContext(ctx, `SELECT data FROM objects WHERE id = ?`, rowKey(id)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitecas: get: %w", err)
	}
	if err := storage.Verify(id, data, c.alg); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *CAS) Has(id ocid.V0) bool {
	if id.IsEmpty() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	var one int
	err := c.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE id = ?`, rowKey(id)).Scan(&one)
	return err == nil
}

// List returns every stored ID in raw byte order.
func (c *CAS) List() ([]ocid.V0, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	rows, err := c.sqlDB.QueryContext(ctx, `SELECT id FROM objects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitecas: list: %w", err)
	}
	defer rows.Close()

	var ids []ocid.V0
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlitecas: list: %w", err)
		}
		var id ocid.V0
		if err := id.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("sqlitecas: corrupt id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitecas: list: %w", err)
	}
	return ids, nil
}

// rowKey returns the primary key for id.
func rowKey(id ocid.V0) []byte {
	b := id.Bytes()
	return b[:]
}
