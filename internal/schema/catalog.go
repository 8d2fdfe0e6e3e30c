package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/database"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/observability"
)

type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// SQLLoader reads column metadata from information_schema.columns.
type SQLLoader struct {
	DB      *sql.DB
	Dialect database.Dialect
}

const mysqlColumnsQuery = `SELECT table_name, column_name, column_type, column_key
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`

// standardColumnsQuery derives MySQL-style key flags from the table
// constraints: PRI for primary keys, UNI for unique, MUL for foreign keys.
const standardColumnsQuery = `SELECT c.table_name, c.column_name, c.data_type,
  CASE MIN(CASE tc.constraint_type
      WHEN 'PRIMARY KEY' THEN 1
      WHEN 'UNIQUE' THEN 2
      WHEN 'FOREIGN KEY' THEN 3
    END)
    WHEN 1 THEN 'PRI'
    WHEN 2 THEN 'UNI'
    WHEN 3 THEN 'MUL'
    ELSE ''
  END AS column_key
FROM information_schema.columns c
LEFT JOIN information_schema.key_column_usage k
  ON k.table_schema = c.table_schema
  AND k.table_name = c.table_name
  AND k.column_name = c.column_name
LEFT JOIN information_schema.table_constraints tc
  ON tc.constraint_schema = k.constraint_schema
  AND tc.constraint_name = k.constraint_name
  AND tc.table_name = k.table_name
WHERE c.table_schema = current_schema()
GROUP BY c.table_name, c.column_name, c.data_type, c.ordinal_position
ORDER BY c.table_name, c.ordinal_position`

func columnsQuery(d database.Dialect) string {
	if d == database.DialectMySQL {
		return mysqlColumnsQuery
	}
	return standardColumnsQuery
}

func (l SQLLoader) Load(ctx context.Context) (*Snapshot, error) {
	if l.DB == nil {
		return nil, fmt.Errorf("%w: database handle is nil", ErrUnavailable)
	}
	conn, err := l.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrUnavailable, err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, columnsQuery(l.Dialect))
	if err != nil {
		return nil, fmt.Errorf("%w: query columns: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	builder := NewBuilder(l.Dialect.DisplayName())
	for rows.Next() {
		var (
			tableName string
			col       Column
			key       sql.NullString
		)
		if err := rows.Scan(&tableName, &col.Name, &col.DataType, &key); err != nil {
			return nil, fmt.Errorf("%w: scan column: %w", ErrUnavailable, err)
		}
		col.Key = key.String
		builder.Add(tableName, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate columns: %w", ErrUnavailable, err)
	}
	return builder.Build(), nil
}

const DefaultLoadTimeout = 30 * time.Second

// Catalog caches snapshots for TTL. A zero TTL loads a fresh snapshot on every
// call; concurrent loads collapse into one metadata query either way. The
// shared load is not tied to any one caller: a caller that goes away stops
// waiting, and the others still get the result.
type Catalog struct {
	loader Loader
	ttl    time.Duration
	Clock  func() time.Time
	// LoadTimeout bounds one shared metadata load.
	LoadTimeout time.Duration

	group    singleflight.Group
	mu       sync.Mutex
	current  *Snapshot
	loadedAt time.Time
}

func NewCatalog(loader Loader, ttl time.Duration) *Catalog {
	return &Catalog{loader: loader, ttl: ttl, Clock: time.Now, LoadTimeout: DefaultLoadTimeout}
}

func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	if c.ttl > 0 {
		c.mu.Lock()
		if c.current != nil && c.Clock().Sub(c.loadedAt) < c.ttl {
			snap := c.current
			c.mu.Unlock()
			return snap, nil
		}
		c.mu.Unlock()
	}

	results := c.group.DoChan("snapshot", func() (any, error) {
		timeout := c.LoadTimeout
		if timeout <= 0 {
			timeout = DefaultLoadTimeout
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		snap, err := c.loader.Load(loadCtx)
		observability.ObserveSchemaLoad(err)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.current = snap
		c.loadedAt = c.Clock()
		c.mu.Unlock()
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// Invalidate drops the cached snapshot so the next call reloads it.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}
