// Package postgres stores records as JSONB rows. Targets are schema.table and
// tables are created on first use.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/oklog/ulid"

	"workloadgen/internal/workload"
)

type Backend struct {
	db *sql.DB

	mu     sync.Mutex
	ready  map[string]bool
	idMu   sync.Mutex
	idRand io.Reader
}

func New(dsn string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	return &Backend{
		db:     db,
		ready:  make(map[string]bool),
		idRand: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// newID returns a lowercase ULID so ids sort by creation time.
func (b *Backend) newID() string {
	b.idMu.Lock()
	defer b.idMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), b.idRand).String())
}

// tableName quotes target as an identifier.
func tableName(t workload.Target) string {
	if t.Namespace == "" {
		return pq.QuoteIdentifier(t.Name)
	}
	return pq.QuoteIdentifier(t.Namespace) + "." + pq.QuoteIdentifier(t.Name)
}

func createStatements(t workload.Target) []string {
	var stmts []string
	if t.Namespace != "" {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(t.Namespace))
	}
	return append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	doc JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ
)`, tableName(t)))
}

func (b *Backend) ensureTable(ctx context.Context, t workload.Target) error {
	name := tableName(t)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready[name] {
		return nil
	}
	for _, stmt := range createStatements(t) {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres create %s: %w", name, err)
		}
	}
	b.ready[name] = true
	return nil
}

func (b *Backend) Insert(ctx context.Context, target workload.Target, rec workload.Record) (workload.ID, error) {
	if err := b.ensureTable(ctx, target); err != nil {
		return "", err
	}
	doc, err := json.Marshal(rec.Fields)
	if err != nil {
		return "", fmt.Errorf("postgres encode: %w", err)
	}
	id := b.newID()
	q := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2)", tableName(target))
	if _, err := b.db.ExecContext(ctx, q, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (b *Backend) UpdateByID(ctx context.Context, target workload.Target, id workload.ID, patch workload.Patch) (int64, error) {
	doc, err := json.Marshal(patch)
	if err != nil {
		return 0, fmt.Errorf("postgres encode: %w", err)
	}
	q := fmt.Sprintf("UPDATE %s SET doc = doc || $2::jsonb, updated_at = now() WHERE id = $1", tableName(target))
	return b.exec(ctx, q, id, doc)
}

func (b *Backend) DeleteByID(ctx context.Context, target workload.Target, id workload.ID) (int64, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE id = $1", tableName(target))
	return b.exec(ctx, q, id)
}

func (b *Backend) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := b.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *Backend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *Backend) Close(context.Context) error { return b.db.Close() }
