// Package store is the reference persistence service behind the remote
// contract: nodes and classification refs in SQLite (modernc.org/sqlite) or
// Postgres (pgx).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"arborescence/internal/remote"

	"github.com/google/uuid"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

type Store struct {
	db      *sql.DB
	dialect dialect
	log     *slog.Logger

	now func() time.Time
}

var (
	_ remote.Remote     = (*Store)(nil)
	_ remote.Mover      = (*Store)(nil)
	_ remote.Classifier = (*Store)(nil)
)

// Open opens the store named by dsn: a postgres:// or postgresql:// URL selects
// Postgres, anything else is a SQLite file path. The schema is migrated on open.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("missing store dsn")
	}

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = openPostgres(ctx, dsn)
		d = dialectPostgres
	} else {
		if dir := filepath.Dir(dsn); dir != "" && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		db, err = openSQLite(ctx, dsn)
		d = dialectSQLite
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, dialect: d, log: log, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the underlying database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Backend names the database flavour ("sqlite" or "postgres").
func (s *Store) Backend() string {
	if s.dialect == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			level TEXT NOT NULL,
			parent_id TEXT,
			sibling_index INTEGER NOT NULL,
			created_at_unixms BIGINT NOT NULL,
			updated_at_unixms BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id, sibling_index)`,
		`CREATE TABLE IF NOT EXISTS node_refs (
			node_id TEXT NOT NULL,
			ref_kind TEXT NOT NULL,
			ref_id TEXT NOT NULL,
			created_at_unixms BIGINT NOT NULL,
			PRIMARY KEY(node_id, ref_kind, ref_id)
		)`,
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	_, err := s.ensureMetaUUID(ctx, "store_id")
	return err
}

func (s *Store) ensureMetaUUID(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT v FROM meta WHERE k = ?`), key).Scan(&v)
	if err == nil && strings.TrimSpace(v) != "" {
		return v, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	v = uuid.NewString()
	if _, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO meta(k, v) VALUES(?, ?) ON CONFLICT (k) DO NOTHING`), key, v); err != nil {
		return "", err
	}
	return v, nil
}

// ID returns the store's stable identity (reported by the health endpoint).
func (s *Store) ID(ctx context.Context) (string, error) {
	return s.ensureMetaUUID(ctx, "store_id")
}

func (s *Store) nowMs() int64 { return s.now().UnixMilli() }
