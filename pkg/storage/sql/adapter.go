// Package sql stores settings records as JSON payloads in a single table,
// one row per storage key. Queries are built with squirrel so the same
// adapter serves SQLite (? placeholders) and Postgres ($n placeholders).
package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/storage"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "settings_records"

// Adapter implements settings.StorageAdapter on database/sql.
type Adapter struct {
	db          *sql.DB
	table       string
	placeholder squirrel.PlaceholderFormat
	now         func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(a *Adapter) {
		if table != "" {
			a.table = table
		}
	}
}

// WithPlaceholder sets the bind parameter style, e.g. squirrel.Dollar for
// Postgres. The default is squirrel.Question.
func WithPlaceholder(format squirrel.PlaceholderFormat) Option {
	return func(a *Adapter) {
		if format != nil {
			a.placeholder = format
		}
	}
}

// New returns an adapter over db.
func New(db *sql.DB, opts ...Option) *Adapter {
	a := &Adapter{
		db:          db,
		table:       DefaultTable,
		placeholder: squirrel.Question,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// EnsureSchema creates the table when it does not exist.
func (a *Adapter) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	storage_key TEXT PRIMARY KEY,
	identity TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`, a.table)
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sql: create table %s: %w", a.table, err)
	}
	return nil
}

// Load implements settings.StorageAdapter.
func (a *Adapter) Load(ctx context.Context, target settings.Target) (*settings.NormalizedMap, error) {
	key, err := storage.Key(target)
	if err != nil {
		return nil, err
	}
	query, args, err := squirrel.Select("payload").
		From(a.table).
		Where(squirrel.Eq{"storage_key": key}).
		PlaceholderFormat(a.placeholder).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sql: build select: %w", err)
	}
	var payload string
	err = a.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.NewNormalizedMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sql: select %s: %w", key, err)
	}
	out := settings.NewNormalizedMap()
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return nil, fmt.Errorf("sql: decode %s: %w", key, err)
	}
	return out, nil
}

// Save implements settings.StorageAdapter with an upsert on storage_key.
func (a *Adapter) Save(ctx context.Context, target settings.Target, data *settings.NormalizedMap) error {
	key, err := storage.Key(target)
	if err != nil {
		return err
	}
	if data == nil {
		data = settings.NewNormalizedMap()
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sql: encode %s: %w", key, err)
	}
	query, args, err := squirrel.Insert(a.table).
		Columns("storage_key", "identity", "payload", "updated_at").
		Values(key, target.Identity, string(payload), a.now().UTC()).
		Suffix("ON CONFLICT (storage_key) DO UPDATE SET identity = excluded.identity, payload = excluded.payload, updated_at = excluded.updated_at").
		PlaceholderFormat(a.placeholder).
		ToSql()
	if err != nil {
		return fmt.Errorf("sql: build upsert: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sql: upsert %s: %w", key, err)
	}
	return nil
}
