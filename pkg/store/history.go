// Package store persists completed calculations so a user can look back at
// their recent results.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 10

// Entry is one completed calculation.
type Entry struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Request   calculator.Request `json:"request"`
	Result    calculator.Result  `json:"result"`
	CreatedAt time.Time          `json:"created_at"`
}

// History records calculations per user.
type History interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
	Close() error
}

type dialect int

const (
	sqlite dialect = iota
	postgres
)

// rebind rewrites ? placeholders into $n for Postgres.
func (d dialect) rebind(q string) string {
	if d != postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const createTable = `CREATE TABLE IF NOT EXISTS calculations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	exporter INTEGER NOT NULL,
	importer INTEGER NOT NULL,
	category INTEGER NOT NULL,
	declared_value BIGINT NOT NULL,
	trade_condition INTEGER NOT NULL,
	base_tariff TEXT NOT NULL,
	effective_tariff TEXT NOT NULL,
	duty_payable DOUBLE PRECISION NOT NULL,
	ai_assisted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at BIGINT NOT NULL
)`

const createIndex = `CREATE INDEX IF NOT EXISTS calculations_user_created ON calculations (user_id, created_at DESC)`

const insertEntry = `INSERT INTO calculations (
	id, user_id, exporter, importer, category, declared_value, trade_condition,
	base_tariff, effective_tariff, duty_payable, ai_assisted, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRecent = `SELECT id, user_id, exporter, importer, category, declared_value, trade_condition,
	base_tariff, effective_tariff, duty_payable, ai_assisted, created_at
FROM calculations
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?`

// SQLHistory is a History over database/sql. SQLite and Postgres differ only
// in placeholder syntax.
type SQLHistory struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewSQLiteHistory wraps an open SQLite handle and migrates the schema.
func NewSQLiteHistory(db *sql.DB) (*SQLHistory, error) {
	return newSQLHistory(db, sqlite)
}

// NewPostgresHistory wraps an open Postgres handle and migrates the schema.
func NewPostgresHistory(db *sql.DB) (*SQLHistory, error) {
	return newSQLHistory(db, postgres)
}

func newSQLHistory(db *sql.DB, d dialect) (*SQLHistory, error) {
	h := &SQLHistory{db: db, dialect: d, now: time.Now}
	if err := h.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return h, nil
}

func (h *SQLHistory) migrate(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, createTable); err != nil {
		return err
	}
	_, err := h.db.ExecContext(ctx, createIndex)
	return err
}

// Open picks the driver from the DSN: postgres:// and postgresql:// URLs use
// lib/pq, anything else is a SQLite path or URI. An empty DSN opens a private
// in-memory SQLite database.
func Open(dsn string) (*SQLHistory, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		h, err := NewPostgresHistory(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return h, nil
	}

	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps a :memory: database alive across calls.
	db.SetMaxOpenConns(1)
	h, err := NewSQLiteHistory(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// Record stores e. A missing ID or timestamp is filled in.
func (h *SQLHistory) Record(ctx context.Context, e Entry) error {
	if e.UserID == "" {
		return errors.New("history entry has no user")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = h.now()
	}
	_, err := h.db.ExecContext(ctx, h.dialect.rebind(insertEntry),
		e.ID, e.UserID,
		e.Request.Exporter, e.Request.Importer, e.Request.Category, e.Request.DeclaredValue, e.Request.Condition,
		e.Result.BaseTariff, e.Result.EffectiveTariff, e.Result.DutyPayable, e.Result.AIAssisted,
		e.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert calculation: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for userID, newest first.
func (h *SQLHistory) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := h.db.QueryContext(ctx, h.dialect.rebind(selectRecent), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query calculations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.UserID,
			&e.Request.Exporter, &e.Request.Importer, &e.Request.Category, &e.Request.DeclaredValue, &e.Request.Condition,
			&e.Result.BaseTariff, &e.Result.EffectiveTariff, &e.Result.DutyPayable, &e.Result.AIAssisted,
			&created,
		); err != nil {
			return nil, fmt.Errorf("scan calculation: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *SQLHistory) Close() error { return h.db.Close() }
