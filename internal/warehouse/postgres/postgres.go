// Package postgres copies a materialized table into a Postgres table inside a
// transaction the job commits only after the object write succeeds.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"avro_etl/internal/table"
)

// Config holds the connection string and target table ("schema.table" or "table").
type Config struct {
	DSN   string
	Table string
}

// Loader opens load transactions against a pool.
type Loader struct {
	pool  *pgxpool.Pool
	ident pgx.Identifier
}

// New connects a pool and returns a Loader and a close func.
func New(ctx context.Context, cfg Config) (*Loader, func(), error) {
	if cfg.DSN == "" || cfg.Table == "" {
		return nil, nil, fmt.Errorf("postgres: dsn and table are required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: pool: %w", err)
	}
	return &Loader{pool: pool, ident: splitIdent(cfg.Table)}, pool.Close, nil
}

func splitIdent(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// Tx is one load transaction.
type Tx struct {
	tx    pgx.Tx
	ident pgx.Identifier
}

// Begin starts a transaction.
func (l *Loader) Begin(ctx context.Context) (*Tx, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Tx{tx: tx, ident: l.ident}, nil
}

// Load creates the table if needed, adds any new columns and copies every row.
func (t *Tx) Load(ctx context.Context, tbl *table.Table) (int64, error) {
	cols := tbl.Columns()
	if len(cols) == 0 {
		return 0, nil
	}
	kinds := tbl.Kinds()

	for _, stmt := range ddl(t.ident, cols, kinds) {
		if _, err := t.tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("postgres: ddl: %w", err)
		}
	}

	rows := make([][]any, tbl.Len())
	for i := range rows {
		row := tbl.Row(i)
		for j, v := range row {
			cv, err := pgValue(v)
			if err != nil {
				return 0, fmt.Errorf("postgres: row %d column %q: %w", i, cols[j], err)
			}
			row[j] = cv
		}
		rows[i] = row
	}

	n, err := t.tx.CopyFrom(ctx, t.ident, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("postgres: copy into %s: %w", t.ident.Sanitize(), err)
	}
	log.Printf("postgres: copied %d rows into %s", n, t.ident.Sanitize())
	return n, nil
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

func pgType(k table.Kind) string {
	switch k {
	case table.KindBool:
		return "boolean"
	case table.KindInt:
		return "bigint"
	case table.KindFloat:
		return "double precision"
	case table.KindBytes:
		return "bytea"
	case table.KindTime:
		return "timestamptz"
	case table.KindMap, table.KindList:
		return "jsonb"
	}
	return "text"
}

// ddl returns the statements that make the target table able to receive cols.
func ddl(ident pgx.Identifier, cols []string, kinds []table.Kind) []string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c}.Sanitize() + " " + pgType(kinds[i])
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident.Sanitize(), strings.Join(defs, ", ")),
	}
	for _, d := range defs {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", ident.Sanitize(), d))
	}
	return stmts
}

// pgValue converts a cell into something pgx can encode for the column type
// picked by pgType.
func pgValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, []byte, time.Time, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return table.Text(v)
}
