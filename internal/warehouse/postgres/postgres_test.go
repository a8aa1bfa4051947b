package postgres

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"avro_etl/internal/record"
	"avro_etl/internal/table"
)

func TestDDL(t *testing.T) {
	got := ddl(pgx.Identifier{"public", "rates"}, []string{"id", "note", "tok"}, []table.Kind{table.KindInt, table.KindNull, table.KindMap})
	want := []string{
		`CREATE TABLE IF NOT EXISTS "public"."rates" ("id" bigint, "note" text, "tok" jsonb)`,
		`ALTER TABLE "public"."rates" ADD COLUMN IF NOT EXISTS "id" bigint`,
		`ALTER TABLE "public"."rates" ADD COLUMN IF NOT EXISTS "note" text`,
		`ALTER TABLE "public"."rates" ADD COLUMN IF NOT EXISTS "tok" jsonb`,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ddl =\n%v\nwant\n%v", got, want)
	}
}

func TestSplitIdent(t *testing.T) {
	if got := splitIdent("public.rates"); !reflect.DeepEqual(got, pgx.Identifier{"public", "rates"}) {
		t.Fatalf("got %v", got)
	}
	if got := splitIdent("rates"); !reflect.DeepEqual(got, pgx.Identifier{"rates"}) {
		t.Fatalf("got %v", got)
	}
}

func TestPgValue(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{int32(3), int64(3)},
		{float32(0.5), float64(0.5)},
		{ts, ts},
		{map[string]any{"a": int64(1)}, `{"a":1}`},
		{[]any{"x", nil}, `["x",null]`},
	}
	for _, tc := range cases {
		got, err := pgValue(tc.in)
		if err != nil {
			t.Fatalf("pgValue(%#v): %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("pgValue(%#v) = %#v; want %#v", tc.in, got, tc.want)
		}
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, _, err := New(context.Background(), Config{DSN: "postgres://x"}); err == nil {
		t.Fatal("expected error without table")
	}
}

// Runs against a real database when AVROETL_TEST_PG_DSN is set.
func TestLoad_Integration(t *testing.T) {
	dsn := os.Getenv("AVROETL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AVROETL_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	l, closeFn, err := New(ctx, Config{DSN: dsn, Table: "avroetl_load_test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()

	tbl, err := table.Materialize([]record.Record{
		{"id": int64(7), "decoded_rate_token_a": int64(1)},
		{"id": int64(8), "decoded_rate_token_a": nil},
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	tx, err := l.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.Load(ctx, tbl)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("copied %d rows; want 2", n)
	}
	// leave nothing behind
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
}
