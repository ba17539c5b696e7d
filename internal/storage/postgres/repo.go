// Package postgres implements storage.Repository on pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tabular/internal/storage"
)

// maxParams is the wire protocol's bind parameter limit.
const maxParams = 65535

// Repo stores exports in Postgres. Inserts use ON CONFLICT (row_hash) DO
// NOTHING, so re-running an export is a no-op.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a pooled Repo for cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTable creates the schema (for "schema.table" names) and the table.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", spec.Name, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// InsertRows sends one INSERT per chunk inside a transaction.
func (r *Repo) InsertRows(ctx context.Context, spec storage.TableSpec, rows []storage.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := spec.ColumnNames()

	var total int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, chunk := range storage.Chunks(rows, len(cols), maxParams) {
			q, args := buildInsertSQL(spec.Name, cols, chunk)
			tag, err := tx.Exec(ctx, q, args...)
			if err != nil {
				return err
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// Constraints:
//   - every row carries len(columns) args.
//   - columns must be non-empty.
func buildInsertSQL(table string, columns []string, rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args, row.Args()...)
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent(storage.RowHashColumn))
	b.WriteString(") DO NOTHING;")
	return b.String(), args
}

// buildCreateSQL returns the optional CREATE SCHEMA statement and the
// CREATE TABLE statement for spec.
func buildCreateSQL(spec storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if err := spec.Validate(); err != nil {
		return "", "", err
	}
	if schema, _ := splitQualifiedName(spec.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	defs := []string{
		pgIdent(storage.RowIDColumn) + " BIGINT NOT NULL",
		pgIdent(storage.RunIDColumn) + " TEXT NOT NULL",
		pgIdent(storage.RowHashColumn) + " TEXT NOT NULL UNIQUE",
	}
	for _, c := range spec.Columns {
		defs = append(defs, pgIdent(c.Name)+" "+columnType(c.Type))
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgTableIdent(spec.Name), strings.Join(defs, ", "))
	return schemaSQL, tableSQL, nil
}

func columnType(t storage.ColumnType) string {
	switch t {
	case storage.Integer:
		return "BIGINT"
	case storage.Float:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// splitQualifiedName splits "schema.table". Anything other than exactly
// one dot is treated as an unqualified name.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}
