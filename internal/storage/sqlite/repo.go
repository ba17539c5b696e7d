// Package sqlite implements storage.Repository on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"tabular/internal/storage"
)

// maxParams is SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const maxParams = 32766

// Repo stores exports in a SQLite database. The row_hash UNIQUE constraint
// plus INSERT OR IGNORE makes inserts idempotent.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a file path or "file:" URI).
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// InsertRows writes rows in one transaction.
func (r *Repo) InsertRows(ctx context.Context, spec storage.TableSpec, rows []storage.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := spec.ColumnNames()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, chunk := range storage.Chunks(rows, len(cols), maxParams) {
		q, args := buildInsertSQL(spec.Name, cols, chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildCreateSQL(spec storage.TableSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	defs := []string{
		sqlIdent(storage.RowIDColumn) + " INTEGER NOT NULL",
		sqlIdent(storage.RunIDColumn) + " TEXT NOT NULL",
		sqlIdent(storage.RowHashColumn) + " TEXT NOT NULL UNIQUE",
	}
	for _, c := range spec.Columns {
		defs = append(defs, sqlIdent(c.Name)+" "+columnType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", sqlIdent(spec.Name), strings.Join(defs, ", ")), nil
}

func columnType(t storage.ColumnType) string {
	switch t {
	case storage.Integer:
		return "INTEGER"
	case storage.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

// buildInsertSQL builds one multi-row INSERT OR IGNORE and its args.
func buildInsertSQL(table string, columns []string, rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		args = append(args, row.Args()...)
	}
	return b.String(), args
}

// sqlIdent quotes an identifier with double quotes.
func sqlIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
