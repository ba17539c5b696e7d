package mssql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabular/internal/storage"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeTx struct {
	queries    []string
	args       [][]any
	failOn     int
	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	if f.failOn > 0 && len(f.queries) == f.failOn {
		return nil, errors.New("exec failed")
	}
	return fakeResult(len(args) / 4), nil
}

func (f *fakeTx) Commit() error   { f.committed = true; return nil }
func (f *fakeTx) Rollback() error { f.rolledBack = true; return nil }

type fakeDB struct {
	tx   *fakeTx
	exec []string
}

func (f *fakeDB) ExecContext(_ context.Context, q string, _ ...any) (sql.Result, error) {
	f.exec = append(f.exec, q)
	return fakeResult(0), nil
}

func (f *fakeDB) BeginTx(context.Context, *sql.TxOptions) (txConn, error) { return f.tx, nil }
func (f *fakeDB) Close() error                                            { return nil }

var spec = storage.TableSpec{Name: "dbo.outside", Columns: []storage.Column{{Name: "a"}}}

func rowsN(n int) []storage.Row {
	out := make([]storage.Row, n)
	for i := range out {
		out[i] = storage.Row{RowID: int64(i), RunID: "r", Hash: string(rune('a'+i%26)) + string(rune('0'+i/26)), Values: []any{"v"}}
	}
	return out
}

func TestInsertRows_ChunksUnderParamLimitInOneTx(t *testing.T) {
	tx := &fakeTx{}
	r := &Repo{db: &fakeDB{tx: tx}}

	// 4 params per row, 500 rows per statement.
	n, err := r.InsertRows(context.Background(), spec, rowsN(520))
	require.NoError(t, err)
	assert.Equal(t, int64(520), n)
	require.Len(t, tx.queries, 2)
	assert.Len(t, tx.args[0], 2000)
	assert.Len(t, tx.args[1], 80)
	assert.True(t, tx.committed, "expected commit")
}

func TestInsertRows_RollsBackOnError(t *testing.T) {
	tx := &fakeTx{failOn: 1}
	r := &Repo{db: &fakeDB{tx: tx}}

	_, err := r.InsertRows(context.Background(), spec, rowsN(3))
	require.Error(t, err)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestInsertRows_Empty(t *testing.T) {
	r := &Repo{db: &fakeDB{tx: &fakeTx{}}}
	n, err := r.InsertRows(context.Background(), spec, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnsureTable_RunsGuardedCreate(t *testing.T) {
	db := &fakeDB{}
	r := &Repo{db: db}

	require.NoError(t, r.EnsureTable(context.Background(), spec))
	require.Len(t, db.exec, 1)
	for _, want := range []string{
		"IF OBJECT_ID(N'[dbo].[outside]', N'U') IS NULL BEGIN CREATE TABLE [dbo].[outside] (",
		"[row_hash] CHAR(64) NOT NULL UNIQUE",
		"[a] NVARCHAR(MAX) NULL",
	} {
		assert.Contains(t, db.exec[0], want)
	}
}

func TestDedupeByHash_KeepsFirstOccurrence(t *testing.T) {
	rows := []storage.Row{
		{RowID: 0, Hash: "x"},
		{RowID: 1, Hash: "y"},
		{RowID: 2, Hash: "x"},
		{RowID: 3, Hash: "z"},
	}
	got := dedupeByHash(rows)
	require.Len(t, got, 3)
	for i, want := range []int64{0, 1, 3} {
		assert.Equal(t, want, got[i].RowID, "got[%d]", i)
	}
}

func TestBuildInsertNotExistsSQL(t *testing.T) {
	cols := []string{"row_id", "run_id", "row_hash", "a"}
	rows := []storage.Row{
		{RowID: 0, RunID: "r", Hash: "h0", Values: []any{"x"}},
		{RowID: 1, RunID: "r", Hash: "h1", Values: []any{nil}},
	}
	q, args := buildInsertNotExistsSQL("outside", cols, rows)

	want := "INSERT INTO [outside] ([row_id], [run_id], [row_hash], [a]) " +
		"SELECT v.[row_id], v.[run_id], v.[row_hash], v.[a] " +
		"FROM (VALUES (@p1, @p2, @p3, @p4), (@p5, @p6, @p7, @p8)) AS v([row_id], [run_id], [row_hash], [a]) " +
		"WHERE NOT EXISTS (SELECT 1 FROM [outside] t WHERE t.[row_hash] = v.[row_hash])"
	assert.Equal(t, want, q)
	require.Len(t, args, 8)
	assert.Equal(t, "h1", args[6])
}

func TestIdents(t *testing.T) {
	assert.Equal(t, "[a]]b]", mssqlIdent("a]b"))
	assert.Equal(t, "[dbo].[imports]", mssqlTableIdent("dbo.imports"))
}
