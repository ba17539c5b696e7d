package merge

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabular/internal/parser/delimited"
	"tabular/pkg/records"
)

func parseAll(t *testing.T, sources []Source) [][]records.Record {
	t.Helper()

	out := make([][]records.Record, len(sources))
	for i, s := range sources {
		recs, err := delimited.Parse(s.Text)
		require.NoError(t, err, "source %s", s.ID)
		out[i] = recs
	}
	return out
}

func get(t *testing.T, r records.Record, k string) string {
	t.Helper()
	v, ok := r.Get(k)
	require.True(t, ok, "missing column %q in %v", k, r.Keys())
	return v
}

func TestMerge_TwoSourcesAddProvenance(t *testing.T) {
	t.Parallel()

	sources := []Source{
		{ID: "fake.csv", Text: "z,c\n1,2"},
		{ID: "fake.tsv", Text: "z\tb\n3\t4"},
	}
	tab, err := Merge(sources, parseAll(t, sources), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "c", "Refinery file", "b"}, tab.Header)
	require.Len(t, tab.Rows, 2)

	assert.Equal(t, []string{"z", "c", "Refinery file", "id"}, tab.Rows[0].Record.Keys())
	assert.Equal(t, "fake.csv", get(t, tab.Rows[0].Record, "Refinery file"))
	assert.Equal(t, "0", get(t, tab.Rows[0].Record, "id"))

	assert.Equal(t, []string{"z", "b", "Refinery file", "id"}, tab.Rows[1].Record.Keys())
	assert.Equal(t, "4", get(t, tab.Rows[1].Record, "b"))
	assert.Equal(t, "fake.tsv", get(t, tab.Rows[1].Record, "Refinery file"))
	assert.Equal(t, 1, tab.Rows[1].ID)
}

func TestMerge_SingleSourceHasNoProvenance(t *testing.T) {
	t.Parallel()

	sources := []Source{{ID: "f.csv", Text: "a,c\n1,2"}}
	tab, err := Merge(sources, parseAll(t, sources), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, tab.Header)
	assert.False(t, tab.Rows[0].Record.Has("Refinery file"))
}

func TestMerge_ExistingProvenanceColumnIsOverwritten(t *testing.T) {
	t.Parallel()

	sources := []Source{
		{ID: "fake.csv", Text: "Refinery file,c\n1,2"},
		{ID: "fake.tsv", Text: "Refinery file\tb\n3\t4"},
	}
	tab, err := Merge(sources, parseAll(t, sources), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Refinery file", "c", "b"}, tab.Header)
	assert.Equal(t, []string{"Refinery file", "c", "id"}, tab.Rows[0].Record.Keys())
	assert.Equal(t, "fake.csv", get(t, tab.Rows[0].Record, "Refinery file"))
	assert.Equal(t, "fake.tsv", get(t, tab.Rows[1].Record, "Refinery file"))
}

func TestMerge_IDColumnIsOverwrittenInPlace(t *testing.T) {
	t.Parallel()

	sources := []Source{{ID: "f.csv", Text: "id,a\n9,x\n9,y"}}
	tab, err := Merge(sources, parseAll(t, sources), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "a"}, tab.Header)
	assert.Equal(t, []string{"id", "a"}, tab.Rows[1].Record.Keys())
	assert.Equal(t, "1", get(t, tab.Rows[1].Record, "id"))
}

func TestMerge_RowIDsFollowSourceThenRowOrder(t *testing.T) {
	t.Parallel()

	sources := []Source{
		{ID: "one", Text: "a\nx\ny"},
		{ID: "two", Text: "b,c\n1,2\n3,4\n5,6"},
		{ID: "three", Text: "a;b\n7;8"},
	}
	tab, err := Merge(sources, parseAll(t, sources), Options{})
	require.NoError(t, err)
	require.Len(t, tab.Rows, 6)

	wantOwner := []string{"one", "one", "two", "two", "two", "three"}
	for i, r := range tab.Rows {
		assert.Equal(t, i, r.ID)
		assert.Equal(t, strconv.Itoa(i), get(t, r.Record, "id"))
		assert.Equal(t, wantOwner[i], get(t, r.Record, "Refinery file"))
	}
	assert.Equal(t, []string{"a", "Refinery file", "b", "c"}, tab.Header)
}

func TestMerge_HeaderUsesFirstRecordOnly(t *testing.T) {
	t.Parallel()

	a := records.FromPairs("x", "1")
	b := records.FromPairs("x", "2", "late", "3")
	tab, err := Merge([]Source{{ID: "s"}}, [][]records.Record{{a, b}}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, tab.Header)
	assert.Equal(t, "3", get(t, tab.Rows[1].Record, "late"))
}

func TestMerge_EmptySourceContributesNothing(t *testing.T) {
	t.Parallel()

	recs := [][]records.Record{nil, {records.FromPairs("a", "1")}}
	tab, err := Merge([]Source{{ID: "empty"}, {ID: "full"}}, recs, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "Refinery file"}, tab.Header)
	require.Len(t, tab.Rows, 1)
	assert.Equal(t, 0, tab.Rows[0].ID)
}

func TestMerge_CustomReservedNames(t *testing.T) {
	t.Parallel()

	recs := [][]records.Record{{records.FromPairs("a", "1")}, {records.FromPairs("a", "2")}}
	tab, err := Merge([]Source{{ID: "x"}, {ID: "y"}}, recs, Options{ProvenanceColumn: "file", PrimaryKey: "row"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "file"}, tab.Header)
	assert.Equal(t, "row", tab.PrimaryKey)
	assert.Equal(t, "1", get(t, tab.Rows[1].Record, "row"))
	assert.Equal(t, "y", get(t, tab.Rows[1].Record, "file"))
}

func TestMerge_InputNotModified(t *testing.T) {
	t.Parallel()

	in := records.FromPairs("a", "1")
	_, err := Merge([]Source{{ID: "x"}, {ID: "y"}}, [][]records.Record{{in}, nil}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, in.Keys())
}

func TestMerge_Errors(t *testing.T) {
	t.Parallel()

	t.Run("duplicate_source", func(t *testing.T) {
		t.Parallel()
		_, err := Merge([]Source{{ID: "a"}, {ID: "a"}}, make([][]records.Record, 2), Options{})
		assert.ErrorIs(t, err, ErrDuplicateSource)
	})

	t.Run("length_mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := Merge([]Source{{ID: "a"}}, nil, Options{})
		assert.Error(t, err)
	})
}

func TestTable_Values(t *testing.T) {
	t.Parallel()

	recs := [][]records.Record{{
		records.FromPairs("a", "1"),
		records.FromPairs("b", "2"),
		records.FromPairs("a", ""),
	}}
	tab, err := Merge([]Source{{ID: "s"}}, recs, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", ""}, tab.Values("a"))
	assert.Empty(t, tab.Values("missing"))
}
