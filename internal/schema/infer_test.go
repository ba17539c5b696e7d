package schema

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabular/internal/merge"
	"tabular/pkg/records"
)

func TestCoerce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantKind Kind
		wantInt  int64
		wantF    float64
	}{
		{in: "0", wantKind: Integer, wantInt: 0},
		{in: "+5", wantKind: Integer, wantInt: 5},
		{in: "-12", wantKind: Integer, wantInt: -12},
		{in: " 7 ", wantKind: Integer, wantInt: 7},
		{in: "007", wantKind: Integer, wantInt: 7},
		{in: "1_000", wantKind: Integer, wantInt: 1000},
		{in: "9223372036854775808", wantKind: Float, wantF: 9223372036854775808},
		{in: "1.1", wantKind: Float, wantF: 1.1},
		{in: "-1.1e-1", wantKind: Float, wantF: -0.11},
		{in: "1e3", wantKind: Float, wantF: 1000},
		{in: ".5", wantKind: Float, wantF: 0.5},
		{in: "5.", wantKind: Float, wantF: 5},
		{in: "1_000.5", wantKind: Float, wantF: 1000.5},
		{in: "1e400", wantKind: Float, wantF: math.Inf(1)},
		{in: "-inf", wantKind: Float, wantF: math.Inf(-1)},
		{in: "Infinity", wantKind: Float, wantF: math.Inf(1)},
		{in: "z", wantKind: Text},
		{in: "", wantKind: Text},
		{in: ".", wantKind: Text},
		{in: "-", wantKind: Text},
		{in: "0x10", wantKind: Text},
		{in: "1__0", wantKind: Text},
		{in: "_1", wantKind: Text},
		{in: "in", wantKind: Text},
		{in: "1,5", wantKind: Text},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			v := Coerce(tc.in)
			require.Equal(t, tc.wantKind, v.Kind, "kind of %q is %s", tc.in, v.Kind)
			switch tc.wantKind {
			case Integer:
				assert.Equal(t, tc.wantInt, v.Int)
			case Float:
				assert.Equal(t, tc.wantF, v.Float)
			case Text:
				assert.Equal(t, tc.in, v.Str)
			}
		})
	}
}

func TestCoerce_NaN(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"nan", "NaN", "-nan", "+NAN"} {
		v := Coerce(s)
		require.Equal(t, Float, v.Kind, s)
		assert.True(t, math.IsNaN(v.Float), s)
	}
}

func rowsOf(cols ...map[string]string) []merge.Row {
	out := make([]merge.Row, 0, len(cols))
	for i, m := range cols {
		r := records.New(len(m))
		for _, k := range []string{"int", "float", "string", "missing"} {
			if v, ok := m[k]; ok {
				r.Set(k, v)
			}
		}
		out = append(out, merge.Row{ID: i, Record: r})
	}
	return out
}

func TestInfer_ColumnKinds(t *testing.T) {
	t.Parallel()

	rows := rowsOf(
		map[string]string{"int": "10", "float": "10.1", "string": "ten", "missing": "x"},
		map[string]string{"int": "2", "float": "2.1", "string": "two"},
	)
	defs := Infer([]string{"int", "float", "string", "missing", "absent"}, rows)
	require.Len(t, defs, 5)

	assert.Equal(t, ColumnDef{
		Column: "int", Type: TypeNumber, NumberFormat: FormatInteger,
		Domain: [2]Value{IntValue(2), IntValue(10)},
	}, defs[0])
	assert.Equal(t, ColumnDef{
		Column: "float", Type: TypeNumber, NumberFormat: FormatFloat,
		Domain: [2]Value{FloatValue(2.1), FloatValue(10.1)},
	}, defs[1])
	assert.Equal(t, ColumnDef{Column: "string", Type: TypeString}, defs[2])
	assert.Equal(t, ColumnDef{Column: "missing", Type: TypeString}, defs[3])
	assert.Equal(t, ColumnDef{Column: "absent", Type: TypeString}, defs[4])
}

func column(name string, values ...string) []merge.Row {
	out := make([]merge.Row, len(values))
	for i, v := range values {
		out[i] = merge.Row{ID: i, Record: records.FromPairs(name, v)}
	}
	return out
}

func TestInfer_IntegerDomain(t *testing.T) {
	t.Parallel()

	defs := Infer([]string{"c"}, column("c", "1", "2", "3"))
	assert.Equal(t, TypeNumber, defs[0].Type)
	assert.Equal(t, FormatInteger, defs[0].NumberFormat)
	assert.Equal(t, [2]Value{IntValue(1), IntValue(3)}, defs[0].Domain)
}

func TestInfer_MixedDecimalDomain(t *testing.T) {
	t.Parallel()

	defs := Infer([]string{"c"}, column("c", "1.5", "2.0"))
	assert.Equal(t, TypeNumber, defs[0].Type)
	assert.Equal(t, FormatFloat, defs[0].NumberFormat)
	assert.Equal(t, [2]Value{FloatValue(1.5), FloatValue(2.0)}, defs[0].Domain)
}

func TestInfer_IntegersAndFloatsMixedIsNotNumber(t *testing.T) {
	t.Parallel()

	defs := Infer([]string{"c"}, column("c", "1", "2.5"))
	assert.Equal(t, TypeString, defs[0].Type)
}

func TestInfer_Categorical(t *testing.T) {
	t.Parallel()

	values := make([]string, 200)
	for i := range values {
		values[i] = []string{"red", "green", "blue"}[i%3]
	}
	defs := Infer([]string{"c"}, column("c", values...))
	assert.Equal(t, TypeCategorical, defs[0].Type)
}

func TestInfer_DistinctIntegersStayNumeric(t *testing.T) {
	t.Parallel()

	values := make([]string, 100)
	for i := range values {
		values[i] = strconv.Itoa(i)
	}
	defs := Infer([]string{"c"}, column("c", values...))
	assert.Equal(t, TypeNumber, defs[0].Type)
	assert.Equal(t, [2]Value{IntValue(0), IntValue(99)}, defs[0].Domain)
}

func TestInfer_LeadingNaNSticks(t *testing.T) {
	t.Parallel()

	defs := Infer([]string{"c"}, column("c", "nan", "1.0", "2.0"))
	require.Equal(t, TypeNumber, defs[0].Type)
	assert.True(t, math.IsNaN(defs[0].Domain[0].Float))
	assert.True(t, math.IsNaN(defs[0].Domain[1].Float))

	defs = Infer([]string{"c"}, column("c", "1.0", "nan", "2.0"))
	assert.Equal(t, 1.0, defs[0].Domain[0].Float)
	assert.Equal(t, 2.0, defs[0].Domain[1].Float)
}

func TestIsCategorical(t *testing.T) {
	t.Parallel()

	rep := func(v string, n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	join := func(parts ...[]string) []string {
		var out []string
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}
	distinct := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = "v" + strconv.Itoa(i)
		}
		return out
	}

	tests := []struct {
		name   string
		values []string
		want   bool
	}{
		{name: "empty", values: nil, want: false},
		{name: "single", values: []string{"x"}, want: false},
		{name: "two_pairs", values: join(rep("a", 2), rep("b", 2)), want: false},
		{name: "two_pairs_plus_one", values: join(rep("a", 2), rep("b", 3)), want: true},
		{name: "three_groups_of_eight", values: join(rep("a", 2), rep("b", 2), rep("c", 4)), want: false},
		{name: "three_groups_of_nine", values: join(rep("a", 2), rep("b", 2), rep("c", 5)), want: true},
		{name: "hundred_distinct", values: distinct(100), want: false},
		{name: "uniform_lead_hides_variety", values: join(rep("x", 100), distinct(100)), want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsCategorical(tc.values))
		})
	}
}
