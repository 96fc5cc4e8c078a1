package preprocess

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitNumericImputer_Median(t *testing.T) {
	rs := RecordSet{
		{"a": Num(1), "b": Num(10)},
		{"a": Null(), "b": Num(30)},
		{"a": Num(3), "b": Num(20)},
		{"a": Num(8), "b": Num(40)},
	}
	imp, err := FitNumericImputer(rs, []string{"a", "b"})
	require.NoError(t, err)

	m, ok := imp.Median("a")
	require.True(t, ok)
	assert.Equal(t, 3.0, m, "odd count takes the middle value")

	m, ok = imp.Median("b")
	require.True(t, ok)
	assert.Equal(t, 25.0, m, "even count averages the two middle values")
}

func TestNumericImputer_ApplyFillsOnlyMissing(t *testing.T) {
	imp, err := FitNumericImputer(RecordSet{{"x": Num(2)}, {"x": Num(4)}, {"x": Num(9)}}, []string{"x"})
	require.NoError(t, err)

	block, err := imp.Apply(RecordSet{{"x": Null()}, {"x": Num(7.5)}, {"x": Num(0)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, block.Columns)
	assert.Equal(t, [][]float64{{4}, {7.5}, {0}}, block.Rows)
}

func TestNumericImputer_Errors(t *testing.T) {
	_, err := FitNumericImputer(RecordSet{{"x": Null()}, {"x": Null()}}, []string{"x"})
	require.ErrorIs(t, err, ErrNoObservedValues)

	_, err = FitNumericImputer(nil, []string{"x"})
	require.ErrorIs(t, err, ErrEmptyRecordSet)

	imp, err := FitNumericImputer(RecordSet{{"x": Num(1)}}, []string{"x"})
	require.NoError(t, err)

	_, err = imp.Apply(RecordSet{{"y": Num(1)}})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = imp.Apply(RecordSet{{"x": Str("ten")}})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestCategoricalImputer_FillsSentinel(t *testing.T) {
	rs := RecordSet{
		{"home": Str("RENT"), "grade": Null(), "extra": Num(1)},
		{"home": Null(), "grade": Str("B")},
	}
	imp, err := FitCategoricalImputer(rs, []string{"home", "grade"}, "KOSONG")
	require.NoError(t, err)
	assert.Equal(t, "KOSONG", imp.Fill())

	out, err := imp.Apply(rs)
	require.NoError(t, err)
	assert.Equal(t, RecordSet{
		{"home": Str("RENT"), "grade": Str("KOSONG")},
		{"home": Str("KOSONG"), "grade": Str("B")},
	}, out)
	assert.True(t, rs[0]["grade"].IsMissing(), "input must not be modified")
}

func TestCategoricalImputer_RejectsNumbers(t *testing.T) {
	_, err := FitCategoricalImputer(RecordSet{{"home": Num(3)}}, []string{"home"}, "KOSONG")
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestImputers_JSONRoundTrip(t *testing.T) {
	num, err := FitNumericImputer(RecordSet{{"x": Num(0.1)}, {"x": Num(0.2)}}, []string{"x"})
	require.NoError(t, err)
	raw, err := json.Marshal(num)
	require.NoError(t, err)

	var back NumericImputer
	require.NoError(t, json.Unmarshal(raw, &back))
	m, _ := back.Median("x")
	orig, _ := num.Median("x")
	assert.Equal(t, orig, m)

	require.Error(t, json.Unmarshal([]byte(`{"columns":["a","b"],"medians":[1]}`), &back))
	var cat CategoricalImputer
	require.Error(t, json.Unmarshal([]byte(`{"columns":["a"],"fill_value":""}`), &cat))
}
