package preprocess

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscore/internal/schema"
)

func TestOneHotEncoder_VocabularyExcludesSentinel(t *testing.T) {
	rs := RecordSet{
		{"home": Str("RENT")},
		{"home": Str("OWN")},
		{"home": Str("KOSONG")},
		{"home": Str("MORTGAGE")},
		{"home": Str("RENT")},
	}
	enc, err := FitOneHotEncoder(rs, []string{"home"}, "KOSONG")
	require.NoError(t, err)
	assert.Equal(t, []string{"MORTGAGE", "OWN", "RENT"}, enc.Categories("home"))
	assert.Equal(t, 3, enc.Width())
	assert.Equal(t, []string{"home_MORTGAGE", "home_OWN", "home_RENT"}, enc.FeatureNames())
}

func TestOneHotEncoder_UnknownCategoryIsAllZeros(t *testing.T) {
	enc, err := FitOneHotEncoder(RecordSet{{"home": Str("RENT")}, {"home": Str("OWN")}, {"home": Str("MORTGAGE")}}, []string{"home"}, "KOSONG")
	require.NoError(t, err)

	block, err := enc.Apply(RecordSet{
		{"home": Str("OTHER")},
		{"home": Str("OWN")},
		{"home": Str("KOSONG")},
	})
	require.NoError(t, err)

	own := enc.Categories("home")
	require.Equal(t, "OWN", own[1])
	assert.Equal(t, []float64{0, 0, 0}, block.Rows[0])
	assert.Equal(t, []float64{0, 1, 0}, block.Rows[1])
	assert.Equal(t, []float64{0, 0, 0}, block.Rows[2])
}

func TestOneHotEncoder_OrderIndependentOfRows(t *testing.T) {
	a, err := FitOneHotEncoder(RecordSet{{"c": Str("x")}, {"c": Str("y")}, {"c": Str("z")}}, []string{"c"}, "KOSONG")
	require.NoError(t, err)
	b, err := FitOneHotEncoder(RecordSet{{"c": Str("z")}, {"c": Str("x")}, {"c": Str("y")}}, []string{"c"}, "KOSONG")
	require.NoError(t, err)
	assert.Equal(t, a.FeatureNames(), b.FeatureNames())
}

func TestOneHotEncoder_RequiresImputedInput(t *testing.T) {
	enc, err := FitOneHotEncoder(RecordSet{{"c": Str("x")}}, []string{"c"}, "KOSONG")
	require.NoError(t, err)
	_, err = enc.Apply(RecordSet{{"c": Null()}})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOneHotEncoder_JSONRoundTrip(t *testing.T) {
	enc, err := FitOneHotEncoder(RecordSet{{"c": Str("b")}, {"c": Str("a")}, {"d": Str("q"), "c": Str("a")}}, []string{"c"}, "KOSONG")
	require.NoError(t, err)
	raw, err := json.Marshal(enc)
	require.NoError(t, err)

	var back OneHotEncoder
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, enc.FeatureNames(), back.FeatureNames())
}

func TestOrdinalEncoder_Ranks(t *testing.T) {
	cols := schema.Default()
	enc := NewOrdinalEncoder(cols.Ordinal, cols.Ranks)

	tests := []struct {
		grade, onFile string
		want          []float64
	}{
		{"A", "N", []float64{1, 1}},
		{"C", "Y", []float64{3, 3}},
		{"G", "KOSONG", []float64{7, 2}},
		{"KOSONG", "KOSONG", []float64{8, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.grade+"/"+tt.onFile, func(t *testing.T) {
			block, err := enc.Apply(RecordSet{{schema.LoanGrade: Str(tt.grade), schema.CBPersonDefaultOnFile: Str(tt.onFile)}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, block.Rows[0])
		})
	}
}

func TestOrdinalEncoder_UnmappedCategory(t *testing.T) {
	cols := schema.Default()
	enc := NewOrdinalEncoder(cols.Ordinal, cols.Ranks)

	_, err := enc.Apply(RecordSet{{schema.LoanGrade: Str("c"), schema.CBPersonDefaultOnFile: Str("N")}})
	require.ErrorIs(t, err, ErrUnmappedCategory)
	assert.Contains(t, err.Error(), `"c"`)
}

func TestAssemble_OrderAndAlignment(t *testing.T) {
	num := Block{Columns: []string{"n"}, Rows: [][]float64{{1}, {2}}}
	ohe := Block{Columns: []string{"o_a", "o_b"}, Rows: [][]float64{{1, 0}, {0, 1}}}
	ord := Block{Columns: []string{"r"}, Rows: [][]float64{{3}, {4}}}

	m, err := Assemble(num, ohe, ord)
	require.NoError(t, err)
	assert.Equal(t, []string{"n", "o_a", "o_b", "r"}, m.Columns)
	assert.Equal(t, [][]float64{{1, 1, 0, 3}, {2, 0, 1, 4}}, m.Rows)

	_, err = Assemble(num, ohe, Block{Columns: []string{"r"}, Rows: [][]float64{{3}}})
	require.ErrorIs(t, err, ErrRowAlignment)

	_, err = Assemble(num, Block{Columns: []string{"o_a"}, Rows: [][]float64{{1, 0}, {0, 1}}}, ord)
	require.ErrorIs(t, err, ErrRowAlignment)
}

func TestScaler_Standardizes(t *testing.T) {
	fit := Matrix{Columns: []string{"x"}}
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		fit.Rows = append(fit.Rows, []float64{v})
	}
	sc, err := FitScaler(fit)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, sc.Means())
	assert.Equal(t, []float64{2}, sc.StdDevs())

	out, err := sc.Apply(Matrix{Columns: []string{"x"}, Rows: [][]float64{{9}, {5}, {1}}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2}, {0}, {-2}}, out.Rows)
}

func TestScaler_ConstantColumnScalesToZero(t *testing.T) {
	sc, err := FitScaler(Matrix{Columns: []string{"c", "x"}, Rows: [][]float64{{3, 1}, {3, 3}}})
	require.NoError(t, err)

	out, err := sc.Apply(Matrix{Columns: []string{"c", "x"}, Rows: [][]float64{{3, 2}, {100, 3}}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {0, 1}}, out.Rows)
}

func TestScaler_WidthMismatch(t *testing.T) {
	sc, err := FitScaler(Matrix{Columns: []string{"x"}, Rows: [][]float64{{1}, {2}}})
	require.NoError(t, err)
	_, err = sc.Apply(Matrix{Columns: []string{"x", "y"}, Rows: [][]float64{{1, 2}}})
	require.ErrorIs(t, err, ErrArtifactVersionMismatch)
}
