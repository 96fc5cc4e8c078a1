package preprocess

import (
	"encoding/json"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscore/internal/schema"
)

func TestPipeline_StageOrder(t *testing.T) {
	p := mustPipeline(t)
	assert.Equal(t, []string{"numeric_imputer", "categorical_imputer", "one_hot", "ordinal", "assemble", "scaler"}, p.Stages())
}

func TestPipeline_RejectsInvalidSchema(t *testing.T) {
	cols := schema.Default()
	cols.OneHot = append(cols.OneHot, schema.LoanGrade)
	_, err := New(cols)
	require.ErrorIs(t, err, schema.ErrInvalid)
}

func TestPipeline_TransformIsIdempotent(t *testing.T) {
	p := mustPipeline(t)
	a, err := p.Fit(trainingSet())
	require.NoError(t, err)

	first, err := p.Transform(trainingSet(), a)
	require.NoError(t, err)
	second, err := p.Transform(trainingSet(), a)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPipeline_FitTransformMatchesTransform(t *testing.T) {
	p := mustPipeline(t)
	a, fitted, err := p.FitTransform(trainingSet())
	require.NoError(t, err)

	again, err := p.Transform(trainingSet(), a)
	require.NoError(t, err)
	assert.Equal(t, fitted, again)
}

func TestPipeline_ColumnLayout(t *testing.T) {
	p := mustPipeline(t)
	a, err := p.Fit(trainingSet())
	require.NoError(t, err)

	want := []string{
		schema.PersonAge, schema.PersonIncome, schema.PersonEmpLength,
		schema.LoanAmount, schema.LoanIntRate, schema.LoanPercentIncome,
		schema.CBPersonCredHistLength,
		"person_home_ownership_MORTGAGE", "person_home_ownership_OWN", "person_home_ownership_RENT",
		"loan_intent_EDUCATION", "loan_intent_MEDICAL", "loan_intent_PERSONAL", "loan_intent_VENTURE",
		schema.LoanGrade, schema.CBPersonDefaultOnFile,
	}
	assert.Equal(t, want, a.FeatureNames())

	reversed := slices.Clone(trainingSet())
	slices.Reverse(reversed)
	b, err := p.Fit(reversed)
	require.NoError(t, err)
	assert.Equal(t, want, b.FeatureNames(), "layout must not depend on row order")

	m, err := p.Transform(reversed, a)
	require.NoError(t, err)
	assert.Equal(t, want, m.Columns)
}

func TestPipeline_MissingNumericTakesMedian(t *testing.T) {
	p := mustPipeline(t)
	a, err := p.Fit(trainingSet())
	require.NoError(t, err)

	median, ok := a.NumericImputer().Median(schema.PersonIncome)
	require.True(t, ok)
	assert.Equal(t, 32150.0, median)

	row := application(30, 0, "RENT", "MEDICAL", "B", 2, 8000, 10, 0.2, "N", 4)
	row[schema.PersonIncome] = Null()
	m, err := p.Transform(RecordSet{row}, a)
	require.NoError(t, err)

	sc := a.Scaler()
	j := slices.Index(m.Columns, schema.PersonIncome)
	want := (median - sc.Means()[j]) / sc.StdDevs()[j]
	assert.Equal(t, want, m.Rows[0][j])
}

func TestPipeline_EndToEndTwoRows(t *testing.T) {
	p := mustPipeline(t)
	train := RecordSet{
		application(22, 59000, "RENT", "PERSONAL", "D", 3, 35000, 16.02, 0.59, "Y", 3),
		application(21, 9600, "OWN", "EDUCATION", "B", 5, 1000, 11.14, 0.10, "N", 2),
	}
	train[0][schema.LoanIntRate] = Null()
	a, err := p.Fit(train)
	require.NoError(t, err)

	score := RecordSet{
		application(22, 59000, "RENT", "PERSONAL", "D", 3, 35000, 16.02, 0.59, "Y", 3),
		application(35, 12000, "OTHER", "EDUCATION", "A", 1, 500, 9.5, 0.04, "N", 8),
	}
	score[0][schema.LoanIntRate] = Null()
	m, err := p.Transform(score, a)
	require.NoError(t, err)

	cols := p.Schema()
	n := len(cols.Numeric) + a.OneHotEncoder().Width() + len(cols.Ordinal)
	rows, width := m.Shape()
	assert.Equal(t, 2, rows)
	assert.Equal(t, n, width)
	assert.Equal(t, 7+2+2+2, n)
	for _, r := range m.Rows {
		assert.Len(t, r, n)
	}
}

func TestPipeline_MissingCategoricalUsesSentinelRank(t *testing.T) {
	p := mustPipeline(t)
	a, err := p.Fit(trainingSet())
	require.NoError(t, err)

	row := trainingSet()[0]
	row[schema.PersonHomeOwnership] = Null()
	row[schema.LoanGrade] = Null()
	row[schema.CBPersonDefaultOnFile] = Null()

	var pre Matrix
	{
		num, err := a.NumericImputer().Apply(RecordSet{row})
		require.NoError(t, err)
		cat, err := a.CategoricalImputer().Apply(RecordSet{row})
		require.NoError(t, err)
		ohe, err := a.OneHotEncoder().Apply(cat)
		require.NoError(t, err)
		cols := p.Schema()
		ord, err := NewOrdinalEncoder(cols.Ordinal, cols.Ranks).Apply(cat)
		require.NoError(t, err)
		pre, err = Assemble(num, ohe, ord)
		require.NoError(t, err)
	}
	assert.Equal(t, 8.0, pre.Rows[0][slices.Index(pre.Columns, schema.LoanGrade)])
	assert.Equal(t, 2.0, pre.Rows[0][slices.Index(pre.Columns, schema.CBPersonDefaultOnFile)])
	for _, name := range []string{"person_home_ownership_MORTGAGE", "person_home_ownership_OWN", "person_home_ownership_RENT"} {
		assert.Zero(t, pre.Rows[0][slices.Index(pre.Columns, name)])
	}

	_, err = p.Transform(RecordSet{row}, a)
	require.NoError(t, err)
}

func TestPipeline_Errors(t *testing.T) {
	p := mustPipeline(t)

	_, err := p.Fit(nil)
	require.ErrorIs(t, err, ErrEmptyRecordSet)

	a, err := p.Fit(trainingSet())
	require.NoError(t, err)

	missing := trainingSet()[:1]
	delete(missing[0], schema.LoanAmount)
	_, err = p.Transform(missing, a)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "numeric_imputer", se.Stage)

	bad := trainingSet()[:1]
	bad[0][schema.LoanGrade] = Str("H")
	_, err = p.Transform(bad, a)
	require.ErrorIs(t, err, ErrUnmappedCategory)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ordinal", se.Stage)

	_, err = p.Transform(trainingSet(), nil)
	require.ErrorIs(t, err, ErrArtifactVersionMismatch)
}

func TestPipeline_UnmappedOrdinalFailsFit(t *testing.T) {
	p := mustPipeline(t)
	rs := trainingSet()
	rs[2][schema.CBPersonDefaultOnFile] = Str("maybe")
	_, err := p.Fit(rs)
	require.ErrorIs(t, err, ErrUnmappedCategory)
}

func TestPipeline_StrictSchemaRejectsExtraColumns(t *testing.T) {
	cols := schema.Default()
	lenient, err := New(cols)
	require.NoError(t, err)
	cols.Strict = true
	strict, err := New(cols)
	require.NoError(t, err)

	rs := trainingSet()
	rs[0]["loan_status"] = Num(1)

	_, err = lenient.Fit(rs)
	require.NoError(t, err)
	_, err = strict.Fit(rs)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestPipeline_ArtifactsFromOtherSchema(t *testing.T) {
	p := mustPipeline(t)
	a, err := p.Fit(trainingSet())
	require.NoError(t, err)

	cols := schema.Default()
	cols.Ranks[schema.LoanGrade] = []string{"A", "B", "C", "D", "E", "F", "G", "H", "KOSONG"}
	other, err := New(cols)
	require.NoError(t, err)

	_, err = other.Transform(trainingSet(), a)
	require.ErrorIs(t, err, ErrArtifactVersionMismatch)

	forged := NewArtifacts("v0", a.Fingerprint(), a.NumericImputer(), a.CategoricalImputer(), a.OneHotEncoder(), a.Scaler())
	_, err = p.Transform(trainingSet(), forged)
	require.ErrorIs(t, err, ErrArtifactVersionMismatch)
}

func TestPipeline_ArtifactsJSONRoundTrip(t *testing.T) {
	p := mustPipeline(t)
	a, err := p.Fit(trainingSet())
	require.NoError(t, err)

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	var back Artifacts
	require.NoError(t, json.Unmarshal(raw, &back))

	want, err := p.Transform(trainingSet(), a)
	require.NoError(t, err)
	got, err := p.Transform(trainingSet(), &back)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPipeline_ConcurrentTransformShareArtifacts(t *testing.T) {
	p := mustPipeline(t)
	a, err := p.Fit(trainingSet())
	require.NoError(t, err)
	want, err := p.Transform(trainingSet(), a)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Matrix, 16)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.Transform(trainingSet(), a)
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want, results[i])
	}
}

func TestPipeline_SingleRowAndEmptyInput(t *testing.T) {
	p := mustPipeline(t)
	a, err := p.Fit(trainingSet())
	require.NoError(t, err)

	one, err := p.Transform(trainingSet()[3:4], a)
	require.NoError(t, err)
	all, err := p.Transform(trainingSet(), a)
	require.NoError(t, err)
	assert.Equal(t, all.Rows[3], one.Rows[0])

	empty, err := p.Transform(RecordSet{}, a)
	require.NoError(t, err)
	rows, cols := empty.Shape()
	assert.Zero(t, rows)
	assert.Equal(t, len(a.FeatureNames()), cols)
}
