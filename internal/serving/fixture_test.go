package serving

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"creditscore/internal/artifact"
	"creditscore/internal/blob/memory"
	"creditscore/internal/model"
	"creditscore/internal/preprocess"
	"creditscore/internal/schema"
)

// applications pairs every profile with a high- and a low-rate row, so the
// interest rate is the only column that separates the labels.
func applications() (preprocess.RecordSet, []int) {
	profiles := []map[string]any{
		{schema.PersonAge: 24, schema.PersonIncome: 37500, schema.PersonHomeOwnership: "RENT", schema.PersonEmpLength: 2.0, schema.LoanIntent: "DEBTCONSOLIDATION", schema.LoanGrade: "C", schema.LoanAmount: 1600, schema.LoanPercentIncome: 0.04, schema.CBPersonDefaultOnFile: "Y", schema.CBPersonCredHistLength: 3},
		{schema.PersonAge: 31, schema.PersonIncome: 65000, schema.PersonHomeOwnership: "MORTGAGE", schema.PersonEmpLength: 6.0, schema.LoanIntent: "MEDICAL", schema.LoanGrade: "B", schema.LoanAmount: 9000, schema.LoanPercentIncome: 0.14, schema.CBPersonDefaultOnFile: "N", schema.CBPersonCredHistLength: 7},
		{schema.PersonAge: 22, schema.PersonIncome: 12000, schema.PersonHomeOwnership: "OWN", schema.PersonEmpLength: nil, schema.LoanIntent: "EDUCATION", schema.LoanGrade: "A", schema.LoanAmount: 2500, schema.LoanPercentIncome: 0.21, schema.CBPersonDefaultOnFile: "N", schema.CBPersonCredHistLength: 2},
		{schema.PersonAge: 45, schema.PersonIncome: 90000, schema.PersonHomeOwnership: "RENT", schema.PersonEmpLength: 12.0, schema.LoanIntent: "VENTURE", schema.LoanGrade: "D", schema.LoanAmount: 20000, schema.LoanPercentIncome: 0.22, schema.CBPersonDefaultOnFile: "Y", schema.CBPersonCredHistLength: 15},
	}
	var (
		rs     preprocess.RecordSet
		labels []int
	)
	for _, p := range profiles {
		for _, c := range []struct {
			rate  float64
			label int
		}{{9.5, 0}, {18.5, 1}} {
			fields := map[string]any{schema.LoanIntRate: c.rate}
			for k, v := range p {
				fields[k] = v
			}
			rec, err := preprocess.RecordFromMap(fields)
			if err != nil {
				panic(err)
			}
			rs = append(rs, rec)
			labels = append(labels, c.label)
		}
	}
	return rs, labels
}

// promote trains on applications and publishes the result as the best
// model under runID.
func promote(t *testing.T, repo *artifact.Repository, runID string) {
	t.Helper()
	ctx := context.Background()
	pipe, err := preprocess.New(schema.Default())
	require.NoError(t, err)
	rs, labels := applications()
	arts, m, err := pipe.FitTransform(rs)
	require.NoError(t, err)
	tree := model.NewDecisionTree(model.DefaultParams())
	require.NoError(t, tree.Fit(m.Rows, labels))

	keys, err := repo.SaveArtifacts(ctx, "20241102", arts)
	require.NoError(t, err)
	modelKey, err := repo.SaveModel(ctx, "20241102", tree)
	require.NoError(t, err)
	require.NoError(t, repo.SaveBest(ctx, artifact.Manifest{
		Model: tree, ModelKey: modelKey, Artifacts: keys, Stamp: "20241102", F1: 1, RunID: runID,
	}))
}

func newPredictor(t *testing.T) (*Predictor, *artifact.Repository) {
	t.Helper()
	repo := artifact.New(memory.New())
	pipe, err := preprocess.New(schema.Default())
	require.NoError(t, err)
	return NewPredictor(repo, pipe), repo
}
