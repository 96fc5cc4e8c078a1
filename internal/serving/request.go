package serving

import (
	"fmt"
	"maps"

	"creditscore/internal/preprocess"
	"creditscore/internal/schema"
)

// Defaults fills fields a request leaves out.
func Defaults() map[string]any {
	return map[string]any{
		schema.PersonAge:              24,
		schema.PersonIncome:           37500,
		schema.PersonHomeOwnership:    "RENT",
		schema.PersonEmpLength:        2.0,
		schema.LoanIntent:             "DEBTCONSOLIDATION",
		schema.LoanGrade:              "C",
		schema.LoanAmount:             1600,
		schema.LoanIntRate:            11.03,
		schema.LoanPercentIncome:      0.04,
		schema.CBPersonDefaultOnFile:  "Y",
		schema.CBPersonCredHistLength: 3,
	}
}

// Application builds one record from a request body. Absent fields take
// their default; an explicit null stays missing and is imputed.
func Application(in map[string]any) (preprocess.Record, error) {
	fields := Defaults()
	maps.Copy(fields, in)
	rec, err := preprocess.RecordFromMap(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return rec, nil
}
