package preprocess

import (
	"encoding/json"
	"fmt"
	"slices"
)

// NumericImputer holds the per-column medians learned at fit time.
type NumericImputer struct {
	columns []string
	medians []float64
}

// FitNumericImputer learns the median of the observed values of each column.
func FitNumericImputer(rs RecordSet, columns []string) (NumericImputer, error) {
	if len(rs) == 0 {
		return NumericImputer{}, ErrEmptyRecordSet
	}
	medians := make([]float64, len(columns))
	for j, col := range columns {
		observed := make([]float64, 0, len(rs))
		for i, rec := range rs {
			v, err := numericCell(rec, i, col)
			if err != nil {
				return NumericImputer{}, err
			}
			if !v.IsMissing() {
				observed = append(observed, v.Float())
			}
		}
		if len(observed) == 0 {
			return NumericImputer{}, fmt.Errorf("numeric imputer: column %q: %w", col, ErrNoObservedValues)
		}
		medians[j] = median(observed)
	}
	return NumericImputer{columns: slices.Clone(columns), medians: medians}, nil
}

// Apply returns the numeric block with missing cells replaced by the learned
// medians. Observed values pass through unchanged.
func (m NumericImputer) Apply(rs RecordSet) (Block, error) {
	out := Block{Columns: slices.Clone(m.columns), Rows: make([][]float64, len(rs))}
	for i, rec := range rs {
		row := make([]float64, len(m.columns))
		for j, col := range m.columns {
			v, err := numericCell(rec, i, col)
			if err != nil {
				return Block{}, err
			}
			if v.IsMissing() {
				row[j] = m.medians[j]
			} else {
				row[j] = v.Float()
			}
		}
		out.Rows[i] = row
	}
	return out, nil
}

func (m NumericImputer) Columns() []string { return slices.Clone(m.columns) }

// Median returns the learned median for col.
func (m NumericImputer) Median(col string) (float64, bool) {
	j := slices.Index(m.columns, col)
	if j < 0 {
		return 0, false
	}
	return m.medians[j], true
}

type numericImputerJSON struct {
	Columns []string  `json:"columns"`
	Medians []float64 `json:"medians"`
}

func (m NumericImputer) MarshalJSON() ([]byte, error) {
	return json.Marshal(numericImputerJSON{Columns: m.columns, Medians: m.medians})
}

func (m *NumericImputer) UnmarshalJSON(b []byte) error {
	var w numericImputerJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.Columns) != len(w.Medians) {
		return fmt.Errorf("numeric imputer: %d columns but %d medians", len(w.Columns), len(w.Medians))
	}
	*m = NumericImputer{columns: w.Columns, medians: w.Medians}
	return nil
}

// CategoricalImputer fills missing categorical cells with a constant token.
// Nothing is learned per column; the artifact exists so the fill value
// travels with the rest of the fitted bundle.
type CategoricalImputer struct {
	columns []string
	fill    string
}

// FitCategoricalImputer records fill for every column after checking that
// rs carries the declared columns.
func FitCategoricalImputer(rs RecordSet, columns []string, fill string) (CategoricalImputer, error) {
	if len(rs) == 0 {
		return CategoricalImputer{}, ErrEmptyRecordSet
	}
	for i, rec := range rs {
		for _, col := range columns {
			if _, err := categoricalCell(rec, i, col); err != nil {
				return CategoricalImputer{}, err
			}
		}
	}
	return CategoricalImputer{columns: slices.Clone(columns), fill: fill}, nil
}

// Apply returns new records restricted to the categorical columns, with
// missing values replaced by the fill token. rs is not modified.
func (c CategoricalImputer) Apply(rs RecordSet) (RecordSet, error) {
	out := make(RecordSet, len(rs))
	for i, rec := range rs {
		filled := make(Record, len(c.columns))
		for _, col := range c.columns {
			v, err := categoricalCell(rec, i, col)
			if err != nil {
				return nil, err
			}
			if v.IsMissing() {
				v = Str(c.fill)
			}
			filled[col] = v
		}
		out[i] = filled
	}
	return out, nil
}

func (c CategoricalImputer) Columns() []string { return slices.Clone(c.columns) }
func (c CategoricalImputer) Fill() string      { return c.fill }

type categoricalImputerJSON struct {
	Columns []string `json:"columns"`
	Fill    string   `json:"fill_value"`
}

func (c CategoricalImputer) MarshalJSON() ([]byte, error) {
	return json.Marshal(categoricalImputerJSON{Columns: c.columns, Fill: c.fill})
}

func (c *CategoricalImputer) UnmarshalJSON(b []byte) error {
	var w categoricalImputerJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Fill == "" && len(w.Columns) > 0 {
		return fmt.Errorf("categorical imputer: empty fill value")
	}
	*c = CategoricalImputer{columns: w.Columns, fill: w.Fill}
	return nil
}

func numericCell(rec Record, row int, col string) (Value, error) {
	v, ok := rec[col]
	if !ok {
		return Value{}, fmt.Errorf("row %d: missing numeric column %q: %w", row, col, ErrSchemaMismatch)
	}
	if v.Kind() == String {
		return Value{}, fmt.Errorf("row %d: numeric column %q holds %s: %w", row, col, v, ErrSchemaMismatch)
	}
	return v, nil
}

func categoricalCell(rec Record, row int, col string) (Value, error) {
	v, ok := rec[col]
	if !ok {
		return Value{}, fmt.Errorf("row %d: missing categorical column %q: %w", row, col, ErrSchemaMismatch)
	}
	if v.Kind() == Number {
		return Value{}, fmt.Errorf("row %d: categorical column %q holds %s: %w", row, col, v, ErrSchemaMismatch)
	}
	return v, nil
}

// median of a non-empty slice; even counts average the two middle values.
func median(xs []float64) float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
