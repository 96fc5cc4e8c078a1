package preprocess

import (
	"encoding/json"
	"fmt"
	"slices"
)

// OneHotEncoder expands each column into one indicator per vocabulary entry.
// Values outside the vocabulary, the sentinel included, encode as all zeros.
type OneHotEncoder struct {
	columns    []string
	categories [][]string
}

// FitOneHotEncoder builds each column's vocabulary from the distinct values
// in rs, excluding sentinel. Vocabularies are sorted so the layout does not
// depend on row order.
func FitOneHotEncoder(rs RecordSet, columns []string, sentinel string) (OneHotEncoder, error) {
	if len(rs) == 0 {
		return OneHotEncoder{}, ErrEmptyRecordSet
	}
	cats := make([][]string, len(columns))
	for j, col := range columns {
		seen := map[string]struct{}{}
		for i, rec := range rs {
			v, err := imputedCell(rec, i, col)
			if err != nil {
				return OneHotEncoder{}, err
			}
			if v == sentinel {
				continue
			}
			seen[v] = struct{}{}
		}
		vocab := make([]string, 0, len(seen))
		for v := range seen {
			vocab = append(vocab, v)
		}
		slices.Sort(vocab)
		cats[j] = vocab
	}
	return OneHotEncoder{columns: slices.Clone(columns), categories: cats}, nil
}

// Apply emits, per row, the concatenated indicator groups in column order.
func (e OneHotEncoder) Apply(rs RecordSet) (Block, error) {
	names := e.FeatureNames()
	out := Block{Columns: names, Rows: make([][]float64, len(rs))}
	for i, rec := range rs {
		row := make([]float64, len(names))
		off := 0
		for j, col := range e.columns {
			v, err := imputedCell(rec, i, col)
			if err != nil {
				return Block{}, err
			}
			if k := slices.Index(e.categories[j], v); k >= 0 {
				row[off+k] = 1
			}
			off += len(e.categories[j])
		}
		out.Rows[i] = row
	}
	return out, nil
}

// FeatureNames lists output columns as <column>_<category>.
func (e OneHotEncoder) FeatureNames() []string {
	var names []string
	for j, col := range e.columns {
		for _, c := range e.categories[j] {
			names = append(names, col+"_"+c)
		}
	}
	return names
}

func (e OneHotEncoder) Columns() []string { return slices.Clone(e.columns) }

// Categories returns the vocabulary of col in output order.
func (e OneHotEncoder) Categories(col string) []string {
	j := slices.Index(e.columns, col)
	if j < 0 {
		return nil
	}
	return slices.Clone(e.categories[j])
}

// Width is the number of indicator columns produced.
func (e OneHotEncoder) Width() int {
	n := 0
	for _, c := range e.categories {
		n += len(c)
	}
	return n
}

type oneHotJSON struct {
	Columns    []string   `json:"columns"`
	Categories [][]string `json:"categories"`
}

func (e OneHotEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(oneHotJSON{Columns: e.columns, Categories: e.categories})
}

func (e *OneHotEncoder) UnmarshalJSON(b []byte) error {
	var w oneHotJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.Columns) != len(w.Categories) {
		return fmt.Errorf("one-hot encoder: %d columns but %d vocabularies", len(w.Columns), len(w.Categories))
	}
	for j := range w.Categories {
		if w.Categories[j] == nil {
			w.Categories[j] = []string{}
		}
	}
	*e = OneHotEncoder{columns: w.Columns, categories: w.Categories}
	return nil
}

// imputedCell reads a categorical cell that must already be filled.
func imputedCell(rec Record, row int, col string) (string, error) {
	v, ok := rec[col]
	if !ok {
		return "", fmt.Errorf("row %d: missing categorical column %q: %w", row, col, ErrSchemaMismatch)
	}
	if v.Kind() != String {
		return "", fmt.Errorf("row %d: categorical column %q holds %s after imputation: %w", row, col, v, ErrSchemaMismatch)
	}
	return v.Text(), nil
}
