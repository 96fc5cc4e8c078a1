package preprocess

import (
	"fmt"
	"slices"
)

// OrdinalEncoder maps values through fixed rank tables. It has no fit step;
// the tables are domain knowledge. Unlike OneHotEncoder there is no unknown
// fallback: a value without a rank is an error.
type OrdinalEncoder struct {
	columns []string
	ranks   map[string][]string
}

func NewOrdinalEncoder(columns []string, ranks map[string][]string) OrdinalEncoder {
	return OrdinalEncoder{columns: columns, ranks: ranks}
}

// Apply returns one column per ordinal column holding the 1-indexed rank.
func (e OrdinalEncoder) Apply(rs RecordSet) (Block, error) {
	out := Block{Columns: slices.Clone(e.columns), Rows: make([][]float64, len(rs))}
	for i, rec := range rs {
		row := make([]float64, len(e.columns))
		for j, col := range e.columns {
			v, err := imputedCell(rec, i, col)
			if err != nil {
				return Block{}, err
			}
			k := slices.Index(e.ranks[col], v)
			if k < 0 {
				return Block{}, fmt.Errorf("row %d: column %q value %q: %w", i, col, v, ErrUnmappedCategory)
			}
			row[j] = float64(k + 1)
		}
		out.Rows[i] = row
	}
	return out, nil
}
