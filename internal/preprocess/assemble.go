package preprocess

import (
	"fmt"
	"slices"
)

// Block is the partial set of output columns produced by one stage.
type Block struct {
	Columns []string
	Rows    [][]float64
}

// Matrix is the assembled feature matrix, columns ordered
// [numeric..., one-hot..., ordinal...].
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

// Shape returns the row and column counts.
func (m Matrix) Shape() (rows, cols int) { return len(m.Rows), len(m.Columns) }

// Assemble concatenates the three blocks column-wise. Row i of the result is
// row i of each block, so all blocks must have the same number of rows.
func Assemble(numeric, oneHot, ordinal Block) (Matrix, error) {
	n := len(numeric.Rows)
	for _, b := range []struct {
		name  string
		block Block
	}{{"one-hot", oneHot}, {"ordinal", ordinal}} {
		if len(b.block.Rows) != n {
			return Matrix{}, fmt.Errorf("assemble: numeric block has %d rows, %s block has %d: %w",
				n, b.name, len(b.block.Rows), ErrRowAlignment)
		}
	}

	cols := slices.Concat(numeric.Columns, oneHot.Columns, ordinal.Columns)
	out := Matrix{Columns: cols, Rows: make([][]float64, n)}
	for i := range n {
		for _, b := range []Block{numeric, oneHot, ordinal} {
			if len(b.Rows[i]) != len(b.Columns) {
				return Matrix{}, fmt.Errorf("assemble: row %d has %d values for %d columns: %w",
					i, len(b.Rows[i]), len(b.Columns), ErrRowAlignment)
			}
		}
		out.Rows[i] = slices.Concat(numeric.Rows[i], oneHot.Rows[i], ordinal.Rows[i])
	}
	return out, nil
}
