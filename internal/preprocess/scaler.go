package preprocess

import (
	"encoding/json"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes every column of an assembled matrix with the
// population mean and standard deviation learned at fit time.
// A column whose std is zero scales to 0.0 for every input value.
type Scaler struct {
	columns []string
	means   []float64
	stds    []float64
}

func FitScaler(m Matrix) (Scaler, error) {
	if len(m.Rows) == 0 {
		return Scaler{}, ErrEmptyRecordSet
	}
	width := len(m.Columns)
	means := make([]float64, width)
	stds := make([]float64, width)
	col := make([]float64, len(m.Rows))
	for j := range width {
		for i, row := range m.Rows {
			if len(row) != width {
				return Scaler{}, fmt.Errorf("scaler: row %d has %d values for %d columns: %w", i, len(row), width, ErrRowAlignment)
			}
			col[i] = row[j]
		}
		means[j], stds[j] = stat.PopMeanStdDev(col, nil)
	}
	return Scaler{columns: slices.Clone(m.Columns), means: means, stds: stds}, nil
}

// Apply returns (x - mean) / std per column as a new matrix.
func (s Scaler) Apply(m Matrix) (Matrix, error) {
	if len(m.Columns) != len(s.means) {
		return Matrix{}, fmt.Errorf("scaler: fitted on %d columns, got %d: %w", len(s.means), len(m.Columns), ErrArtifactVersionMismatch)
	}
	out := Matrix{Columns: slices.Clone(m.Columns), Rows: make([][]float64, len(m.Rows))}
	for i, row := range m.Rows {
		if len(row) != len(s.means) {
			return Matrix{}, fmt.Errorf("scaler: row %d has %d values for %d columns: %w", i, len(row), len(s.means), ErrRowAlignment)
		}
		scaled := make([]float64, len(row))
		for j, x := range row {
			if s.stds[j] == 0 {
				continue
			}
			scaled[j] = (x - s.means[j]) / s.stds[j]
		}
		out.Rows[i] = scaled
	}
	return out, nil
}

func (s Scaler) Width() int         { return len(s.means) }
func (s Scaler) Columns() []string  { return slices.Clone(s.columns) }
func (s Scaler) Means() []float64   { return slices.Clone(s.means) }
func (s Scaler) StdDevs() []float64 { return slices.Clone(s.stds) }

type scalerJSON struct {
	Columns []string  `json:"columns"`
	Means   []float64 `json:"means"`
	StdDevs []float64 `json:"std_devs"`
}

func (s Scaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(scalerJSON{Columns: s.columns, Means: s.means, StdDevs: s.stds})
}

func (s *Scaler) UnmarshalJSON(b []byte) error {
	var w scalerJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.Means) != len(w.StdDevs) || len(w.Columns) != len(w.Means) {
		return fmt.Errorf("scaler: inconsistent lengths (columns %d, means %d, std_devs %d)", len(w.Columns), len(w.Means), len(w.StdDevs))
	}
	*s = Scaler{columns: w.Columns, means: w.Means, stds: w.StdDevs}
	return nil
}
