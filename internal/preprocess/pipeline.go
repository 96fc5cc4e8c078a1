// Package preprocess turns raw loan-application records into the numeric
// feature matrix used for training and serving.
//
// Fit learns a bundle of artifacts from a training split; Transform applies
// a bundle to any record set, from a full split down to a single request.
// Both run the same ordered stages, so identical input and artifacts always
// give identical output.
package preprocess

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"creditscore/internal/schema"
)

// Pipeline runs the preprocessing stages for one column schema.
type Pipeline struct {
	cols        schema.Columns
	fingerprint string
	stages      []stage
}

// New validates cols and builds the stage sequence.
func New(cols schema.Columns) (*Pipeline, error) {
	if err := cols.Validate(); err != nil {
		return nil, err
	}
	cols = cols.Clone()
	return &Pipeline{
		cols:        cols,
		fingerprint: cols.Fingerprint(),
		stages: []stage{
			numericImputerStage{},
			categoricalImputerStage{},
			oneHotStage{},
			ordinalStage{enc: NewOrdinalEncoder(cols.Ordinal, cols.Ranks)},
			assembleStage{},
			scalerStage{},
		},
	}, nil
}

// Schema returns a copy of the pipeline's column schema.
func (p *Pipeline) Schema() schema.Columns { return p.cols.Clone() }

// Stages names the stages in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.name()
	}
	return names
}

// Fit learns a new artifact bundle from the training split rs.
func (p *Pipeline) Fit(rs RecordSet) (*Artifacts, error) {
	a, _, err := p.FitTransform(rs)
	return a, err
}

// FitTransform learns a bundle from rs and also returns the feature matrix
// of rs computed during fitting. It equals Transform(rs, artifacts).
func (p *Pipeline) FitTransform(rs RecordSet) (*Artifacts, Matrix, error) {
	if len(rs) == 0 {
		return nil, Matrix{}, ErrEmptyRecordSet
	}
	if err := p.checkColumns(rs); err != nil {
		return nil, Matrix{}, err
	}
	a := &Artifacts{version: schema.Version, fingerprint: p.fingerprint}
	st := &frame{cols: p.cols, records: rs}
	for _, s := range p.stages {
		if err := s.fit(st, a); err != nil {
			return nil, Matrix{}, stageError(s, err)
		}
	}
	return a, st.matrix, nil
}

// Transform applies a previously fitted bundle to rs. It never refits or
// mutates a, and is safe for concurrent use with the same bundle.
func (p *Pipeline) Transform(rs RecordSet, a *Artifacts) (Matrix, error) {
	if err := a.compatible(p.cols, p.fingerprint); err != nil {
		return Matrix{}, err
	}
	if err := p.checkColumns(rs); err != nil {
		return Matrix{}, err
	}
	st := &frame{cols: p.cols, records: rs}
	for _, s := range p.stages {
		if err := s.apply(st, a); err != nil {
			return Matrix{}, stageError(s, err)
		}
	}
	return st.matrix, nil
}

// checkColumns rejects undeclared columns when the schema is strict.
func (p *Pipeline) checkColumns(rs RecordSet) error {
	if !p.cols.Strict {
		return nil
	}
	for i, rec := range rs {
		for _, col := range slices.Sorted(maps.Keys(rec)) {
			if !p.cols.Declared(col) {
				return fmt.Errorf("row %d: undeclared column %q: %w", i, col, ErrSchemaMismatch)
			}
		}
	}
	return nil
}

func stageError(s stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: s.name(), Err: err}
}

// StageError records which stage failed. It unwraps to the taxonomy errors.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return "preprocess " + e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }
