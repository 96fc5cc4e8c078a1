// Package model holds the credit-default classifier and its evaluation.
package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTrainingSet = errors.New("model: empty training set")
	ErrShape            = errors.New("model: shape mismatch")
	ErrNotFitted        = errors.New("model: not fitted")
)

// Classifier is trained on a feature matrix and integer labels.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
}

// Params are the decision-tree hyperparameters. MaxDepth 0 grows the tree
// until leaves are pure or too small to split.
type Params struct {
	MaxDepth        int `koanf:"max_depth" json:"max_depth"`
	MinSamplesSplit int `koanf:"min_samples_split" json:"min_samples_split"`
	MinSamplesLeaf  int `koanf:"min_samples_leaf" json:"min_samples_leaf"`
}

func DefaultParams() Params {
	return Params{MaxDepth: 0, MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

func (p Params) Validate() error {
	switch {
	case p.MaxDepth < 0:
		return fmt.Errorf("model.max_depth %d must not be negative", p.MaxDepth)
	case p.MinSamplesSplit < 2:
		return fmt.Errorf("model.min_samples_split %d must be at least 2", p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("model.min_samples_leaf %d must be at least 1", p.MinSamplesLeaf)
	}
	return nil
}

// Evaluate predicts X and scores the result against y with MacroF1.
func Evaluate(c Classifier, X [][]float64, y []int) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return MacroF1(y, pred)
}
