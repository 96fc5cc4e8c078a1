package model

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// MacroF1 is the unweighted mean of per-label F1 over every label seen in
// either yTrue or yPred. A label with no predicted or no true samples
// scores 0 for the undefined ratio.
func MacroF1(yTrue, yPred []int) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("%w: %d labels vs %d predictions", ErrShape, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, ErrEmptyTrainingSet
	}
	labels := slices.Concat(yTrue, yPred)
	slices.Sort(labels)
	labels = slices.Compact(labels)

	f1s := make([]float64, len(labels))
	for i, label := range labels {
		var tp, fp, fn int
		for j := range yTrue {
			switch {
			case yPred[j] == label && yTrue[j] == label:
				tp++
			case yPred[j] == label:
				fp++
			case yTrue[j] == label:
				fn++
			}
		}
		var prec, rec float64
		if tp+fp > 0 {
			prec = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			rec = float64(tp) / float64(tp+fn)
		}
		if prec+rec > 0 {
			f1s[i] = 2 * prec * rec / (prec + rec)
		}
	}
	return stat.Mean(f1s, nil), nil
}
