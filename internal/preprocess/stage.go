package preprocess

import "creditscore/internal/schema"

// frame carries intermediate results from one stage to the next.
type frame struct {
	cols    schema.Columns
	records RecordSet

	numeric     Block
	categorical RecordSet
	oneHot      Block
	ordinal     Block
	matrix      Matrix
}

// stage is one step of the pipeline. fit learns the stage's artifact into
// the bundle under construction and then applies it; apply uses the bundle
// as given.
type stage interface {
	name() string
	fit(*frame, *Artifacts) error
	apply(*frame, *Artifacts) error
}

type numericImputerStage struct{}

func (numericImputerStage) name() string { return "numeric_imputer" }

func (s numericImputerStage) fit(f *frame, a *Artifacts) (err error) {
	if a.numeric, err = FitNumericImputer(f.records, f.cols.Numeric); err != nil {
		return err
	}
	return s.apply(f, a)
}

func (numericImputerStage) apply(f *frame, a *Artifacts) (err error) {
	f.numeric, err = a.numeric.Apply(f.records)
	return err
}

type categoricalImputerStage struct{}

func (categoricalImputerStage) name() string { return "categorical_imputer" }

func (s categoricalImputerStage) fit(f *frame, a *Artifacts) (err error) {
	if a.categorical, err = FitCategoricalImputer(f.records, f.cols.Categorical, f.cols.Sentinel); err != nil {
		return err
	}
	return s.apply(f, a)
}

func (categoricalImputerStage) apply(f *frame, a *Artifacts) (err error) {
	f.categorical, err = a.categorical.Apply(f.records)
	return err
}

// oneHotStage fits on imputed values so the sentinel can be left out of the
// vocabulary.
type oneHotStage struct{}

func (oneHotStage) name() string { return "one_hot" }

func (s oneHotStage) fit(f *frame, a *Artifacts) (err error) {
	if a.oneHot, err = FitOneHotEncoder(f.categorical, f.cols.OneHot, f.cols.Sentinel); err != nil {
		return err
	}
	return s.apply(f, a)
}

func (oneHotStage) apply(f *frame, a *Artifacts) (err error) {
	f.oneHot, err = a.oneHot.Apply(f.categorical)
	return err
}

type ordinalStage struct{ enc OrdinalEncoder }

func (ordinalStage) name() string { return "ordinal" }

func (s ordinalStage) fit(f *frame, a *Artifacts) error { return s.apply(f, a) }

func (s ordinalStage) apply(f *frame, _ *Artifacts) (err error) {
	f.ordinal, err = s.enc.Apply(f.categorical)
	return err
}

type assembleStage struct{}

func (assembleStage) name() string { return "assemble" }

func (s assembleStage) fit(f *frame, a *Artifacts) error { return s.apply(f, a) }

func (assembleStage) apply(f *frame, _ *Artifacts) (err error) {
	f.matrix, err = Assemble(f.numeric, f.oneHot, f.ordinal)
	return err
}

// scalerStage is fitted on the fully assembled matrix.
type scalerStage struct{}

func (scalerStage) name() string { return "scaler" }

func (s scalerStage) fit(f *frame, a *Artifacts) (err error) {
	if a.scaler, err = FitScaler(f.matrix); err != nil {
		return err
	}
	return s.apply(f, a)
}

func (scalerStage) apply(f *frame, a *Artifacts) (err error) {
	f.matrix, err = a.scaler.Apply(f.matrix)
	return err
}
