package preprocess

import (
	"encoding/json"
	"fmt"
	"slices"

	"creditscore/internal/schema"
)

// Artifacts is the bundle produced by one Fit. It is never modified after
// Fit returns, so one bundle may serve any number of concurrent Transform
// calls. A new training cycle produces a new bundle.
type Artifacts struct {
	version     string
	fingerprint string
	numeric     NumericImputer
	categorical CategoricalImputer
	oneHot      OneHotEncoder
	scaler      Scaler
}

// NewArtifacts rebuilds a bundle from artifacts that were persisted
// separately. Consistency with a schema is checked by Pipeline.Transform.
func NewArtifacts(version, fingerprint string, num NumericImputer, cat CategoricalImputer, ohe OneHotEncoder, sc Scaler) *Artifacts {
	return &Artifacts{
		version:     version,
		fingerprint: fingerprint,
		numeric:     num,
		categorical: cat,
		oneHot:      ohe,
		scaler:      sc,
	}
}

func (a *Artifacts) SchemaVersion() string                  { return a.version }
func (a *Artifacts) Fingerprint() string                    { return a.fingerprint }
func (a *Artifacts) NumericImputer() NumericImputer         { return a.numeric }
func (a *Artifacts) CategoricalImputer() CategoricalImputer { return a.categorical }
func (a *Artifacts) OneHotEncoder() OneHotEncoder           { return a.oneHot }
func (a *Artifacts) Scaler() Scaler                         { return a.scaler }

// FeatureNames lists the output columns these artifacts produce.
func (a *Artifacts) FeatureNames() []string { return a.scaler.Columns() }

// compatible reports why a cannot be used with cols, if it cannot.
func (a *Artifacts) compatible(cols schema.Columns, fingerprint string) error {
	if a == nil {
		return fmt.Errorf("nil artifacts: %w", ErrArtifactVersionMismatch)
	}
	if a.version != schema.Version {
		return fmt.Errorf("artifacts schema version %q, want %q: %w", a.version, schema.Version, ErrArtifactVersionMismatch)
	}
	if a.fingerprint != fingerprint {
		return fmt.Errorf("artifacts fitted for schema %s, pipeline uses %s: %w", a.fingerprint, fingerprint, ErrArtifactVersionMismatch)
	}
	switch {
	case !slices.Equal(a.numeric.columns, cols.Numeric):
		return fmt.Errorf("numeric imputer columns %v: %w", a.numeric.columns, ErrArtifactVersionMismatch)
	case !slices.Equal(a.categorical.columns, cols.Categorical):
		return fmt.Errorf("categorical imputer columns %v: %w", a.categorical.columns, ErrArtifactVersionMismatch)
	case a.categorical.fill != cols.Sentinel:
		return fmt.Errorf("categorical imputer fill %q, schema sentinel %q: %w", a.categorical.fill, cols.Sentinel, ErrArtifactVersionMismatch)
	case !slices.Equal(a.oneHot.columns, cols.OneHot):
		return fmt.Errorf("one-hot columns %v: %w", a.oneHot.columns, ErrArtifactVersionMismatch)
	}
	want := len(cols.Numeric) + a.oneHot.Width() + len(cols.Ordinal)
	if a.scaler.Width() != want {
		return fmt.Errorf("scaler width %d, layout width %d: %w", a.scaler.Width(), want, ErrArtifactVersionMismatch)
	}
	return nil
}

type artifactsJSON struct {
	SchemaVersion      string             `json:"schema_version"`
	Fingerprint        string             `json:"fingerprint"`
	NumericImputer     NumericImputer     `json:"numeric_imputer"`
	CategoricalImputer CategoricalImputer `json:"categorical_imputer"`
	OneHotEncoder      OneHotEncoder      `json:"one_hot_encoder"`
	Scaler             Scaler             `json:"scaler"`
}

func (a *Artifacts) MarshalJSON() ([]byte, error) {
	return json.Marshal(artifactsJSON{
		SchemaVersion:      a.version,
		Fingerprint:        a.fingerprint,
		NumericImputer:     a.numeric,
		CategoricalImputer: a.categorical,
		OneHotEncoder:      a.oneHot,
		Scaler:             a.scaler,
	})
}

// UnmarshalJSON decodes into a fresh bundle; it must not be used on a
// bundle that is already shared.
func (a *Artifacts) UnmarshalJSON(b []byte) error {
	var w artifactsJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*a = *NewArtifacts(w.SchemaVersion, w.Fingerprint, w.NumericImputer, w.CategoricalImputer, w.OneHotEncoder, w.Scaler)
	return nil
}
