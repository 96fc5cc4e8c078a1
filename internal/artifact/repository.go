// Package artifact stores extractions, split datasets, fitted
// preprocessing artifacts and models in the blob store under date-stamped
// keys.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creditscore/internal/blob"
	"creditscore/internal/extract"
	"creditscore/internal/model"
	"creditscore/internal/preprocess"
)

// BestModelKey holds the promoted manifest.
const BestModelKey = "best_model.json"

// Artifact kinds, as they appear in keys.
const (
	KindNumImputer = "num_imputer"
	KindCatImputer = "cat_imputer"
	KindOneHot     = "ohe"
	KindScaler     = "scaler"
)

// Split names.
const (
	SplitTrain = "trainset"
	SplitValid = "validset"
	SplitTest  = "testset"
)

var ErrNoBestModel = errors.New("artifact: no promoted model")

func ExtractionKey(stamp string) string    { return "extraction_" + stamp + ".json" }
func SplitKey(name, stamp string) string    { return "preprocess_" + name + "_" + stamp + ".json" }
func ArtifactKey(kind, stamp string) string { return "preprocess_" + kind + "_" + stamp + ".json" }
func ModelKey(stamp string) string          { return "training_model_" + stamp + ".json" }

// ArtifactKeys names the four artifacts of one fit.
type ArtifactKeys struct {
	NumImputer string `json:"num_imputer"`
	CatImputer string `json:"cat_imputer"`
	OneHot     string `json:"ohe"`
	Scaler     string `json:"scaler"`
}

// Dataset is a transformed split with its labels.
type Dataset struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
	Labels  []int       `json:"labels"`
}

// Manifest is what serving loads: the promoted model together with the
// artifacts it was trained against.
type Manifest struct {
	Model      *model.DecisionTree `json:"model"`
	ModelKey   string              `json:"model_key"`
	Artifacts  ArtifactKeys        `json:"artifacts"`
	Stamp      string              `json:"stamp"`
	F1         float64             `json:"f1"`
	RunID      string              `json:"run_id"`
	PromotedAt time.Time           `json:"promoted_at"`
}

// envelope wraps each artifact so a file can be checked on its own.
type envelope struct {
	SchemaVersion string          `json:"schema_version"`
	Fingerprint   string          `json:"fingerprint"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
}

type Repository struct {
	store blob.Store
}

func New(store blob.Store) *Repository { return &Repository{store: store} }

// put overwrites, so a rerun for the same extraction date replaces its
// blobs.
func (r *Repository) put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := r.store.Put(ctx, key, bytes.NewReader(b), blob.PutOptions{ContentType: "application/json", Overwrite: true}); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, key string, v any) error {
	_, rc, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (r *Repository) SaveExtraction(ctx context.Context, b extract.Batch) (string, error) {
	key := ExtractionKey(b.Stamp())
	return key, r.put(ctx, key, b)
}

func (r *Repository) LoadExtraction(ctx context.Context, stamp string) (extract.Batch, error) {
	var b extract.Batch
	err := r.get(ctx, ExtractionKey(stamp), &b)
	return b, err
}

func (r *Repository) SaveSplit(ctx context.Context, name, stamp string, m preprocess.Matrix, labels []int) (string, error) {
	if len(m.Rows) != len(labels) {
		return "", fmt.Errorf("artifact: split %s has %d rows and %d labels", name, len(m.Rows), len(labels))
	}
	key := SplitKey(name, stamp)
	return key, r.put(ctx, key, Dataset{Columns: m.Columns, Rows: m.Rows, Labels: labels})
}

func (r *Repository) LoadSplit(ctx context.Context, key string) (Dataset, error) {
	var d Dataset
	err := r.get(ctx, key, &d)
	return d, err
}

// SaveArtifacts writes each artifact of a under its own key.
func (r *Repository) SaveArtifacts(ctx context.Context, stamp string, a *preprocess.Artifacts) (ArtifactKeys, error) {
	keys := ArtifactKeys{
		NumImputer: ArtifactKey(KindNumImputer, stamp),
		CatImputer: ArtifactKey(KindCatImputer, stamp),
		OneHot:     ArtifactKey(KindOneHot, stamp),
		Scaler:     ArtifactKey(KindScaler, stamp),
	}
	for _, p := range []struct {
		key, kind string
		v         any
	}{
		{keys.NumImputer, KindNumImputer, a.NumericImputer()},
		{keys.CatImputer, KindCatImputer, a.CategoricalImputer()},
		{keys.OneHot, KindOneHot, a.OneHotEncoder()},
		{keys.Scaler, KindScaler, a.Scaler()},
	} {
		payload, err := json.Marshal(p.v)
		if err != nil {
			return ArtifactKeys{}, fmt.Errorf("encode %s: %w", p.kind, err)
		}
		env := envelope{SchemaVersion: a.SchemaVersion(), Fingerprint: a.Fingerprint(), Kind: p.kind, Payload: payload}
		if err := r.put(ctx, p.key, env); err != nil {
			return ArtifactKeys{}, err
		}
	}
	return keys, nil
}

// LoadArtifacts reassembles a bundle. All four files must come from the
// same fit: same schema version and fingerprint.
func (r *Repository) LoadArtifacts(ctx context.Context, keys ArtifactKeys) (*preprocess.Artifacts, error) {
	var (
		num    preprocess.NumericImputer
		cat    preprocess.CategoricalImputer
		ohe    preprocess.OneHotEncoder
		scaler preprocess.Scaler
		first  *envelope
	)
	for _, p := range []struct {
		key, kind string
		into      any
	}{
		{keys.NumImputer, KindNumImputer, &num},
		{keys.CatImputer, KindCatImputer, &cat},
		{keys.OneHot, KindOneHot, &ohe},
		{keys.Scaler, KindScaler, &scaler},
	} {
		var env envelope
		if err := r.get(ctx, p.key, &env); err != nil {
			return nil, err
		}
		if env.Kind != p.kind {
			return nil, fmt.Errorf("%w: %s holds %q, want %q", preprocess.ErrArtifactVersionMismatch, p.key, env.Kind, p.kind)
		}
		if first == nil {
			first = &env
		} else if env.SchemaVersion != first.SchemaVersion || env.Fingerprint != first.Fingerprint {
			return nil, fmt.Errorf("%w: %s was fitted separately from %s", preprocess.ErrArtifactVersionMismatch, p.key, keys.NumImputer)
		}
		if err := json.Unmarshal(env.Payload, p.into); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p.key, err)
		}
	}
	return preprocess.NewArtifacts(first.SchemaVersion, first.Fingerprint, num, cat, ohe, scaler), nil
}

func (r *Repository) SaveModel(ctx context.Context, stamp string, m *model.DecisionTree) (string, error) {
	key := ModelKey(stamp)
	return key, r.put(ctx, key, m)
}

func (r *Repository) LoadModel(ctx context.Context, key string) (*model.DecisionTree, error) {
	var m model.DecisionTree
	if err := r.get(ctx, key, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) SaveBest(ctx context.Context, m Manifest) error {
	if m.Model == nil {
		return errors.New("artifact: manifest without model")
	}
	return r.put(ctx, BestModelKey, m)
}

// LoadBest returns ErrNoBestModel when nothing has been promoted yet.
func (r *Repository) LoadBest(ctx context.Context) (Manifest, error) {
	var m Manifest
	err := r.get(ctx, BestModelKey, &m)
	if errors.Is(err, blob.ErrNotFound) {
		return Manifest{}, ErrNoBestModel
	}
	if err == nil && m.Model == nil {
		return Manifest{}, fmt.Errorf("artifact: %s has no model", BestModelKey)
	}
	return m, err
}

// Head reports when key was last written.
func (r *Repository) Head(ctx context.Context, key string) (blob.Info, error) {
	return r.store.Head(ctx, key)
}
