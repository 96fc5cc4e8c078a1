// Package serving answers single-application predictions with the promoted
// model and the preprocessing artifacts it was trained against.
package serving

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"creditscore/internal/artifact"
	"creditscore/internal/logging"
	"creditscore/internal/preprocess"
	"creditscore/internal/telemetry"
)

const (
	LabelDefault    = "Default"
	LabelNonDefault = "Non Default"
)

var (
	ErrNotReady     = errors.New("serving: no model loaded")
	ErrInvalidInput = errors.New("serving: invalid input")
)

// Result is the wire shape of every answer.
type Result struct {
	Result   string `json:"result"`
	ErrorMsg string `json:"error_msg"`
}

// IsInputError reports whether err was caused by the request rather than
// the service.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, preprocess.ErrSchemaMismatch) ||
		errors.Is(err, preprocess.ErrUnmappedCategory)
}

type bundle struct {
	manifest artifact.Manifest
	arts     *preprocess.Artifacts
}

// Predictor is safe for concurrent use. Load swaps the served bundle
// atomically; requests in flight finish on the bundle they started with.
type Predictor struct {
	repo *artifact.Repository
	pipe *preprocess.Pipeline

	mu   sync.RWMutex
	cur  *bundle
	subs []func(artifact.Manifest)
}

func NewPredictor(repo *artifact.Repository, pipe *preprocess.Pipeline) *Predictor {
	return &Predictor{repo: repo, pipe: pipe}
}

// Load reads the promoted manifest and its artifacts. On failure the
// previous bundle keeps serving.
func (p *Predictor) Load(ctx context.Context) error {
	m, err := p.repo.LoadBest(ctx)
	if err != nil {
		return err
	}
	if cur, ok := p.Manifest(); ok && cur.RunID == m.RunID && cur.ModelKey == m.ModelKey {
		return nil
	}
	arts, err := p.repo.LoadArtifacts(ctx, m.Artifacts)
	if err != nil {
		return fmt.Errorf("load artifacts of %s: %w", m.ModelKey, err)
	}
	if w := len(arts.FeatureNames()); m.Model.Width != w {
		return fmt.Errorf("serving: model %s expects %d features, artifacts produce %d", m.ModelKey, m.Model.Width, w)
	}

	p.mu.Lock()
	p.cur = &bundle{manifest: m, arts: arts}
	subs := append([]func(artifact.Manifest){}, p.subs...)
	p.mu.Unlock()
	logging.L().Info("model loaded", "model", m.ModelKey, "run_id", m.RunID, "f1", m.F1)

	for _, fn := range subs {
		fn(m)
	}
	return nil
}

// Subscribe registers fn to run after every bundle swap.
func (p *Predictor) Subscribe(fn func(artifact.Manifest)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Watch reloads every interval until ctx is done.
func (p *Predictor) Watch(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			err := p.Load(ctx)
			switch {
			case err == nil:
			case errors.Is(err, artifact.ErrNoBestModel):
				logging.L().Debug("no promoted model yet")
			case ctx.Err() != nil:
				return nil
			default:
				logging.L().Warn("model reload failed", "err", err)
			}
		}
	}
}

func (p *Predictor) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cur != nil
}

// Manifest returns the manifest being served.
func (p *Predictor) Manifest() (artifact.Manifest, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cur == nil {
		return artifact.Manifest{}, false
	}
	return p.cur.manifest, true
}

// Predict scores one application. The returned Result carries the error
// text whenever err is set.
func (p *Predictor) Predict(ctx context.Context, in map[string]any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ErrorMsg: err.Error()}, err
	}
	p.mu.RLock()
	b := p.cur
	p.mu.RUnlock()
	if b == nil {
		return Result{ErrorMsg: ErrNotReady.Error()}, ErrNotReady
	}

	rec, err := Application(in)
	if err != nil {
		return Result{ErrorMsg: err.Error()}, err
	}
	m, err := p.pipe.Transform(preprocess.RecordSet{rec}, b.arts)
	if err != nil {
		return Result{ErrorMsg: err.Error()}, err
	}
	telemetry.RowsPreprocessed.WithLabelValues("serving").Inc()

	pred, err := b.manifest.Model.Predict(m.Rows)
	if err != nil {
		return Result{ErrorMsg: err.Error()}, err
	}
	switch pred[0] {
	case 1:
		return Result{Result: LabelDefault}, nil
	case 0:
		return Result{Result: LabelNonDefault}, nil
	default:
		err := fmt.Errorf("serving: model returned unknown class %d", pred[0])
		return Result{ErrorMsg: err.Error()}, err
	}
}
