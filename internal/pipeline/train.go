// Package pipeline wires the batch training run and the streamed scoring
// loop out of the extraction, preprocessing, model and sink packages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"creditscore/internal/artifact"
	"creditscore/internal/config"
	"creditscore/internal/dataset"
	"creditscore/internal/event"
	"creditscore/internal/extract"
	"creditscore/internal/logging"
	"creditscore/internal/model"
	"creditscore/internal/preprocess"
	"creditscore/internal/state"
	"creditscore/internal/telemetry"
	"creditscore/sink"
)

// Source yields the rows added since the last committed extraction.
type Source interface {
	Extract(ctx context.Context) (extract.Batch, error)
	Commit(ctx context.Context, b extract.Batch) error
}

// History holds pipeline variables and the run log.
type History interface {
	GetVariable(ctx context.Context, key string) (string, bool, error)
	SetVariable(ctx context.Context, key, value string) error
	CreateRun(ctx context.Context, id string) (*state.Run, error)
	FinishRun(ctx context.Context, r *state.Run) error
}

// Report summarises one run.
type Report struct {
	RunID          string
	Status         state.RunStatus
	ExtractionDate string
	Rows           int
	TrainRows      int
	ValidRows      int
	TestRows       int
	ValidF1        float64
	CurrentF1      float64
	BestF1         float64
	Promoted       bool
	ModelKey       string
}

// Runner executes extraction, preprocessing, training and promotion as
// one run. The watermark moves only when every stage succeeded.
type Runner struct {
	source  Source
	history History
	repo    *artifact.Repository
	pipe    *preprocess.Pipeline
	split   config.SplitConfig
	params  model.Params
	sinks   []sink.Adapter
	closers []io.Closer

	newID func() string
}

func NewRunner(src Source, h History, repo *artifact.Repository, pipe *preprocess.Pipeline, split config.SplitConfig, params model.Params) *Runner {
	return &Runner{
		source:  src,
		history: h,
		repo:    repo,
		pipe:    pipe,
		split:   split,
		params:  params,
		newID:   uuid.NewString,
	}
}

func (r *Runner) AddSink(s sink.Adapter) { r.sinks = append(r.sinks, s) }

// Close releases sinks and whatever Compile opened for the runner.
func (r *Runner) Close() error {
	var errs []error
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	return errors.Join(errs...)
}

// Run performs one pipeline run. No new data is not an error: the report
// carries state.RunNoNewData.
func (r *Runner) Run(ctx context.Context) (rep Report, err error) {
	rep.RunID = r.newID()
	log := logging.Run(rep.RunID)
	run, err := r.history.CreateRun(ctx, rep.RunID)
	if err != nil {
		return rep, err
	}
	log.Info("run started")
	r.notify(event.New(event.KindRunStarted, rep.RunID, nil))

	defer func() {
		switch {
		case errors.Is(err, extract.ErrNoNewData):
			rep.Status, err = state.RunNoNewData, nil
		case err != nil:
			rep.Status = state.RunFailed
			run.Error = err.Error()
		default:
			rep.Status = state.RunSucceeded
		}
		r.finish(ctx, log, run, &rep, &err)
	}()

	start := time.Now()
	batch, err := r.source.Extract(ctx)
	if err != nil {
		return rep, err
	}
	rep.ExtractionDate, rep.Rows = batch.To, len(batch.Records)
	if _, err = r.repo.SaveExtraction(ctx, batch); err != nil {
		return rep, err
	}
	r.stageDone(log, rep.RunID, "extraction", start, map[string]any{"rows": rep.Rows, "from": batch.From, "to": batch.To})

	start = time.Now()
	part, prep, err := r.preprocess(ctx, batch)
	if err != nil {
		return rep, fmt.Errorf("preprocessing: %w", err)
	}
	rep.TrainRows, rep.ValidRows, rep.TestRows = part.Train.Len(), part.Valid.Len(), part.Test.Len()
	r.stageDone(log, rep.RunID, "preprocessing", start, map[string]any{"train": rep.TrainRows, "valid": rep.ValidRows, "test": rep.TestRows})

	start = time.Now()
	if err = r.train(ctx, log, batch.Stamp(), part, prep, &rep); err != nil {
		return rep, fmt.Errorf("training: %w", err)
	}
	r.stageDone(log, rep.RunID, "training", start, map[string]any{"current_f1": rep.CurrentF1, "best_f1": rep.BestF1, "promoted": rep.Promoted})

	if err = r.source.Commit(ctx, batch); err != nil {
		return rep, fmt.Errorf("commit watermark: %w", err)
	}
	return rep, nil
}

// prepared is a split after transformation.
type prepared struct {
	arts               *preprocess.Artifacts
	keys               artifact.ArtifactKeys
	train, valid, test preprocess.Matrix
}

func (r *Runner) preprocess(ctx context.Context, b extract.Batch) (dataset.Partition, prepared, error) {
	part, err := dataset.ThreeWay(b.Records, b.Labels, r.split.TestSize, r.split.ValidShare, r.split.Seed)
	if err != nil {
		return dataset.Partition{}, prepared{}, err
	}
	var p prepared
	if p.arts, p.train, err = r.pipe.FitTransform(part.Train.Records); err != nil {
		return dataset.Partition{}, prepared{}, err
	}
	if p.valid, err = r.pipe.Transform(part.Valid.Records, p.arts); err != nil {
		return dataset.Partition{}, prepared{}, fmt.Errorf("valid set: %w", err)
	}
	if p.test, err = r.pipe.Transform(part.Test.Records, p.arts); err != nil {
		return dataset.Partition{}, prepared{}, fmt.Errorf("test set: %w", err)
	}
	telemetry.RowsPreprocessed.WithLabelValues("training").Add(float64(len(b.Records)))

	stamp := b.Stamp()
	for _, s := range []struct {
		name   string
		m      preprocess.Matrix
		labels []int
	}{
		{artifact.SplitTrain, p.train, part.Train.Labels},
		{artifact.SplitValid, p.valid, part.Valid.Labels},
		{artifact.SplitTest, p.test, part.Test.Labels},
	} {
		if _, err := r.repo.SaveSplit(ctx, s.name, stamp, s.m, s.labels); err != nil {
			return dataset.Partition{}, prepared{}, err
		}
	}
	if p.keys, err = r.repo.SaveArtifacts(ctx, stamp, p.arts); err != nil {
		return dataset.Partition{}, prepared{}, err
	}
	return part, p, nil
}

func (r *Runner) train(ctx context.Context, log *slog.Logger, stamp string, part dataset.Partition, p prepared, rep *Report) error {
	tree := model.NewDecisionTree(r.params)
	if err := tree.Fit(p.train.Rows, part.Train.Labels); err != nil {
		return err
	}
	key, err := r.repo.SaveModel(ctx, stamp, tree)
	if err != nil {
		return err
	}
	rep.ModelKey = key
	if rep.ValidF1, err = model.Evaluate(tree, p.valid.Rows, part.Valid.Labels); err != nil {
		return fmt.Errorf("valid set: %w", err)
	}
	if rep.CurrentF1, err = model.Evaluate(tree, p.test.Rows, part.Test.Labels); err != nil {
		return fmt.Errorf("test set: %w", err)
	}

	promote, incumbent, err := r.challenge(ctx, log, rep.CurrentF1, part.Test)
	if err != nil {
		return err
	}
	rep.BestF1 = incumbent
	if promote {
		m := artifact.Manifest{
			Model:      tree,
			ModelKey:   key,
			Artifacts:  p.keys,
			Stamp:      stamp,
			F1:         rep.CurrentF1,
			RunID:      rep.RunID,
			PromotedAt: time.Now().UTC(),
		}
		if err := r.repo.SaveBest(ctx, m); err != nil {
			return err
		}
		if err := r.history.SetVariable(ctx, state.VarPrevBestModel, artifact.BestModelKey); err != nil {
			return err
		}
		rep.Promoted, rep.BestF1 = true, rep.CurrentF1
		log.Info("model promoted", "model", key, "f1", rep.CurrentF1)
		r.notify(event.New(event.KindModelPromoted, rep.RunID, map[string]any{"model": key, "f1": rep.CurrentF1}))
	}
	telemetry.ModelF1.WithLabelValues("current").Set(rep.CurrentF1)
	telemetry.ModelF1.WithLabelValues("best").Set(rep.BestF1)
	return nil
}

// challenge scores the incumbent on the current test rows through its own
// artifacts and reports whether f1 beats it, along with the incumbent's
// score.
func (r *Runner) challenge(ctx context.Context, log *slog.Logger, f1 float64, test dataset.Part) (bool, float64, error) {
	_, ok, err := r.history.GetVariable(ctx, state.VarPrevBestModel)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		log.Info("no previous best model")
		return true, 0, nil
	}
	best, err := r.repo.LoadBest(ctx)
	if errors.Is(err, artifact.ErrNoBestModel) {
		log.Warn("best model pointer set but nothing stored", "key", artifact.BestModelKey)
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	incumbent, err := r.score(ctx, best, test)
	if err != nil {
		if !disqualifies(err) {
			return false, 0, err
		}
		log.Warn("previous best model cannot score the test set", "model", best.ModelKey, "err", err)
		return true, 0, nil
	}
	log.Info("compared with previous best model", "previous_f1", incumbent, "current_f1", f1)
	return f1 > incumbent, incumbent, nil
}

func (r *Runner) score(ctx context.Context, m artifact.Manifest, test dataset.Part) (float64, error) {
	arts, err := r.repo.LoadArtifacts(ctx, m.Artifacts)
	if err != nil {
		return 0, err
	}
	x, err := r.pipe.Transform(test.Records, arts)
	if err != nil {
		return 0, err
	}
	return model.Evaluate(m.Model, x.Rows, test.Labels)
}

// disqualifies reports errors that make an incumbent unusable on the
// current schema or data rather than pointing at a broken store.
func disqualifies(err error) bool {
	return errors.Is(err, preprocess.ErrArtifactVersionMismatch) ||
		errors.Is(err, preprocess.ErrSchemaMismatch) ||
		errors.Is(err, preprocess.ErrUnmappedCategory) ||
		errors.Is(err, model.ErrShape)
}

func (r *Runner) finish(ctx context.Context, log *slog.Logger, run *state.Run, rep *Report, err *error) {
	run.Status = rep.Status
	run.ExtractionDate = rep.ExtractionDate
	run.ExtractedRows = rep.Rows
	run.Promoted = rep.Promoted
	if rep.ModelKey != "" && rep.Status == state.RunSucceeded {
		cur, best := rep.CurrentF1, rep.BestF1
		run.CurrentF1, run.BestF1 = &cur, &best
	}
	if ferr := r.history.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		*err = errors.Join(*err, ferr)
	}
	telemetry.PipelineRuns.WithLabelValues(string(rep.Status)).Inc()

	attrs := map[string]any{"status": string(rep.Status), "rows": rep.Rows}
	if run.Error != "" {
		attrs["error"] = run.Error
		log.Error("run failed", "err", run.Error)
	} else {
		log.Info("run finished", "status", rep.Status, "rows", rep.Rows, "promoted", rep.Promoted)
	}
	r.notify(event.New(event.KindRunFinished, rep.RunID, attrs))
}

func (r *Runner) stageDone(log *slog.Logger, runID, stage string, start time.Time, attrs map[string]any) {
	telemetry.ObserveStage(stage, start)
	log.Info("stage completed", "stage", stage, "took", time.Since(start))
	attrs["stage"] = stage
	r.notify(event.New(event.KindStageCompleted, runID, attrs))
}

// notify is best effort; a failing sink never fails a run.
func (r *Runner) notify(e *event.Event) {
	if err := sink.PushAll(r.sinks, e); err != nil {
		logging.Run(e.RunID).Warn("event not delivered", "kind", e.Kind, "err", err)
	}
}
