package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"creditscore/internal/artifact"
	"creditscore/internal/blob"
	"creditscore/internal/config"
	"creditscore/internal/extract"
	"creditscore/internal/preprocess"
	"creditscore/internal/serving"
	"creditscore/internal/state"
	"creditscore/sink"
	"creditscore/source/kafka"
)

// Compile opens every collaborator of a batch run from cfg.
func Compile(ctx context.Context, cfg config.Config) (_ *Runner, err error) {
	if cfg.Source.DSN == "" {
		return nil, errors.New("pipeline: source.dsn is required")
	}
	var opened []io.Closer
	defer func() {
		if err != nil {
			closeAll(opened)
		}
	}()

	cols, err := config.LoadSchemaFile(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	pipe, err := preprocess.New(cols)
	if err != nil {
		return nil, err
	}
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, err
	}
	st, err := state.Open(ctx, cfg.State.Path)
	if err != nil {
		return nil, err
	}
	opened = append(opened, st)
	db, err := extract.Open(ctx, cfg.Source.DSN)
	if err != nil {
		return nil, err
	}
	opened = append(opened, db)
	ex, err := extract.New(db, cfg.Source.Table, st, cols)
	if err != nil {
		return nil, err
	}

	r := NewRunner(ex, st, artifact.New(store), pipe, cfg.Split, cfg.Model)
	sinks, err := buildSinks(cfg)
	if err != nil {
		return nil, err
	}
	for _, s := range sinks {
		r.AddSink(s)
	}
	r.closers = opened
	return r, nil
}

// CompileStream builds the Kafka scoring loop around scorer.
func CompileStream(cfg config.Config, scorer serving.Scorer) (*Stream, error) {
	src, err := kafka.NewAdapter(cfg.Scoring.Driver)
	if err != nil {
		return nil, err
	}
	if err = src.Configure(cfg.Scoring.Kafka); err != nil {
		return nil, err
	}
	s := NewStream(scorer)
	s.SetSource(src)
	s.SubscribeAck(src.OnAck)

	sinks, err := buildSinks(cfg)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	for _, a := range sinks {
		s.AddSink(a)
	}
	return s, nil
}

func buildSinks(cfg config.Config) ([]sink.Adapter, error) {
	var out []sink.Adapter
	for _, name := range cfg.Sinks {
		a, err := sink.NewAdapter(name)
		if err != nil {
			closeSinks(out)
			return nil, err
		}
		switch name {
		case "stdout":
			err = a.Configure(cfg.SinkConfigs.Stdout)
		case "kafka":
			err = a.Configure(cfg.SinkConfigs.Kafka)
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			closeSinks(out)
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func closeSinks(ss []sink.Adapter) {
	for _, s := range ss {
		_ = s.Close()
	}
}

func closeAll(cs []io.Closer) {
	for i := len(cs) - 1; i >= 0; i-- {
		_ = cs[i].Close()
	}
}
