package engine

import (
	"context"
	"errors"
	"fmt"

	"creditscore/internal/artifact"
	"creditscore/internal/blob"
	"creditscore/internal/config"
	"creditscore/internal/logging"
	"creditscore/internal/pipeline"
	"creditscore/internal/preprocess"
	"creditscore/internal/serving"
	"creditscore/internal/transport"
)

// Bootstrap opens the blob store, loads the promoted model if there is one
// and starts listening for gRPC. A missing model is not fatal: the service
// answers unavailable until a run promotes one.
func Bootstrap(ctx context.Context, cfg config.Config) (*Engine, error) {
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
		return nil, fmt.Errorf("blob: %w", err)
	}
	pred := serving.NewPredictor(artifact.New(store), pipe)

	srv, err := transport.StartServer(cfg.Serve.GRPCPort, pred)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	pred.Subscribe(func(artifact.Manifest) { srv.SetServing(true) })

	switch err := pred.Load(ctx); {
	case err == nil:
	case errors.Is(err, artifact.ErrNoBestModel):
		logging.L().Warn("no promoted model yet", "key", artifact.BestModelKey)
	default:
		srv.Stop()
		return nil, fmt.Errorf("load model: %w", err)
	}

	var stream *pipeline.Stream
	if cfg.Scoring.Enabled {
		if stream, err = pipeline.CompileStream(cfg, pred); err != nil {
			srv.Stop()
			return nil, fmt.Errorf("scoring: %w", err)
		}
	}

	return &Engine{
		cfg:       cfg.Serve,
		predictor: pred,
		transport: srv,
		stream:    stream,
	}, nil
}
