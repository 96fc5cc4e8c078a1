// Package engine runs the prediction service: gRPC, HTTP, metrics, model
// reloads and the optional Kafka scoring stream, stopping them together.
package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"creditscore/internal/config"
	"creditscore/internal/logging"
	"creditscore/internal/pipeline"
	"creditscore/internal/serving"
	"creditscore/internal/telemetry"
	"creditscore/internal/transport"
)

type Engine struct {
	cfg       config.ServeConfig
	predictor *serving.Predictor
	transport *transport.Server
	stream    *pipeline.Stream
}

// Run blocks until ctx is done or one component fails, then stops the
// rest.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.L().Info("grpc listening", "addr", e.transport.Addr().String())
		if err := e.transport.Serve(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		e.transport.Stop()
		return nil
	})
	g.Go(func() error {
		return serving.ServeHTTP(ctx, e.cfg.HTTPPort, serving.Router(e.predictor))
	})
	if e.cfg.MetricsPort > 0 {
		g.Go(func() error { return telemetry.Expose(ctx, e.cfg.MetricsPort) })
	}
	if e.cfg.ReloadInterval > 0 {
		g.Go(func() error { return e.predictor.Watch(ctx, e.cfg.ReloadInterval) })
	}
	if e.stream != nil {
		g.Go(func() error {
			defer func() {
				if err := e.stream.Close(); err != nil {
					logging.L().Warn("closing scoring stream", "err", err)
				}
			}()
			return e.stream.Run(ctx)
		})
	}
	return g.Wait()
}

// Predictor exposes the served model, mainly for status output.
func (e *Engine) Predictor() *serving.Predictor { return e.predictor }
