package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"creditscore/internal/event"
	"creditscore/internal/logging"
	"creditscore/internal/serving"
	"creditscore/internal/telemetry"
	"creditscore/sink"
	"creditscore/source/kafka"
)

// Stream scores applications read from a source and pushes a prediction
// event per record to the sinks. A record is acknowledged to the source
// once every ack-aware sink has confirmed it, or right away when no sink
// confirms anything.
type Stream struct {
	source kafka.Adapter
	scorer serving.Scorer
	sinks  []sink.Adapter
	aware  int

	mu      sync.Mutex
	subs    []func(*event.Offset)
	waiting map[event.Offset]int
}

func NewStream(scorer serving.Scorer) *Stream {
	return &Stream{scorer: scorer, waiting: map[event.Offset]int{}}
}

func (s *Stream) SetSource(src kafka.Adapter) { s.source = src }

func (s *Stream) AddSink(a sink.Adapter) {
	if aa, ok := a.(sink.AckAware); ok {
		aa.BindAck(s.Ack)
		s.aware++
	}
	s.sinks = append(s.sinks, a)
}

func (s *Stream) SubscribeAck(fn func(*event.Offset)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Ack is bound to every ack-aware sink.
func (s *Stream) Ack(off *event.Offset) {
	if off == nil {
		return
	}
	s.mu.Lock()
	left, ok := s.waiting[*off]
	if !ok {
		s.mu.Unlock()
		return
	}
	if left > 1 {
		s.waiting[*off] = left - 1
		s.mu.Unlock()
		return
	}
	delete(s.waiting, *off)
	s.mu.Unlock()
	s.release(off)
}

// handle turns one message into a prediction event. Request problems
// become an event with error_msg set; anything else stops the stream.
func (s *Stream) handle(ctx context.Context, m *event.Message) error {
	res, err := s.score(ctx, m.Value)
	switch {
	case err == nil:
		telemetry.Predictions.WithLabelValues("kafka", "ok").Inc()
	case serving.IsInputError(err):
		telemetry.Predictions.WithLabelValues("kafka", "invalid").Inc()
		logging.L().Debug("rejected application", "topic", m.Offset.Topic, "partition", m.Offset.Partition, "offset", m.Offset.Offset, "err", err)
	default:
		telemetry.Predictions.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("score %s/%d@%d: %w", m.Offset.Topic, m.Offset.Partition, m.Offset.Offset, err)
	}

	off := m.Offset
	e := event.New(event.KindPrediction, "", map[string]any{"result": res.Result, "error_msg": res.ErrorMsg})
	e.Key = string(m.Key)
	e.Checkpoint = &off

	if s.aware > 0 {
		s.mu.Lock()
		s.waiting[off] = s.aware
		s.mu.Unlock()
	}
	if err := sink.PushAll(s.sinks, e); err != nil {
		s.mu.Lock()
		delete(s.waiting, off)
		s.mu.Unlock()
		return err
	}
	if s.aware == 0 {
		s.release(&off)
	}
	return nil
}

func (s *Stream) score(ctx context.Context, raw []byte) (serving.Result, error) {
	var in map[string]any
	if err := json.Unmarshal(raw, &in); err != nil {
		err = fmt.Errorf("%w: decode application: %w", serving.ErrInvalidInput, err)
		return serving.Result{ErrorMsg: err.Error()}, err
	}
	return s.scorer.Predict(ctx, in)
}

func (s *Stream) release(off *event.Offset) {
	s.mu.Lock()
	handlers := append([]func(*event.Offset){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(off)
	}
}

// Run consumes until ctx is done or a record cannot be handled.
func (s *Stream) Run(ctx context.Context) error {
	if s.source == nil {
		return errors.New("stream: no source configured")
	}
	return s.source.Run(ctx, s.handle)
}

func (s *Stream) Close() error {
	var errs []error
	if s.source != nil {
		errs = append(errs, s.source.Close())
	}
	for _, a := range s.sinks {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}
