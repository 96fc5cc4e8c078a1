package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscore/internal/event"
	"creditscore/internal/serving"
	"creditscore/source/kafka"
)

type fakeScorer struct{ err error }

func (f fakeScorer) Predict(_ context.Context, in map[string]any) (serving.Result, error) {
	if f.err != nil {
		return serving.Result{ErrorMsg: f.err.Error()}, f.err
	}
	if rate, _ := in["loan_int_rate"].(float64); rate > 15 {
		return serving.Result{Result: serving.LabelDefault}, nil
	}
	return serving.Result{Result: serving.LabelNonDefault}, nil
}

type fakeConsumer struct {
	msgs []*event.Message

	mu    sync.Mutex
	acked []event.Offset
}

func (f *fakeConsumer) Configure(kafka.Config) error { return nil }
func (f *fakeConsumer) Run(ctx context.Context, emit kafka.EmitFunc) error {
	for _, m := range f.msgs {
		if err := emit(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
func (f *fakeConsumer) OnAck(off *event.Offset) {
	f.mu.Lock()
	f.acked = append(f.acked, *off)
	f.mu.Unlock()
}
func (f *fakeConsumer) Close() error { return nil }

func msg(off int64, body string) *event.Message {
	return &event.Message{Key: []byte("app"), Value: []byte(body), Offset: event.Offset{Topic: "applications", Partition: 0, Offset: off}}
}

func newStream(sc serving.Scorer, msgs ...*event.Message) (*Stream, *fakeConsumer) {
	src := &fakeConsumer{msgs: msgs}
	s := NewStream(sc)
	s.SetSource(src)
	s.SubscribeAck(src.OnAck)
	return s, src
}

func TestStream_PredictsAndAcksAfterSink(t *testing.T) {
	s, src := newStream(fakeScorer{}, msg(7, `{"loan_int_rate": 19.5}`), msg(8, `{}`))
	cs := &captureSink{}
	s.AddSink(cs)

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, cs.events, 2)
	assert.Equal(t, event.KindPrediction, cs.events[0].Kind)
	assert.Equal(t, "app", cs.events[0].Key)
	assert.Equal(t, serving.LabelDefault, cs.events[0].Attrs["result"])
	assert.Equal(t, serving.LabelNonDefault, cs.events[1].Attrs["result"])
	assert.Equal(t, int64(7), cs.events[0].Checkpoint.Offset)
	assert.Equal(t, []event.Offset{
		{Topic: "applications", Offset: 7},
		{Topic: "applications", Offset: 8},
	}, src.acked)
}

func TestStream_WaitsForEveryAckAwareSink(t *testing.T) {
	s, src := newStream(fakeScorer{}, msg(1, `{}`))
	first := &captureSink{noAck: true}
	second := &captureSink{}
	s.AddSink(first)
	s.AddSink(second)

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, src.acked)

	first.ackFn(first.events[0].Checkpoint)
	assert.Len(t, src.acked, 1)

	// Late duplicates are ignored.
	first.ackFn(first.events[0].Checkpoint)
	assert.Len(t, src.acked, 1)
}

type plainSink struct{ n int }

func (p *plainSink) Configure(any) error { return nil }
func (p *plainSink) Close() error        { return nil }
func (p *plainSink) Push(*event.Event) error {
	p.n++
	return nil
}

func TestStream_AcksImmediatelyWithoutAckAwareSink(t *testing.T) {
	s, src := newStream(fakeScorer{}, msg(3, `{}`))
	ps := &plainSink{}
	s.AddSink(ps)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1, ps.n)
	assert.Equal(t, []event.Offset{{Topic: "applications", Offset: 3}}, src.acked)
}

func TestStream_InvalidJSONBecomesErrorEvent(t *testing.T) {
	s, src := newStream(fakeScorer{}, msg(4, `{not json`))
	cs := &captureSink{}
	s.AddSink(cs)

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, cs.events, 1)
	assert.Equal(t, "", cs.events[0].Attrs["result"])
	assert.NotEmpty(t, cs.events[0].Attrs["error_msg"])
	assert.Len(t, src.acked, 1)
}

func TestStream_ServiceErrorStops(t *testing.T) {
	s, src := newStream(fakeScorer{err: serving.ErrNotReady}, msg(5, `{}`), msg(6, `{}`))
	cs := &captureSink{}
	s.AddSink(cs)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, serving.ErrNotReady)
	assert.Empty(t, cs.events)
	assert.Empty(t, src.acked)
}

func TestStream_NoSource(t *testing.T) {
	assert.Error(t, NewStream(fakeScorer{}).Run(context.Background()))
}
