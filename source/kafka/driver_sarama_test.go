package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscore/internal/event"
)

type fakeSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked map[int32]int64
}

func newFakeSession(ctx context.Context) *fakeSession {
	return &fakeSession{ctx: ctx, marked: map[int32]int64{}}
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string           { return "m" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) MarkOffset(_ string, p int32, off int64, _ string) {
	s.mu.Lock()
	s.marked[p] = off
	s.mu.Unlock()
}
func (s *fakeSession) Commit()                                        {}
func (s *fakeSession) ResetOffset(string, int32, int64, string)       {}
func (s *fakeSession) MarkMessage(*sarama.ConsumerMessage, string)    {}
func (s *fakeSession) Context() context.Context                       { return s.ctx }

func (s *fakeSession) markedAt(p int32) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, ok := s.marked[p]
	return off, ok
}

type fakeClaim struct{ ch chan *sarama.ConsumerMessage }

func (c *fakeClaim) Topic() string                            { return "loans" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func testDriver(mode CommitMode, inflight int64) *SaramaDriver {
	d := &SaramaDriver{}
	d.init(Config{CommitMode: mode, MaxInFlight: inflight})
	return d
}

func msg(off int64) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "loans", Partition: 0, Offset: off, Value: []byte(`{}`)}
}

func TestTracker_CommitsContiguousPrefixOnly(t *testing.T) {
	tr := newOffsetTracker()
	for _, o := range []int64{10, 11, 12} {
		tr.track(event.Offset{Topic: "t", Partition: 1, Offset: o})
	}

	_, advanced, known := tr.ack(event.Offset{Topic: "t", Partition: 1, Offset: 11})
	assert.True(t, known)
	assert.False(t, advanced, "11 acked before 10 must not move the commit")

	next, advanced, _ := tr.ack(event.Offset{Topic: "t", Partition: 1, Offset: 10})
	assert.True(t, advanced)
	assert.Equal(t, int64(12), next)
	assert.Equal(t, 1, tr.pending())

	next, advanced, _ = tr.ack(event.Offset{Topic: "t", Partition: 1, Offset: 12})
	assert.True(t, advanced)
	assert.Equal(t, int64(13), next)
	assert.Zero(t, tr.pending())
}

func TestTracker_UnknownAndDuplicateAcks(t *testing.T) {
	tr := newOffsetTracker()
	tr.track(event.Offset{Topic: "t", Partition: 0, Offset: 5})

	_, _, known := tr.ack(event.Offset{Topic: "t", Partition: 0, Offset: 6})
	assert.False(t, known)
	_, _, known = tr.ack(event.Offset{Topic: "other", Partition: 0, Offset: 5})
	assert.False(t, known)

	_, _, known = tr.ack(event.Offset{Topic: "t", Partition: 0, Offset: 5})
	assert.True(t, known)
	_, _, known = tr.ack(event.Offset{Topic: "t", Partition: 0, Offset: 5})
	assert.False(t, known, "offset already committed")
}

func TestTracker_ForgetAndReset(t *testing.T) {
	tr := newOffsetTracker()
	tr.track(event.Offset{Topic: "t", Partition: 0, Offset: 1})
	tr.track(event.Offset{Topic: "t", Partition: 0, Offset: 2})
	tr.track(event.Offset{Topic: "t", Partition: 3, Offset: 7})

	tr.forget(event.Offset{Topic: "t", Partition: 0, Offset: 1})
	next, advanced, _ := tr.ack(event.Offset{Topic: "t", Partition: 0, Offset: 2})
	assert.True(t, advanced)
	assert.Equal(t, int64(3), next)

	assert.Equal(t, 1, tr.reset())
	assert.Zero(t, tr.pending())
}

func TestSaramaDriver_OnAck_Enqueue(t *testing.T) {
	d := testDriver(CommitE2E, 1)
	d.OnAck(&event.Offset{Topic: "t", Partition: 1, Offset: 42})
	d.OnAck(nil)

	got := <-d.acks
	assert.Equal(t, event.Offset{Topic: "t", Partition: 1, Offset: 42}, got)
}

func TestSaramaDriver_OnAck_DropsWhenFull(t *testing.T) {
	d := testDriver(CommitE2E, 1)
	d.OnAck(&event.Offset{Topic: "t", Offset: 1})
	d.OnAck(&event.Offset{Topic: "t", Offset: 2})
	assert.Len(t, d.acks, 1)
}

func TestConsumeClaim_AutoModeMarksAfterEmit(t *testing.T) {
	d := testDriver(CommitAuto, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := newFakeSession(ctx)
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 3)}
	for _, o := range []int64{0, 1, 2} {
		claim.ch <- msg(o)
	}
	close(claim.ch)

	var seen []int64
	h := &groupHandler{driver: d, emit: func(_ context.Context, m *event.Message) error {
		seen = append(seen, m.Offset.Offset)
		return nil
	}}
	require.NoError(t, h.ConsumeClaim(sess, claim))

	assert.Equal(t, []int64{0, 1, 2}, seen)
	off, ok := sess.markedAt(0)
	require.True(t, ok)
	assert.Equal(t, int64(3), off)
	assert.Zero(t, d.tracker.pending())
}

func TestConsumeClaim_E2EWaitsForAcks(t *testing.T) {
	d := testDriver(CommitE2E, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := newFakeSession(ctx)
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage)}

	emitted := make(chan event.Offset, 2)
	h := &groupHandler{driver: d, emit: func(_ context.Context, m *event.Message) error {
		emitted <- m.Offset
		return nil
	}}
	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(sess, claim) }()

	claim.ch <- msg(0)
	first := <-emitted
	_, ok := sess.markedAt(0)
	assert.False(t, ok, "nothing marked before the sink acks")

	// The second record blocks on the in-flight cap until the first is acked.
	go func() { claim.ch <- msg(1) }()
	select {
	case <-emitted:
		t.Fatal("emitted past the in-flight cap")
	case <-time.After(50 * time.Millisecond):
	}

	d.OnAck(&first)
	second := <-emitted
	assert.Equal(t, int64(1), second.Offset)
	d.OnAck(&second)

	require.Eventually(t, func() bool {
		off, ok := sess.markedAt(0)
		return ok && off == 2
	}, time.Second, 5*time.Millisecond)

	close(claim.ch)
	require.NoError(t, <-done)
}

func TestConsumeClaim_EmitErrorStops(t *testing.T) {
	d := testDriver(CommitAuto, 2)
	sess := newFakeSession(context.Background())
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 1)}
	claim.ch <- msg(9)

	boom := errors.New("boom")
	h := &groupHandler{driver: d, emit: func(context.Context, *event.Message) error { return boom }}
	err := h.ConsumeClaim(sess, claim)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, d.tracker.pending())
	assert.True(t, d.inflight.TryAcquire(2), "slot released after a failed emit")
}

func TestCleanup_ReleasesPending(t *testing.T) {
	d := testDriver(CommitE2E, 2)
	require.True(t, d.inflight.TryAcquire(2))
	d.tracker.track(event.Offset{Topic: "t", Offset: 1})
	d.tracker.track(event.Offset{Topic: "t", Offset: 2})

	h := &groupHandler{driver: d}
	require.NoError(t, h.Cleanup(nil))
	assert.True(t, d.inflight.TryAcquire(2))
}

func TestRun_NotConfigured(t *testing.T) {
	d := &SaramaDriver{}
	assert.Error(t, d.Run(context.Background(), nil))
}

func TestConfigure_RequiresBrokers(t *testing.T) {
	d := &SaramaDriver{}
	assert.Error(t, d.Configure(Config{Topics: []string{"t"}, GroupID: "g"}))
}
