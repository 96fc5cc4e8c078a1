package kafka

import (
	"slices"
	"sync"

	"creditscore/internal/event"
)

type partitionKey struct {
	topic     string
	partition int32
}

// partitionLog holds the offsets emitted but not yet committable, in arrival
// order.
type partitionLog struct {
	offsets []int64
	acked   map[int64]bool
}

// offsetTracker advances a partition's commit position only past a
// contiguous prefix of acked records, so an early ack for a later record
// never commits over one still in flight.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[partitionKey]*partitionLog
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[partitionKey]*partitionLog)}
}

func (t *offsetTracker) track(off event.Offset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := partitionKey{off.Topic, off.Partition}
	log, ok := t.parts[k]
	if !ok {
		log = &partitionLog{acked: make(map[int64]bool)}
		t.parts[k] = log
	}
	log.offsets = append(log.offsets, off.Offset)
}

// ack marks off done. known is false for offsets never tracked (or dropped
// by a rebalance). When the acked prefix grows, next is the offset to commit.
func (t *offsetTracker) ack(off event.Offset) (next int64, advanced, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	log, ok := t.parts[partitionKey{off.Topic, off.Partition}]
	if !ok || !slices.Contains(log.offsets, off.Offset) || log.acked[off.Offset] {
		return 0, false, false
	}
	log.acked[off.Offset] = true

	n := 0
	for n < len(log.offsets) && log.acked[log.offsets[n]] {
		delete(log.acked, log.offsets[n])
		n++
	}
	if n == 0 {
		return 0, false, true
	}
	next = log.offsets[n-1] + 1
	log.offsets = log.offsets[n:]
	return next, true, true
}

// forget drops an offset that will never be acked.
func (t *offsetTracker) forget(off event.Offset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if log, ok := t.parts[partitionKey{off.Topic, off.Partition}]; ok {
		if i := slices.Index(log.offsets, off.Offset); i >= 0 {
			log.offsets = slices.Delete(log.offsets, i, i+1)
			delete(log.acked, off.Offset)
		}
	}
}

// pending counts tracked offsets not yet past the commit position.
func (t *offsetTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, log := range t.parts {
		n += len(log.offsets)
	}
	return n
}

// reset forgets everything and returns how many offsets were dropped.
func (t *offsetTracker) reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, log := range t.parts {
		n += len(log.offsets)
	}
	t.parts = make(map[partitionKey]*partitionLog)
	return n
}
