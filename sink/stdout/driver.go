package stdout

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"creditscore/internal/event"
	"creditscore/sink"
)

type Config struct {
	PrintCounter bool `koanf:"print_counter"`  // prepend seq#
	BatchSize    int  `koanf:"ack_batch_size"` // 0 = ack on every push
	FlushMS      int  `koanf:"ack_flush_ms"`   // 0 = no timer
}

type driver struct {
	cfg Config
	out io.Writer
	ack sink.EmitFn

	mu      sync.Mutex // guards out, seq, pending and timer
	seq     uint64
	pending []*event.Offset
	timer   *time.Timer
}

func New(out io.Writer) sink.Adapter { return &driver{out: out} }

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(e *event.Event) error {
	b, err := e.Payload()
	if err != nil {
		return fmt.Errorf("stdout-sink: encode %s: %w", e.Kind, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.cfg.PrintCounter {
		_, err = fmt.Fprintf(d.out, "[sink %06d] %s\n", d.seq, b)
	} else {
		_, err = fmt.Fprintf(d.out, "%s\n", b)
	}
	if err != nil {
		return err
	}
	if e.Checkpoint == nil {
		return nil
	}

	d.pending = append(d.pending, e.Checkpoint)
	immediate := d.cfg.BatchSize <= 1 && d.cfg.FlushMS == 0
	if immediate || (d.cfg.BatchSize > 0 && len(d.pending) >= d.cfg.BatchSize) {
		d.flushLocked()
		return nil
	}
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(time.Duration(d.cfg.FlushMS)*time.Millisecond, d.timerFlush)
	}
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
	return nil
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

func (d *driver) timerFlush() {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
}

// flushLocked must be called with d.mu held.
func (d *driver) flushLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.ack == nil {
		d.pending = d.pending[:0]
		return
	}
	for _, off := range d.pending {
		d.ack(off)
	}
	d.pending = d.pending[:0]
}

func init() {
	sink.Register("stdout", func() sink.Adapter { return New(os.Stdout) })
}
