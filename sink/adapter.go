package sink

import (
	"fmt"
	"sort"
	"sync"

	"creditscore/internal/event"
)

// EmitFn is what a sink calls once an event carrying a checkpoint has been
// durably written.
type EmitFn func(*event.Offset)

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error
	Push(*event.Event) error
	Close() error
}

// AckAware is optional; the pipeline binds its ack callback when present.
type AckAware interface {
	BindAck(EmitFn)
}

type factory = func() Adapter

var (
	mu  sync.RWMutex
	reg = map[string]factory{}
)

func Register(name string, f factory) {
	mu.Lock()
	reg[name] = f
	mu.Unlock()
}

func NewAdapter(name string) (Adapter, error) {
	mu.RLock()
	f, ok := reg[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink %q", name)
	}
	return f(), nil
}

// Names lists the registered sinks.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// PushAll fans e out to every sink, stopping at the first error.
func PushAll(sinks []Adapter, e *event.Event) error {
	for _, s := range sinks {
		if err := s.Push(e); err != nil {
			return err
		}
	}
	return nil
}
