package kafka

import (
	"context"

	"creditscore/internal/event"
)

// EmitFunc hands one inbound record to the pipeline. A returned error stops
// the consumer.
type EmitFunc func(context.Context, *event.Message) error

type Adapter interface {
	Configure(Config) error
	Run(context.Context, EmitFunc) error
	// OnAck reports that the record at off has been fully handled.
	OnAck(*event.Offset)
	Close() error
}
