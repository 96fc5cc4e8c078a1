// Package event defines what flows between sources, the pipeline and sinks.
package event

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindRunStarted     Kind = "run_started"
	KindStageCompleted Kind = "stage_completed"
	KindModelPromoted  Kind = "model_promoted"
	KindRunFinished    Kind = "run_finished"
	KindPrediction     Kind = "prediction"
)

// Offset locates an inbound Kafka record. Sinks hand it back once the event
// derived from that record is durable.
type Offset struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Message is one inbound record from a source.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string][]byte
	Time    time.Time
	Offset  Offset
}

// Event is one outbound notification.
type Event struct {
	Kind  Kind           `json:"kind"`
	RunID string         `json:"run_id,omitempty"`
	Key   string         `json:"key,omitempty"`
	Time  time.Time      `json:"time"`
	Attrs map[string]any `json:"attrs,omitempty"`

	// Checkpoint is set when the event answers an inbound message.
	Checkpoint *Offset `json:"-"`
}

func New(kind Kind, runID string, attrs map[string]any) *Event {
	return &Event{Kind: kind, RunID: runID, Time: time.Now().UTC(), Attrs: attrs}
}

// Payload is the wire form used by every sink.
func (e *Event) Payload() ([]byte, error) { return json.Marshal(e) }
