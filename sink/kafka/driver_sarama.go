package kafka

import (
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"creditscore/internal/event"
	"creditscore/internal/logging"
	"creditscore/sink"
)

type Config struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	Acks    int16    `koanf:"required_acks"` // 0,1,-1
	Version string   `koanf:"version"`
}

// newProducer is swapped in tests.
var newProducer = func(brokers []string, sc *sarama.Config) (sarama.AsyncProducer, error) {
	return sarama.NewAsyncProducer(brokers, sc)
}

type driver struct {
	cfg Config
	p   sarama.AsyncProducer
	ack sink.EmitFn

	once sync.Once
	wg   sync.WaitGroup
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: expected Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return errors.New("kafka-sink: brokers and topic are required")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return fmt.Errorf("kafka-sink: %w", err)
		}
		sc.Version = ver
	}
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	p, err := newProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	d.start(p)
	return nil
}

// start drains the producer's result channels; acks are emitted only for
// delivered records.
func (d *driver) start(p sarama.AsyncProducer) {
	d.p = p
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		for msg := range p.Successes() {
			if off, ok := msg.Metadata.(*event.Offset); ok && off != nil && d.ack != nil {
				d.ack(off)
			}
		}
	}()
	go func() {
		defer d.wg.Done()
		for perr := range p.Errors() {
			logging.L().Error("kafka-sink: delivery failed", "topic", perr.Msg.Topic, "err", perr.Err)
		}
	}()
}

func (d *driver) Push(e *event.Event) error {
	b, err := e.Payload()
	if err != nil {
		return fmt.Errorf("kafka-sink: encode %s: %w", e.Kind, err)
	}
	msg := &sarama.ProducerMessage{
		Topic:    d.cfg.Topic,
		Value:    sarama.ByteEncoder(b),
		Headers:  []sarama.RecordHeader{{Key: []byte("kind"), Value: []byte(e.Kind)}},
		Metadata: e.Checkpoint,
	}
	if e.Key != "" {
		msg.Key = sarama.StringEncoder(e.Key)
	} else if e.RunID != "" {
		msg.Key = sarama.StringEncoder(e.RunID)
	}
	d.p.Input() <- msg
	return nil
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

func (d *driver) Close() error {
	var err error
	d.once.Do(func() {
		if d.p == nil {
			return
		}
		err = d.p.Close()
		d.wg.Wait()
	})
	return err
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
