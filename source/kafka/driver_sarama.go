package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"golang.org/x/sync/semaphore"

	"creditscore/internal/event"
	"creditscore/internal/logging"
)

type SaramaDriver struct {
	cfg   Config
	cl    sarama.Client
	group sarama.ConsumerGroup

	inflight *semaphore.Weighted
	tracker  *offsetTracker
	acks     chan event.Offset
}

func (d *SaramaDriver) Configure(config Config) error {
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return err
	}
	d.init(config)

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = config.CommitInterval
	if config.TLSEn {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	switch config.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(config.GroupID, d.cl)
	return err
}

func (d *SaramaDriver) init(config Config) {
	d.cfg = config
	d.inflight = semaphore.NewWeighted(config.MaxInFlight)
	d.tracker = newOffsetTracker()
	d.acks = make(chan event.Offset, config.MaxInFlight)
}

func (d *SaramaDriver) Run(ctx context.Context, emit EmitFunc) error {
	if d.group == nil {
		return errors.New("sarama-driver: not configured")
	}
	go func() {
		for err := range d.group.Errors() {
			logging.L().Warn("sarama-driver: consumer error", "err", err)
		}
	}()
	handler := &groupHandler{driver: d, emit: emit}
	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (d *SaramaDriver) Close() error {
	var errs []error
	if d.group != nil {
		errs = append(errs, d.group.Close())
	}
	if d.cl != nil && !d.cl.Closed() {
		errs = append(errs, d.cl.Close())
	}
	return errors.Join(errs...)
}

// OnAck never blocks the sink that calls it. If the queue is full the ack is
// dropped and the record is redelivered after the next rebalance.
func (d *SaramaDriver) OnAck(off *event.Offset) {
	if off == nil {
		return
	}
	select {
	case d.acks <- *off:
	default:
		logging.L().Warn("sarama-driver: ack queue full; dropping ack",
			"topic", off.Topic, "partition", off.Partition, "offset", off.Offset)
	}
}

// resolve applies one ack. The commit itself happens on sarama's
// auto-commit interval.
func (d *SaramaDriver) resolve(sess sarama.ConsumerGroupSession, off event.Offset) {
	next, advanced, known := d.tracker.ack(off)
	if !known {
		return
	}
	if advanced {
		sess.MarkOffset(off.Topic, off.Partition, next, "")
	}
	d.inflight.Release(1)
}

// acquire takes an in-flight slot, applying acks while it waits.
func (d *SaramaDriver) acquire(sess sarama.ConsumerGroupSession) error {
	for !d.inflight.TryAcquire(1) {
		select {
		case off := <-d.acks:
			d.resolve(sess, off)
		case <-sess.Context().Done():
			return sess.Context().Err()
		}
	}
	return nil
}

type groupHandler struct {
	driver *SaramaDriver
	emit   EmitFunc
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	if dropped := h.driver.tracker.reset(); dropped > 0 {
		h.driver.inflight.Release(int64(dropped))
		logging.L().Info("sarama-driver: rebalance cleared pending records", "count", dropped)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	d := h.driver
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case off := <-d.acks:
			d.resolve(sess, off)
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := d.acquire(sess); err != nil {
				return nil
			}
			off := event.Offset{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset}
			d.tracker.track(off)
			m := &event.Message{Key: msg.Key, Value: msg.Value, Headers: toHeaderMap(msg.Headers), Time: msg.Timestamp, Offset: off}
			if err := h.emit(ctx, m); err != nil {
				d.tracker.forget(off)
				d.inflight.Release(1)
				return fmt.Errorf("sarama-driver: emit %s[%d]@%d: %w", off.Topic, off.Partition, off.Offset, err)
			}
			if d.cfg.CommitMode == CommitAuto {
				d.resolve(sess, off)
			}
		}
	}
}

func toHeaderMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}
