package orders

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const Topic = "pos-orders"

type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	DeleteProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays outbox rows to kafka. Delivery is at least once: an
// event whose mark fails is published again on the next tick.
type OutboxPoller struct {
	timeout     time.Duration
	eventTick   time.Duration
	cleanupTick time.Duration
	retention   time.Duration
	batch       int
	repo        OutboxStore
	writer      MessageWriter
	log         *zap.Logger
}

func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo OutboxStore, writer MessageWriter, log *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		timeout:     5 * time.Second,
		eventTick:   time.Second,
		cleanupTick: time.Hour,
		retention:   7 * 24 * time.Hour,
		batch:       100,
		repo:        repo,
		writer:      writer,
		log:         log,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	cleanupTicker := time.NewTicker(p.cleanupTick)
	defer eventTicker.Stop()
	defer cleanupTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-cleanupTicker.C:
			p.cleanup(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Warn("failed to publish outbox event", zap.Int64("event_id", event.ID), zap.Error(err))
			// keep order per aggregate: later events wait for the next tick
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Warn("failed to mark outbox event processed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		p.log.Debug("outbox event published", zap.Int64("event_id", event.ID), zap.String("order_id", event.AggregateID))
	}
}

func (p *OutboxPoller) cleanup(ctx context.Context) {
	n, err := p.repo.DeleteProcessedEvents(ctx, time.Now().Add(-p.retention))
	if err != nil {
		p.log.Warn("failed to delete processed outbox events", zap.Error(err))
		return
	}
	if n > 0 {
		p.log.Info("deleted processed outbox events", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
