// Package eventpublisher drains the transactional outbox. Delivery is
// at-least-once: an event whose publish succeeded but whose mark-published
// write failed will be delivered again, so consumers deduplicate by event id.
package eventpublisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/infrastructure/metrics"
	"github.com/tillworks/opsledger/internal/usecase"
)

// Publisher delivers one outbox event to an external system.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// EventPublisher polls the outbox and publishes pending events in order.
type EventPublisher struct {
	outboxRepo usecase.OutboxRepository
	publisher  Publisher
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	batchSize  int
	interval   time.Duration
	retention  time.Duration
	now        func() time.Time
}

// Config for EventPublisher.
type Config struct {
	OutboxRepo usecase.OutboxRepository
	Publisher  Publisher
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
	BatchSize  int           // events fetched per poll
	Interval   time.Duration // polling interval
	Retention  time.Duration // how long published events are kept; 0 keeps them forever
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(cfg Config) *EventPublisher {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}

	return &EventPublisher{
		outboxRepo: cfg.OutboxRepo,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger.With().Str("component", "eventpublisher").Logger(),
		metrics:    cfg.Metrics,
		batchSize:  cfg.BatchSize,
		interval:   cfg.Interval,
		retention:  cfg.Retention,
		now:        time.Now,
	}
}

// Start runs the publishing loop until the context is cancelled.
func (ep *EventPublisher) Start(ctx context.Context) error {
	ep.logger.Info().
		Int("batch_size", ep.batchSize).
		Dur("interval", ep.interval).
		Msg("event publisher started")

	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	// Process immediately on start
	if err := ep.processBatch(ctx); err != nil {
		ep.logger.Error().Err(err).Msg("error processing events on start")
	}

	for {
		select {
		case <-ctx.Done():
			ep.logger.Info().Msg("event publisher shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := ep.processBatch(ctx); err != nil {
				ep.logger.Error().Err(err).Msg("error processing events")
			}
		}
	}
}

// processBatch fetches and publishes one batch of unpublished events, then
// trims published events past retention.
func (ep *EventPublisher) processBatch(ctx context.Context) error {
	events, err := ep.outboxRepo.GetUnpublished(ctx, ep.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := ep.publisher.Publish(ctx, event); err != nil {
			ep.logger.Error().
				Err(err).
				Str("event_id", event.ID).
				Str("event_type", event.EventType).
				Msg("failed to publish event")
			if ep.metrics != nil {
				ep.metrics.OutboxErrors.Inc()
			}
			// Keep going; in-order delivery is per aggregate, not global,
			// and a stuck event must not wedge the whole outbox.
			continue
		}

		if err := ep.outboxRepo.MarkPublished(ctx, event.ID, ep.now()); err != nil {
			ep.logger.Error().
				Err(err).
				Str("event_id", event.ID).
				Msg("failed to mark event as published")
			continue
		}

		if ep.metrics != nil {
			ep.metrics.OutboxPublished.Inc()
		}
	}

	if ep.retention > 0 {
		if err := ep.outboxRepo.DeletePublished(ctx, ep.now().Add(-ep.retention)); err != nil {
			ep.logger.Error().Err(err).Msg("failed to trim published events")
		}
	}

	return nil
}

// DedupePublisher wraps a Publisher with delivery-side deduplication. A
// repeated delivery of the same event id is dropped before it reaches the
// inner publisher.
type DedupePublisher struct {
	inner  Publisher
	dedupe usecase.DedupeStore
	ttl    time.Duration
	logger zerolog.Logger
}

// NewDedupePublisher creates a new DedupePublisher.
func NewDedupePublisher(inner Publisher, dedupe usecase.DedupeStore, ttl time.Duration, logger zerolog.Logger) *DedupePublisher {
	return &DedupePublisher{
		inner:  inner,
		dedupe: dedupe,
		ttl:    ttl,
		logger: logger.With().Str("component", "dedupe_publisher").Logger(),
	}
}

// Publish forwards the event unless it was already delivered.
func (p *DedupePublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	first, err := p.dedupe.MarkOnce(ctx, "outbox:"+event.ID, p.ttl)
	if err != nil {
		return err
	}
	if !first {
		p.logger.Debug().Str("event_id", event.ID).Msg("duplicate delivery dropped")
		return nil
	}
	return p.inner.Publish(ctx, event)
}

// LogPublisher is a publisher that writes events to the log. It stands in
// for a broker integration in development and in tests.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "log_publisher").Logger()}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	p.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.EventType).
		Str("aggregate_type", event.AggregateType).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", payload).
		Msg("event published")

	return nil
}
