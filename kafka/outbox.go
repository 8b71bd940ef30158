package kafka

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"warranty-service/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OutboxProcessor publishes claim-submitted events from the outbox
// collection. The outbox payload is the JSON-encoded claim written in the
// submission transaction; the processor flattens it into the Avro claim
// event at publish time so schema concerns stay in this package.
type OutboxProcessor struct {
	repo     domain.ClaimRepository
	producer *Producer
	logger   *slog.Logger
}

// NewOutboxProcessor creates a new OutboxProcessor
func NewOutboxProcessor(repo domain.ClaimRepository, producer *Producer, logger *slog.Logger) *OutboxProcessor {
	return &OutboxProcessor{
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// Start begins processing outbox events
func (p *OutboxProcessor) Start(ctx context.Context) error {
	_, span := otel.Tracer("warranty-service").Start(ctx, "OutboxProcessorStart")
	defer span.End()

	p.logger.Info("Outbox processor started", "app", "warranty-service")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping outbox processor", "app", "warranty-service")
			return ctx.Err()
		case <-ticker.C:
			if err := p.processOutboxEvents(ctx); err != nil {
				p.logger.Error("Failed to process outbox events", "error", err, "app", "warranty-service")
			}
		}
	}
}

// processOutboxEvents retrieves and publishes unprocessed outbox events
func (p *OutboxProcessor) processOutboxEvents(ctx context.Context) error {
	_, span := otel.Tracer("warranty-service").Start(ctx, "ProcessOutboxEvents")
	defer span.End()

	events, err := p.repo.GetUnprocessedOutboxEvents(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get unprocessed outbox events")
		return err
	}
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		var claim domain.Claim
		if err := json.Unmarshal(event.Payload, &claim); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to decode outbox payload")
			p.logger.Error("Failed to decode outbox payload", "eventID", event.ID, "error", err, "app", "warranty-service")
			continue
		}

		if err := p.producer.PublishClaimEvent(ctx, NewClaimEvent(&claim)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to publish claim event")
			p.logger.Error("Failed to publish claim event", "eventID", event.ID, "claimID", claim.ID, "error", err, "app", "warranty-service")
			continue
		}

		if err := p.repo.MarkOutboxEventProcessed(ctx, event.ID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to mark outbox event as processed")
			p.logger.Error("Failed to mark outbox event as processed", "eventID", event.ID, "error", err, "app", "warranty-service")
			continue
		}
		p.logger.Info("Processed outbox event", "eventID", event.ID, "claimID", claim.ID, "app", "warranty-service")
	}

	span.SetAttributes(
		attribute.Int("processedEventCount", len(events)),
	)
	return nil
}
