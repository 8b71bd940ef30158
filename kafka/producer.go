package kafka

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"log/slog"

	"warranty-service/domain"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/hamba/avro/v2"
	"github.com/riferrei/srclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ClaimEvent mirrors the claim_event Avro schema
type ClaimEvent struct {
	ID               string `avro:"id"`
	VIN              string `avro:"vin"`
	IssueCategory    string `avro:"issue_category"`
	IssueDescription string `avro:"issue_description"`
	WarrantyStatus   string `avro:"warranty_status"`
	MainTechnicianID string `avro:"main_technician_id"`
	AssistantCount   int    `avro:"assistant_count"`
	AttachmentCount  int    `avro:"attachment_count"`
	SubmittedBy      string `avro:"submitted_by"`
	SubmittedAt      int64  `avro:"submitted_at"`
}

// NewClaimEvent flattens a finalized claim into its event representation.
func NewClaimEvent(claim *domain.Claim) ClaimEvent {
	mainID := ""
	if claim.Assignment.MainTechnician != nil {
		mainID = claim.Assignment.MainTechnician.ID
	}
	return ClaimEvent{
		ID:               claim.ID,
		VIN:              claim.VIN,
		IssueCategory:    string(claim.IssueCategory),
		IssueDescription: claim.IssueDescription,
		WarrantyStatus:   string(claim.Vehicle.Status),
		MainTechnicianID: mainID,
		AssistantCount:   len(claim.Assignment.Assistants),
		AttachmentCount:  len(claim.Attachments),
		SubmittedBy:      claim.SubmittedBy,
		SubmittedAt:      claim.SubmittedAt.UnixMilli(),
	}
}

type Producer struct {
	kafkaProducer *kafka.Producer
	srClient      *srclient.SchemaRegistryClient
	schema        avro.Schema
	SchemaID      int
	topic         string
	logger        *slog.Logger
	tracer        trace.Tracer
}

func NewProducer(bootstrapServers, schemaRegistryURL, topic string, logger *slog.Logger) (*Producer, error) {
	// Initialize Kafka producer
	config := &kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"compression.type":  "snappy",
	}
	p, err := kafka.NewProducer(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	// Initialize Schema Registry client
	srClient := srclient.CreateSchemaRegistryClient(schemaRegistryURL)

	// Load Avro schema
	schemaBytes, err := os.ReadFile("claim_event.avsc")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	schemaStr := string(schemaBytes)
	schema, err := avro.Parse(schemaStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	// Register schema
	schemaObj, err := srClient.CreateSchema(topic+"-value", schemaStr, srclient.Avro)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema: %w", err)
	}
	logger.Info("Schema registered", "schemaID", schemaObj.ID(), "app", "warranty-service")

	return &Producer{
		kafkaProducer: p,
		srClient:      srClient,
		schema:        schema,
		SchemaID:      schemaObj.ID(),
		topic:         topic,
		logger:        logger,
		tracer:        otel.Tracer("warranty-service"),
	}, nil
}

// Encode serializes a claim event in the Confluent wire format: magic byte
// 0, 4-byte big-endian schema ID, Avro body.
func (p *Producer) Encode(event ClaimEvent) ([]byte, error) {
	body, err := avro.Marshal(p.schema, event)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize claim event: %w", err)
	}
	payload := make([]byte, 0, len(body)+5)
	payload = append(payload, 0)
	idBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(idBytes, uint32(p.SchemaID))
	payload = append(payload, idBytes...)
	payload = append(payload, body...)
	return payload, nil
}

// PublishClaimEvent publishes a claim-submitted event to Kafka
func (p *Producer) PublishClaimEvent(ctx context.Context, event ClaimEvent) error {
	_, span := p.tracer.Start(ctx, "PublishClaimEvent")
	defer span.End()

	payload, err := p.Encode(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to encode claim event")
		return err
	}

	// Publish to Kafka
	deliveryChan := make(chan kafka.Event)
	err = p.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.ID),
		Value:          payload,
	}, deliveryChan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to produce message")
		p.logger.Error("Failed to produce message", "claimID", event.ID, "error", err, "app", "warranty-service")
		return fmt.Errorf("failed to produce message: %w", err)
	}

	// Wait for delivery report
	e := <-deliveryChan
	m := e.(*kafka.Message)
	if m.TopicPartition.Error != nil {
		span.RecordError(m.TopicPartition.Error)
		span.SetStatus(codes.Error, "Delivery failed")
		p.logger.Error("Delivery failed", "claimID", event.ID, "error", m.TopicPartition.Error, "app", "warranty-service")
		return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
	}
	p.logger.Info("Published claim event",
		"claimID", event.ID,
		"topic", *m.TopicPartition.Topic,
		"partition", m.TopicPartition.Partition,
		"offset", m.TopicPartition.Offset,
		"app", "warranty-service")
	span.SetAttributes(
		attribute.String("claimID", event.ID),
		attribute.String("topic", *m.TopicPartition.Topic),
		attribute.Int("partition", int(m.TopicPartition.Partition)),
		attribute.Int64("offset", int64(m.TopicPartition.Offset)),
	)

	close(deliveryChan)
	return nil
}

// Close shuts down the Kafka producer
func (p *Producer) Close() {
	p.logger.Info("Closing Kafka producer", "app", "warranty-service")
	p.kafkaProducer.Close()
}
