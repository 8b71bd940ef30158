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

// WorkloadEvent mirrors the workload_event Avro schema published by the
// scheduling side whenever a technician's active-job count changes.
type WorkloadEvent struct {
	TechnicianID string `avro:"technician_id"`
	Workload     int    `avro:"workload"`
}

// Consumer keeps the local technician roster's workload counts in sync by
// consuming workload events.
type Consumer struct {
	kafkaConsumer *kafka.Consumer
	srClient      *srclient.SchemaRegistryClient
	schema        avro.Schema
	topic         string
	logger        *slog.Logger
	tracer        trace.Tracer
	repo          domain.ClaimRepository
}

func NewConsumer(bootstrapServers, schemaRegistryURL, topic, groupID string, logger *slog.Logger, repo domain.ClaimRepository) (*Consumer, error) {
	// Initialize Kafka consumer
	config := &kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false, // Disable auto-commit to control commits
	}
	c, err := kafka.NewConsumer(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	// Initialize Schema Registry client
	srClient := srclient.CreateSchemaRegistryClient(schemaRegistryURL)

	// Load Avro schema
	schemaBytes, err := os.ReadFile("workload_event.avsc")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	schema, err := avro.Parse(string(schemaBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	return &Consumer{
		kafkaConsumer: c,
		srClient:      srClient,
		schema:        schema,
		topic:         topic,
		logger:        logger,
		tracer:        otel.Tracer("warranty-service"),
		repo:          repo,
	}, nil
}

// Start begins consuming messages from the Kafka topic
func (c *Consumer) Start(ctx context.Context) error {
	_, span := c.tracer.Start(ctx, "KafkaConsumerStart")
	defer span.End()

	// Subscribe to the topic
	err := c.kafkaConsumer.SubscribeTopics([]string{c.topic}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to subscribe to topic")
		c.logger.Error("Failed to subscribe to topic", "topic", c.topic, "error", err, "app", "warranty-service")
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}
	c.logger.Info("Subscribed to Kafka topic", "topic", c.topic, "app", "warranty-service")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context canceled, stopping Kafka consumer", "app", "warranty-service")
			return ctx.Err()
		default:
			msg, err := c.kafkaConsumer.ReadMessage(-1)
			if err != nil {
				c.logger.Error("Error reading Kafka message", "error", err, "app", "warranty-service")
				continue
			}
			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *kafka.Message) {
	ctx, span := c.tracer.Start(ctx, "ProcessWorkloadMessage")
	defer span.End()

	// Confluent wire format: magic byte, schema ID, Avro body
	if len(msg.Value) < 5 {
		span.RecordError(fmt.Errorf("invalid message length"))
		span.SetStatus(codes.Error, "Invalid message length")
		c.logger.Error("Invalid message length", "length", len(msg.Value), "app", "warranty-service")
		return
	}

	schemaID := int(binary.BigEndian.Uint32(msg.Value[1:5]))
	span.SetAttributes(
		attribute.String("topic", *msg.TopicPartition.Topic),
		attribute.Int("partition", int(msg.TopicPartition.Partition)),
		attribute.Int64("offset", int64(msg.TopicPartition.Offset)),
		attribute.Int("schemaID", schemaID),
	)

	// Fetch schema if not already loaded
	if c.schema == nil {
		schemaObj, err := c.srClient.GetSchema(schemaID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to fetch schema")
			c.logger.Error("Failed to fetch schema", "schemaID", schemaID, "error", err, "app", "warranty-service")
			return
		}
		c.schema, err = avro.Parse(schemaObj.Schema())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to parse schema")
			c.logger.Error("Failed to parse schema", "schemaID", schemaID, "error", err, "app", "warranty-service")
			return
		}
	}

	var event WorkloadEvent
	if err := avro.Unmarshal(c.schema, msg.Value[5:], &event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to deserialize event")
		c.logger.Error("Failed to deserialize event", "error", err, "app", "warranty-service")
		return
	}

	if err := c.repo.UpdateTechnicianWorkload(ctx, event.TechnicianID, event.Workload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update technician workload")
		c.logger.Error("Failed to update technician workload", "technicianID", event.TechnicianID, "error", err, "app", "warranty-service")
		return
	}

	// Commit Kafka offset only after the update landed
	if _, err := c.kafkaConsumer.CommitMessage(msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to commit Kafka offset")
		c.logger.Error("Failed to commit Kafka offset", "topic", *msg.TopicPartition.Topic, "partition", msg.TopicPartition.Partition, "offset", msg.TopicPartition.Offset, "error", err, "app", "warranty-service")
		return
	}

	span.SetAttributes(
		attribute.String("technicianID", event.TechnicianID),
		attribute.Int("workload", event.Workload),
	)
	c.logger.Info("Updated technician workload", "technicianID", event.TechnicianID, "workload", event.Workload, "app", "warranty-service")
}

// Close shuts down the Kafka consumer
func (c *Consumer) Close() error {
	c.logger.Info("Closing Kafka consumer", "app", "warranty-service")
	return c.kafkaConsumer.Close()
}
