package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"log/slog"

	"warranty-service/domain"
	"warranty-service/handlers"
	"warranty-service/kafka"
	"warranty-service/logging"
	"warranty-service/service"
	"warranty-service/workflow"

	"github.com/gorilla/mux"
	"github.com/hashicorp/consul/api"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// initTracer initializes OpenTelemetry tracer
func initTracer(logger *slog.Logger) (func(), error) {
	jaegerEndpoint := envOr("JAEGER_ENDPOINT", "jaeger:4318")
	logger.Info("Initializing tracer", "jaeger_endpoint", jaegerEndpoint, "app", "warranty-service")

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(jaegerEndpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithURLPath("/v1/traces"),
	)
	if err != nil {
		logger.Error("Failed to create OTLP exporter", "error", err, "app", "warranty-service")
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	resources := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("warranty-service"),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter, sdktrace.WithExportTimeout(5*time.Second))),
		sdktrace.WithResource(resources),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		logger.Info("Shutting down tracer provider", "app", "warranty-service")
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err, "app", "warranty-service")
		}
	}, nil
}

func main() {
	// Initialize structured logging
	logPath := envOr("LOG_FILE", "/var/log/warranty-service/warranty-service.log")
	logger, logFile, err := logging.NewLogger(logPath)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	logger.Info("Starting warranty-service", "app", "warranty-service", "timestamp", time.Now().Unix())

	// Initialize tracer
	shutdown, err := initTracer(logger)
	if err != nil {
		logger.Error("Failed to initialize tracer", "error", err, "app", "warranty-service")
		os.Exit(1)
	}
	defer shutdown()

	// Initialize Consul client and register service
	consulAddr := envOr("CONSUL_ADDRESS", "consul:8500")
	consulConfig := api.DefaultConfig()
	consulConfig.Address = consulAddr
	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		logger.Error("Failed to create Consul client", "error", err, "app", "warranty-service")
		os.Exit(1)
	}

	serviceName := envOr("SERVICE_NAME", "warranty-service")
	servicePort := envOr("SERVICE_PORT", "8087")
	portNum, err := strconv.Atoi(servicePort)
	if err != nil {
		logger.Error("Invalid SERVICE_PORT", "port", servicePort, "app", "warranty-service")
		os.Exit(1)
	}
	serviceID := serviceName + "-" + servicePort
	registration := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Port:    portNum,
		Address: serviceName,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%s/health", serviceName, servicePort),
			Interval: "10s",
			Timeout:  "5s",
		},
	}
	if err := consulClient.Agent().ServiceRegister(registration); err != nil {
		logger.Error("Failed to register with Consul", "error", err, "app", "warranty-service")
		os.Exit(1)
	}
	logger.Info("Registered with Consul", "service_id", serviceID, "app", "warranty-service")

	// Initialize MongoDB
	mongoURI := envOr("MONGO_URI", "mongodb://mongodb:27017/warrantydb?replicaSet=rs0")
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err, "app", "warranty-service")
		os.Exit(1)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("Failed to disconnect from MongoDB", "error", err, "app", "warranty-service")
		}
	}()
	logger.Info("Connected to MongoDB", "uri", mongoURI, "app", "warranty-service")

	// Initialize repository
	repo := domain.NewMongoRepository(client)

	// Attachment policy
	policy := workflow.DefaultAttachmentPolicy
	if v := os.Getenv("MAX_ATTACHMENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			policy.MaxCount = n
		}
	}
	if v := os.Getenv("MAX_ATTACHMENT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			policy.MaxFileSize = n
		}
	}

	// Notification hub and service
	hub := handlers.NewNotificationHub(logger)
	svc := service.NewService(repo, logger, hub, policy)

	// Kafka producer, outbox processor and workload consumer
	bootstrapServers := envOr("KAFKA_BOOTSTRAP", "kafka:9094")
	schemaRegistryURL := envOr("SCHEMA_REGISTRY_URL", "http://schema-registry:8081")
	producer, err := kafka.NewProducer(bootstrapServers, schemaRegistryURL, "claim-events", logger)
	if err != nil {
		logger.Error("Failed to initialize Kafka producer", "error", err, "app", "warranty-service")
		os.Exit(1)
	}
	defer producer.Close()

	outbox := kafka.NewOutboxProcessor(repo, producer, logger)
	go func() {
		if err := outbox.Start(context.Background()); err != nil {
			logger.Error("Outbox processor stopped with error", "error", err, "app", "warranty-service")
		}
	}()

	consumer, err := kafka.NewConsumer(bootstrapServers, schemaRegistryURL, "technician-workload", "warranty-service-group", logger, repo)
	if err != nil {
		logger.Error("Failed to initialize Kafka consumer", "error", err, "app", "warranty-service")
		os.Exit(1)
	}
	defer consumer.Close()
	go func() {
		if err := consumer.Start(context.Background()); err != nil {
			logger.Error("Kafka consumer stopped with error", "error", err, "app", "warranty-service")
		}
	}()

	// Initialize handler and router
	handler := handlers.NewClaimHandler(svc, logger)
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("warranty-service"))
	handler.Register(r)
	r.HandleFunc("/ws", hub.HandleWebSocket).Methods("GET")

	// Start server
	logger.Info("Starting warranty-service", "port", servicePort, "app", "warranty-service")
	if err := http.ListenAndServe(":"+servicePort, r); err != nil {
		logger.Error("Failed to start server", "error", err, "app", "warranty-service")
		os.Exit(1)
	}
}
