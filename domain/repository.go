package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ClaimRepository is the persistence boundary for the warranty-claim
// workflow: vehicle lookups, the technician roster, finalized claims and
// their outbox events.
type ClaimRepository interface {
	LookupVehicleByVIN(ctx context.Context, vin string) (*VehicleWarrantyInfo, error)
	ListAvailableTechnicians(ctx context.Context) ([]Technician, error)
	UpdateTechnicianWorkload(ctx context.Context, technicianID string, workload int) error
	CreateClaimWithOutbox(ctx context.Context, claim *Claim, event *OutboxEvent) error
	GetClaimByID(ctx context.Context, id string) (*Claim, error)
	GetAllClaims(ctx context.Context) ([]*Claim, error)
	GetUnprocessedOutboxEvents(ctx context.Context) ([]*OutboxEvent, error)
	MarkOutboxEventProcessed(ctx context.Context, eventID string) error
}

// MongoRepository implements the ClaimRepository interface
type MongoRepository struct {
	VehicleCollection    *mongo.Collection
	TechnicianCollection *mongo.Collection
	ClaimCollection      *mongo.Collection
	OutboxCollection     *mongo.Collection
}

// NewMongoRepository creates a new MongoRepository
func NewMongoRepository(client *mongo.Client) *MongoRepository {
	return &MongoRepository{
		VehicleCollection:    client.Database("warrantydb").Collection("vehicles"),
		TechnicianCollection: client.Database("warrantydb").Collection("technicians"),
		ClaimCollection:      client.Database("warrantydb").Collection("claims"),
		OutboxCollection:     client.Database("warrantydb").Collection("outbox"),
	}
}

// LookupVehicleByVIN retrieves a vehicle by VIN and computes its warranty
// status at lookup time. A VIN is any non-empty string; no format or
// checksum rule is enforced. A miss returns ErrVehicleNotFound.
func (r *MongoRepository) LookupVehicleByVIN(ctx context.Context, vin string) (*VehicleWarrantyInfo, error) {
	_, span := otel.Tracer("warranty-service").Start(ctx, "MongoLookupVehicleByVIN")
	defer span.End()

	var vehicle Vehicle
	err := r.VehicleCollection.FindOne(ctx, bson.M{"_id": vin}).Decode(&vehicle)
	if errors.Is(err, mongo.ErrNoDocuments) {
		span.SetAttributes(attribute.String("vin", vin), attribute.Bool("found", false))
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find vehicle")
		return nil, fmt.Errorf("failed to find vehicle: %w", err)
	}

	info := &VehicleWarrantyInfo{
		VIN:           vehicle.VIN,
		Model:         vehicle.Model,
		Year:          vehicle.Year,
		PurchaseDate:  vehicle.PurchaseDate,
		WarrantyStart: vehicle.WarrantyStart,
		WarrantyEnd:   vehicle.WarrantyEnd,
		Mileage:       vehicle.Mileage,
		MaxMileage:    vehicle.MaxMileage,
		Status:        vehicle.WarrantyStatusAt(time.Now()),
		Customer:      vehicle.Customer,
	}
	span.SetAttributes(
		attribute.String("vin", vin),
		attribute.String("warrantyStatus", string(info.Status)),
	)
	return info, nil
}

// ListAvailableTechnicians retrieves the roster snapshot of technicians
// currently accepting work.
func (r *MongoRepository) ListAvailableTechnicians(ctx context.Context) ([]Technician, error) {
	_, span := otel.Tracer("warranty-service").Start(ctx, "MongoListAvailableTechnicians")
	defer span.End()

	cursor, err := r.TechnicianCollection.Find(ctx, bson.M{"available": true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find technicians")
		return nil, fmt.Errorf("failed to find technicians: %w", err)
	}
	defer cursor.Close(ctx)

	var technicians []Technician
	for cursor.Next(ctx) {
		var tech Technician
		if err := cursor.Decode(&tech); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to decode technician")
			return nil, fmt.Errorf("failed to decode technician: %w", err)
		}
		technicians = append(technicians, tech)
	}
	if err := cursor.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Cursor error")
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	span.SetAttributes(attribute.Int("technicianCount", len(technicians)))
	return technicians, nil
}

// UpdateTechnicianWorkload sets a technician's active-job count. Driven by
// workload events consumed from the scheduling side.
func (r *MongoRepository) UpdateTechnicianWorkload(ctx context.Context, technicianID string, workload int) error {
	_, span := otel.Tracer("warranty-service").Start(ctx, "MongoUpdateTechnicianWorkload")
	defer span.End()

	update := bson.M{"$set": bson.M{"workload": workload}}
	res, err := r.TechnicianCollection.UpdateOne(ctx, bson.M{"_id": technicianID}, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update technician workload")
		return fmt.Errorf("failed to update technician workload: %w", err)
	}
	span.SetAttributes(
		attribute.String("technicianID", technicianID),
		attribute.Int("workload", workload),
		attribute.Int64("matchedCount", res.MatchedCount),
	)
	return nil
}

// CreateClaimWithOutbox inserts a finalized claim and its outbox event in a
// single transaction so a claim-submitted event cannot exist without a
// persisted claim, or vice versa.
func (r *MongoRepository) CreateClaimWithOutbox(ctx context.Context, claim *Claim, event *OutboxEvent) error {
	_, span := otel.Tracer("warranty-service").Start(ctx, "MongoCreateClaimWithOutbox")
	defer span.End()

	session, err := r.ClaimCollection.Database().Client().StartSession()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start MongoDB session")
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	if err := session.StartTransaction(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start transaction")
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	err = mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if _, err := r.ClaimCollection.InsertOne(sc, claim); err != nil {
			return fmt.Errorf("failed to insert claim: %w", err)
		}
		if _, err := r.OutboxCollection.InsertOne(sc, event); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Transaction failed")
		session.AbortTransaction(ctx)
		return err
	}

	if err := session.CommitTransaction(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	span.SetAttributes(
		attribute.String("claimID", claim.ID),
		attribute.String("eventID", event.ID),
	)
	return nil
}

// GetClaimByID retrieves a claim by ID
func (r *MongoRepository) GetClaimByID(ctx context.Context, id string) (*Claim, error) {
	_, span := otel.Tracer("warranty-service").Start(ctx, "MongoGetClaimByID")
	defer span.End()

	var claim Claim
	err := r.ClaimCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&claim)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find claim")
		return nil, fmt.Errorf("failed to find claim: %w", err)
	}
	span.SetAttributes(attribute.String("claimID", id))
	return &claim, nil
}

// GetAllClaims retrieves all submitted claims
func (r *MongoRepository) GetAllClaims(ctx context.Context) ([]*Claim, error) {
	_, span := otel.Tracer("warranty-service").Start(ctx, "MongoGetAllClaims")
	defer span.End()

	var claims []*Claim
	cursor, err := r.ClaimCollection.Find(ctx, bson.M{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find claims")
		return nil, fmt.Errorf("failed to find claims: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var claim Claim
		if err := cursor.Decode(&claim); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to decode claim")
			return nil, fmt.Errorf("failed to decode claim: %w", err)
		}
		claims = append(claims, &claim)
	}
	if err := cursor.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Cursor error")
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	span.SetAttributes(attribute.Int("claimCount", len(claims)))
	return claims, nil
}

// GetUnprocessedOutboxEvents retrieves unprocessed outbox events
func (r *MongoRepository) GetUnprocessedOutboxEvents(ctx context.Context) ([]*OutboxEvent, error) {
	_, span := otel.Tracer("warranty-service").Start(ctx, "MongoGetUnprocessedOutboxEvents")
	defer span.End()

	var events []*OutboxEvent
	cursor, err := r.OutboxCollection.Find(ctx, bson.M{"processed": false})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find outbox events")
		return nil, fmt.Errorf("failed to find outbox events: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var event OutboxEvent
		if err := cursor.Decode(&event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to decode outbox event")
			return nil, fmt.Errorf("failed to decode outbox event: %w", err)
		}
		events = append(events, &event)
	}
	if err := cursor.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Cursor error")
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	span.SetAttributes(attribute.Int("eventCount", len(events)))
	return events, nil
}

// MarkOutboxEventProcessed marks an outbox event as processed
func (r *MongoRepository) MarkOutboxEventProcessed(ctx context.Context, eventID string) error {
	_, span := otel.Tracer("warranty-service").Start(ctx, "MongoMarkOutboxEventProcessed")
	defer span.End()

	now := time.Now()
	_, err := r.OutboxCollection.UpdateOne(ctx, bson.M{"_id": eventID}, bson.M{
		"$set": bson.M{"processed": true, "processed_at": now},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to mark outbox event as processed")
		return fmt.Errorf("failed to mark outbox event as processed: %w", err)
	}
	span.SetAttributes(attribute.String("eventID", eventID))
	return nil
}
