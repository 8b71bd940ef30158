package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"warranty-service/domain"
	"warranty-service/workflow"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service implements the business logic for the warranty-claim service: it
// owns the wizard session registry and binds the workflow's collaborator
// interfaces to the claim repository.
type Service struct {
	repo     domain.ClaimRepository
	tracer   trace.Tracer
	logger   *slog.Logger
	notifier workflow.Notifier
	policy   workflow.AttachmentPolicy

	mu       sync.Mutex
	sessions map[string]*workflow.Wizard
}

// NewService creates a new instance of the warranty-claim service
func NewService(repo domain.ClaimRepository, logger *slog.Logger, notifier workflow.Notifier, policy workflow.AttachmentPolicy) *Service {
	return &Service{
		repo:     repo,
		tracer:   otel.Tracer("warranty-service"),
		logger:   logger,
		notifier: notifier,
		policy:   policy,
		sessions: make(map[string]*workflow.Wizard),
	}
}

// repoValidator adapts the repository to the workflow's WarrantyValidator.
type repoValidator struct {
	repo domain.ClaimRepository
}

func (v repoValidator) LookupVehicle(ctx context.Context, vin string) (*domain.VehicleWarrantyInfo, error) {
	return v.repo.LookupVehicleByVIN(ctx, vin)
}

// repoRoster adapts the repository to the workflow's TechnicianRoster.
type repoRoster struct {
	repo domain.ClaimRepository
}

func (r repoRoster) ListAvailable(ctx context.Context) ([]domain.Technician, error) {
	return r.repo.ListAvailableTechnicians(ctx)
}

// repoSubmitter adapts the repository to the workflow's ClaimSubmitter. It
// assigns the claim identifier (WC- prefix plus a UUID; wall-clock suffixes
// collide under concurrent submission) and writes claim + outbox event in
// one transaction.
type repoSubmitter struct {
	repo   domain.ClaimRepository
	logger *slog.Logger
}

func (s repoSubmitter) Submit(ctx context.Context, claim *domain.Claim) (string, error) {
	claim.ID = "WC-" + uuid.NewString()

	payload, err := json.Marshal(claim)
	if err != nil {
		return "", fmt.Errorf("failed to encode claim event: %w", err)
	}
	event := &domain.OutboxEvent{
		ID:        uuid.NewString(),
		EventType: "claim.submitted",
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	if err := s.repo.CreateClaimWithOutbox(ctx, claim, event); err != nil {
		s.logger.Error("Failed to persist claim", "claimID", claim.ID, "error", err, "app", "warranty-service")
		return "", err
	}
	s.logger.Info("Persisted claim with outbox event", "claimID", claim.ID, "eventID", event.ID, "app", "warranty-service")
	return claim.ID, nil
}

// OpenWizard creates a new claim-creation session for the caller and
// returns its session ID.
func (s *Service) OpenWizard(ctx context.Context, session workflow.SessionContext) (string, error) {
	_, span := s.tracer.Start(ctx, "ServiceOpenWizard")
	defer span.End()

	wizard, err := workflow.NewWizard(workflow.Config{
		Session:   session,
		Policy:    s.policy,
		Validator: repoValidator{repo: s.repo},
		Roster:    repoRoster{repo: s.repo},
		Submitter: repoSubmitter{repo: s.repo, logger: s.logger},
		Notifier:  s.notifier,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to open wizard")
		return "", err
	}

	sessionID := uuid.NewString()
	s.mu.Lock()
	s.sessions[sessionID] = wizard
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("userID", session.UserID),
	)
	s.logger.Info("Opened claim wizard", "sessionID", sessionID, "userID", session.UserID, "app", "warranty-service")
	return sessionID, nil
}

func (s *Service) wizard(sessionID string) (*workflow.Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return w, nil
}

func (s *Service) closeSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// WizardState is the read-only view of a session returned to callers.
type WizardState struct {
	SessionID  string             `json:"sessionID"`
	Step       workflow.Step      `json:"step"`
	StepNumber int                `json:"stepNumber"`
	Draft      workflow.ClaimDraft `json:"draft"`
	CanSubmit  bool               `json:"canSubmit"`
}

// GetWizardState returns the current step and draft of a session.
func (s *Service) GetWizardState(ctx context.Context, sessionID string) (*WizardState, error) {
	_, span := s.tracer.Start(ctx, "ServiceGetWizardState")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return nil, err
	}
	draft := w.Draft()
	step := w.Step()
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("step", string(step)),
	)
	return &WizardState{
		SessionID:  sessionID,
		Step:       step,
		StepNumber: workflow.StepNumber(step),
		Draft:      draft,
		CanSubmit:  workflow.CanSubmit(&draft),
	}, nil
}

// ValidateVehicle runs the step-1 VIN lookup for a session.
func (s *Service) ValidateVehicle(ctx context.Context, sessionID, vin string) (*domain.VehicleWarrantyInfo, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceValidateVehicle")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return nil, err
	}

	info, err := w.ValidateVehicle(ctx, vin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "VIN lookup failed")
		s.logger.Warn("VIN lookup failed", "sessionID", sessionID, "vin", vin, "error", err, "app", "warranty-service")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("vin", vin),
		attribute.String("warrantyStatus", string(info.Status)),
	)
	s.logger.Info("Validated vehicle", "sessionID", sessionID, "vin", vin, "status", info.Status, "app", "warranty-service")
	return info, nil
}

// DescribeIssue records the step-2 issue category and description.
func (s *Service) DescribeIssue(ctx context.Context, sessionID string, category domain.IssueCategory, description string) error {
	_, span := s.tracer.Start(ctx, "ServiceDescribeIssue")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return err
	}
	if err := w.DescribeIssue(category, description); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid issue description")
		return err
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("issueCategory", string(category)),
	)
	s.logger.Info("Recorded issue description", "sessionID", sessionID, "category", category, "app", "warranty-service")
	return nil
}

// RecommendTechnicians ranks available technicians for the session's issue
// category.
func (s *Service) RecommendTechnicians(ctx context.Context, sessionID string) ([]domain.Technician, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceRecommendTechnicians")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return nil, err
	}
	ranked, err := w.RecommendTechnicians(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to rank technicians")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.Int("candidateCount", len(ranked)),
	)
	return ranked, nil
}

// AssignTechnicians resolves technician IDs against the roster and records
// the step-3 assignment. Selection rules (single main, main excluded from
// assistants) are enforced by the workflow's assignment builder.
func (s *Service) AssignTechnicians(ctx context.Context, sessionID, mainID string, assistantIDs []string, estimatedTime, specialInstructions string) error {
	ctx, span := s.tracer.Start(ctx, "ServiceAssignTechnicians")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return err
	}

	roster, err := s.repo.ListAvailableTechnicians(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list technicians")
		return fmt.Errorf("failed to list technicians: %w", err)
	}
	byID := make(map[string]domain.Technician, len(roster))
	for _, t := range roster {
		byID[t.ID] = t
	}

	main, ok := byID[mainID]
	if !ok {
		err := &domain.ValidationError{Field: "mainTechnician", Reason: fmt.Sprintf("technician %q is not available", mainID)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unknown main technician")
		return err
	}

	builder := workflow.NewAssignmentBuilder()
	builder.SelectMain(main)
	for _, id := range assistantIDs {
		assistant, ok := byID[id]
		if !ok {
			err := &domain.ValidationError{Field: "assistants", Reason: fmt.Sprintf("technician %q is not available", id)}
			span.RecordError(err)
			span.SetStatus(codes.Error, "Unknown assistant technician")
			return err
		}
		builder.ToggleAssistant(assistant)
	}

	assignment, err := builder.Build(estimatedTime, specialInstructions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Incomplete assignment")
		return err
	}
	if err := w.SetAssignment(assignment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to record assignment")
		return err
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("mainTechnicianID", mainID),
		attribute.Int("assistantCount", len(assignment.Assistants)),
	)
	s.logger.Info("Assigned technicians", "sessionID", sessionID, "mainTechnicianID", mainID, "assistants", len(assignment.Assistants), "app", "warranty-service")
	return nil
}

// AddAttachment appends a documentation-step file handle to the draft.
func (s *Service) AddAttachment(ctx context.Context, sessionID string, att domain.Attachment) error {
	_, span := s.tracer.Start(ctx, "ServiceAddAttachment")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return err
	}
	if err := w.AddAttachment(att); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Attachment rejected")
		return err
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("attachmentName", att.Name),
		attribute.Int64("attachmentSize", att.Size),
	)
	return nil
}

// RemoveAttachment removes the attachment at the given index.
func (s *Service) RemoveAttachment(ctx context.Context, sessionID string, index int) error {
	_, span := s.tracer.Start(ctx, "ServiceRemoveAttachment")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return err
	}
	if err := w.RemoveAttachment(index); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Attachment removal rejected")
		return err
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.Int("attachmentIndex", index),
	)
	return nil
}

// SetNotes records the documentation-step notes.
func (s *Service) SetNotes(ctx context.Context, sessionID, notes string) error {
	_, span := s.tracer.Start(ctx, "ServiceSetNotes")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return err
	}
	if err := w.SetNotes(notes); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Notes rejected")
		return err
	}
	span.SetAttributes(attribute.String("sessionID", sessionID))
	return nil
}

// Advance moves a session to its next step if the current gate is
// satisfied.
func (s *Service) Advance(ctx context.Context, sessionID string) (workflow.Step, error) {
	_, span := s.tracer.Start(ctx, "ServiceAdvance")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return "", err
	}
	step, err := w.Advance()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Transition rejected")
		return step, err
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("step", string(step)),
	)
	s.logger.Info("Advanced wizard", "sessionID", sessionID, "step", step, "app", "warranty-service")
	return step, nil
}

// Back moves a session to its previous step; from the first step it
// cancels the session.
func (s *Service) Back(ctx context.Context, sessionID string) (workflow.Step, error) {
	_, span := s.tracer.Start(ctx, "ServiceBack")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return "", err
	}
	step, err := w.Back()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Transition rejected")
		return step, err
	}
	if step == workflow.StepCancelled {
		s.closeSession(sessionID)
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("step", string(step)),
	)
	return step, nil
}

// Submit finalizes a session's draft. On success the session is closed and
// the claim ID returned; on failure the session stays open on the review
// step for retry.
func (s *Service) Submit(ctx context.Context, sessionID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceSubmit")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return "", err
	}
	claimID, err := w.Submit(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Submission failed")
		s.logger.Error("Claim submission failed", "sessionID", sessionID, "error", err, "app", "warranty-service")
		return "", err
	}
	s.closeSession(sessionID)
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("claimID", claimID),
	)
	s.logger.Info("Submitted claim", "sessionID", sessionID, "claimID", claimID, "app", "warranty-service")
	return claimID, nil
}

// Cancel discards a session's draft and closes it.
func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	_, span := s.tracer.Start(ctx, "ServiceCancel")
	defer span.End()

	w, err := s.wizard(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return err
	}
	if err := w.Cancel(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Cancel rejected")
		return err
	}
	s.closeSession(sessionID)
	span.SetAttributes(attribute.String("sessionID", sessionID))
	s.logger.Info("Cancelled claim wizard", "sessionID", sessionID, "app", "warranty-service")
	return nil
}

// GetClaim retrieves a submitted claim by ID.
func (s *Service) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceGetClaim")
	defer span.End()

	claim, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get claim")
		return nil, err
	}
	span.SetAttributes(attribute.String("claimID", claimID))
	return claim, nil
}

// ListClaims retrieves all submitted claims.
func (s *Service) ListClaims(ctx context.Context) ([]*domain.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListClaims")
	defer span.End()

	claims, err := s.repo.GetAllClaims(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list claims")
		return nil, err
	}
	span.SetAttributes(attribute.Int("claimCount", len(claims)))
	return claims, nil
}
