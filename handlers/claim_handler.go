package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"warranty-service/domain"
	"warranty-service/service"
	"warranty-service/workflow"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ClaimHandler handles warranty-claim wizard requests
type ClaimHandler struct {
	service *service.Service
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewClaimHandler creates a new ClaimHandler
func NewClaimHandler(service *service.Service, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		service: service,
		tracer:  otel.Tracer("warranty-service"),
		logger:  logger,
	}
}

// Register attaches all claim routes to the router.
func (h *ClaimHandler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/claims/wizard", h.OpenWizard).Methods("POST")
	r.HandleFunc("/claims/wizard/{sessionID}", h.GetWizardState).Methods("GET")
	r.HandleFunc("/claims/wizard/{sessionID}", h.CancelWizard).Methods("DELETE")
	r.HandleFunc("/claims/wizard/{sessionID}/vehicle", h.ValidateVehicle).Methods("POST")
	r.HandleFunc("/claims/wizard/{sessionID}/issue", h.DescribeIssue).Methods("POST")
	r.HandleFunc("/claims/wizard/{sessionID}/technicians", h.RecommendTechnicians).Methods("GET")
	r.HandleFunc("/claims/wizard/{sessionID}/assignment", h.AssignTechnicians).Methods("POST")
	r.HandleFunc("/claims/wizard/{sessionID}/attachments", h.AddAttachment).Methods("POST")
	r.HandleFunc("/claims/wizard/{sessionID}/attachments/{index}", h.RemoveAttachment).Methods("DELETE")
	r.HandleFunc("/claims/wizard/{sessionID}/notes", h.SetNotes).Methods("POST")
	r.HandleFunc("/claims/wizard/{sessionID}/advance", h.Advance).Methods("POST")
	r.HandleFunc("/claims/wizard/{sessionID}/back", h.Back).Methods("POST")
	r.HandleFunc("/claims/wizard/{sessionID}/submit", h.Submit).Methods("POST")
	r.HandleFunc("/claims/{claimID}", h.GetClaim).Methods("GET")
	r.HandleFunc("/claims", h.ListClaims).Methods("GET")
}

// statusFor maps the error taxonomy to HTTP codes: validation errors are
// 400, missing sessions/vehicles/claims 404, an in-flight duplicate 409,
// anything else (including submission failure) 502/500 territory.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrVehicleNotFound),
		errors.Is(err, domain.ErrClaimNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWizardBusy),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// HealthCheck provides a health endpoint
func (h *ClaimHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "HealthCheck")
	defer span.End()

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// OpenWizard opens a new claim-creation session
func (h *ClaimHandler) OpenWizard(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OpenWizard")
	defer span.End()

	var input workflow.SessionContext
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	sessionID, err := h.service.OpenWizard(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("sessionID", sessionID))
	writeJSON(w, http.StatusCreated, map[string]string{"sessionID": sessionID})
}

// GetWizardState returns the step and draft of a session
func (h *ClaimHandler) GetWizardState(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetWizardState")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	state, err := h.service.GetWizardState(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("step", string(state.Step)),
	)
	writeJSON(w, http.StatusOK, state)
}

// ValidateVehicle runs the step-1 VIN lookup
func (h *ClaimHandler) ValidateVehicle(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ValidateVehicle")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	var input struct {
		VIN string `json:"vin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	info, err := h.service.ValidateVehicle(ctx, sessionID, input.VIN)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("vin", input.VIN),
		attribute.String("warrantyStatus", string(info.Status)),
	)
	writeJSON(w, http.StatusOK, info)
}

// DescribeIssue records the step-2 issue category and description
func (h *ClaimHandler) DescribeIssue(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DescribeIssue")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	var input struct {
		Category    domain.IssueCategory `json:"category"`
		Description string               `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.service.DescribeIssue(ctx, sessionID, input.Category, input.Description); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("issueCategory", string(input.Category)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// RecommendTechnicians returns the ranked candidate list for the session
func (h *ClaimHandler) RecommendTechnicians(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RecommendTechnicians")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	ranked, err := h.service.RecommendTechnicians(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.Int("candidateCount", len(ranked)),
	)
	w.Header().Set("Content-Type", "application/json")
	if len(ranked) == 0 {
		w.Write([]byte("[]"))
		return
	}
	json.NewEncoder(w).Encode(ranked)
}

// AssignTechnicians records the step-3 staffing decision
func (h *ClaimHandler) AssignTechnicians(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AssignTechnicians")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	var input struct {
		MainTechnicianID    string   `json:"mainTechnicianID"`
		AssistantIDs        []string `json:"assistantIDs"`
		EstimatedTime       string   `json:"estimatedTime"`
		SpecialInstructions string   `json:"specialInstructions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	err := h.service.AssignTechnicians(ctx, sessionID, input.MainTechnicianID, input.AssistantIDs, input.EstimatedTime, input.SpecialInstructions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("mainTechnicianID", input.MainTechnicianID),
	)
	w.WriteHeader(http.StatusNoContent)
}

// AddAttachment appends a documentation-step file handle
func (h *ClaimHandler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddAttachment")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	var input domain.Attachment
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.service.AddAttachment(ctx, sessionID, input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("attachmentName", input.Name),
	)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveAttachment deletes an attachment by index
func (h *ClaimHandler) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveAttachment")
	defer span.End()

	vars := mux.Vars(r)
	sessionID := vars["sessionID"]
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid attachment index")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid attachment index"})
		return
	}

	if err := h.service.RemoveAttachment(ctx, sessionID, index); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.Int("attachmentIndex", index),
	)
	w.WriteHeader(http.StatusNoContent)
}

// SetNotes records the documentation-step notes
func (h *ClaimHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetNotes")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	var input struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.service.SetNotes(ctx, sessionID, input.Notes); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("sessionID", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

// Advance moves the session to the next step
func (h *ClaimHandler) Advance(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Advance")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	step, err := h.service.Advance(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("step", string(step)),
	)
	writeJSON(w, http.StatusOK, map[string]any{"step": step, "stepNumber": workflow.StepNumber(step)})
}

// Back moves the session to the previous step
func (h *ClaimHandler) Back(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Back")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	step, err := h.service.Back(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("step", string(step)),
	)
	writeJSON(w, http.StatusOK, map[string]any{"step": step, "stepNumber": workflow.StepNumber(step)})
}

// Submit finalizes the session's draft
func (h *ClaimHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Submit")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	claimID, err := h.service.Submit(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Error("Failed to submit claim", "sessionID", sessionID, "error", err, "app", "warranty-service")
		writeError(w, err)
		return
	}
	span.SetAttributes(
		attribute.String("sessionID", sessionID),
		attribute.String("claimID", claimID),
	)
	h.logger.Info("Submitted claim", "sessionID", sessionID, "claimID", claimID, "app", "warranty-service")
	writeJSON(w, http.StatusCreated, map[string]string{"claimID": claimID})
}

// CancelWizard discards the session
func (h *ClaimHandler) CancelWizard(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelWizard")
	defer span.End()

	sessionID := mux.Vars(r)["sessionID"]
	if err := h.service.Cancel(ctx, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("sessionID", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

// GetClaim retrieves a submitted claim
func (h *ClaimHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetClaim")
	defer span.End()

	claimID := mux.Vars(r)["claimID"]
	claim, err := h.service.GetClaim(ctx, claimID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("claimID", claimID))
	writeJSON(w, http.StatusOK, claim)
}

// ListClaims retrieves all submitted claims
func (h *ClaimHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListClaims")
	defer span.End()

	claims, err := h.service.ListClaims(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.Int("claimCount", len(claims)))
	w.Header().Set("Content-Type", "application/json")
	if len(claims) == 0 {
		w.Write([]byte("[]"))
		return
	}
	json.NewEncoder(w).Encode(claims)
}
