package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"warranty-service/domain"
)

// WarrantyValidator looks up a vehicle and its warranty facts by VIN.
// A miss is reported as domain.ErrVehicleNotFound.
type WarrantyValidator interface {
	LookupVehicle(ctx context.Context, vin string) (*domain.VehicleWarrantyInfo, error)
}

// TechnicianRoster provides the read-only technician snapshot for the
// duration of a wizard session.
type TechnicianRoster interface {
	ListAvailable(ctx context.Context) ([]domain.Technician, error)
}

// ClaimSubmitter receives the finalized claim and returns its assigned
// identifier. Submission is fallible; the wizard preserves the draft so a
// failed submit can be retried.
type ClaimSubmitter interface {
	Submit(ctx context.Context, claim *domain.Claim) (string, error)
}

// Notifier receives fire-and-forget notifications at step transitions and
// on errors. Purely informational; failures to deliver are ignored.
type Notifier interface {
	Notify(title, message, severity string)
}

// Notification severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// SessionContext is the read-only caller identity injected into a wizard at
// construction. It stands in for whatever auth layer fronted the request.
type SessionContext struct {
	UserID   string `json:"userID"`
	UserName string `json:"userName"`
}

// Wizard drives one warranty-claim creation session. It exclusively owns
// its ClaimDraft from open until submit or cancel; the draft is never
// shared.
//
// The only blocking operations are the VIN lookup and the final submit.
// Both are guarded by a busy flag so a duplicate request while one is in
// flight is rejected with domain.ErrWizardBusy instead of queued.
type Wizard struct {
	mu      sync.Mutex
	session SessionContext
	step    Step
	draft   *ClaimDraft
	busy    bool
	policy  AttachmentPolicy

	validator WarrantyValidator
	roster    TechnicianRoster
	submitter ClaimSubmitter
	notifier  Notifier
}

// Config carries the collaborators and policy a wizard is built with.
type Config struct {
	Session   SessionContext
	Policy    AttachmentPolicy
	Validator WarrantyValidator
	Roster    TechnicianRoster
	Submitter ClaimSubmitter
	Notifier  Notifier
}

// NewWizard opens a wizard session with an empty draft on the validation
// step.
func NewWizard(cfg Config) (*Wizard, error) {
	if cfg.Validator == nil || cfg.Roster == nil || cfg.Submitter == nil {
		return nil, fmt.Errorf("validator, roster and submitter collaborators are required")
	}
	policy := cfg.Policy
	if policy.MaxCount == 0 && policy.MaxFileSize == 0 {
		policy = DefaultAttachmentPolicy
	}
	return &Wizard{
		session:   cfg.Session,
		step:      StepValidate,
		draft:     NewClaimDraft(),
		policy:    policy,
		validator: cfg.Validator,
		roster:    cfg.Roster,
		submitter: cfg.Submitter,
		notifier:  cfg.Notifier,
	}, nil
}

// Step returns the active step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Draft returns a copy of the current draft state. Pointed-to structs are
// copied too so the caller cannot write through to wizard state.
func (w *Wizard) Draft() ClaimDraft {
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := *w.draft
	if w.draft.VehicleInfo != nil {
		info := *w.draft.VehicleInfo
		snapshot.VehicleInfo = &info
	}
	if w.draft.Assignment != nil {
		assignment := *w.draft.Assignment
		if w.draft.Assignment.MainTechnician != nil {
			main := *w.draft.Assignment.MainTechnician
			assignment.MainTechnician = &main
		}
		assignment.Assistants = make([]domain.Technician, len(w.draft.Assignment.Assistants))
		copy(assignment.Assistants, w.draft.Assignment.Assistants)
		snapshot.Assignment = &assignment
	}
	snapshot.Attachments = make([]domain.Attachment, len(w.draft.Attachments))
	copy(snapshot.Attachments, w.draft.Attachments)
	return snapshot
}

func (w *Wizard) notify(title, message, severity string) {
	if w.notifier != nil {
		w.notifier.Notify(title, message, severity)
	}
}

// beginBlocking marks the wizard busy for the duration of an external call,
// requiring the wizard to be on the given step.
func (w *Wizard) beginBlocking(step Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != step {
		return fmt.Errorf("%w: operation requires step %s, wizard is on %s", domain.ErrInvalidTransition, step, w.step)
	}
	if w.busy {
		return domain.ErrWizardBusy
	}
	w.busy = true
	return nil
}

func (w *Wizard) endBlocking() {
	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()
}

// ValidateVehicle performs the step-1 VIN lookup and stores the result in
// the draft. Any warranty status unlocks advancement; only a lookup miss
// leaves the draft untouched. The VIN itself is unconstrained beyond being
// non-empty.
func (w *Wizard) ValidateVehicle(ctx context.Context, vin string) (*domain.VehicleWarrantyInfo, error) {
	vin = strings.TrimSpace(vin)
	if vin == "" {
		return nil, &domain.ValidationError{Field: "vin", Reason: "a VIN is required"}
	}
	if err := w.beginBlocking(StepValidate); err != nil {
		return nil, err
	}
	defer w.endBlocking()

	info, err := w.validator.LookupVehicle(ctx, vin)
	if errors.Is(err, domain.ErrVehicleNotFound) {
		w.notify("Vehicle not found", fmt.Sprintf("No vehicle registered for VIN %s", vin), SeverityError)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("warranty lookup failed: %w", err)
	}

	w.mu.Lock()
	err = w.draft.SetVehicleInfo(info)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if info.Status == domain.WarrantyValid {
		w.notify("Warranty verified", fmt.Sprintf("%s %d is under warranty", info.Model, info.Year), SeverityInfo)
	} else {
		w.notify("Warranty expired", fmt.Sprintf("%s %d is out of warranty (%s); claim continues as paid service", info.Model, info.Year, info.Status), SeverityWarning)
	}
	return info, nil
}

// DescribeIssue records the step-2 category and description.
func (w *Wizard) DescribeIssue(category domain.IssueCategory, description string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.SetIssue(category, description)
}

// RecommendTechnicians ranks the roster for the draft's issue category.
// The describe step must be complete so the category is known.
func (w *Wizard) RecommendTechnicians(ctx context.Context) ([]domain.Technician, error) {
	w.mu.Lock()
	category := w.draft.IssueCategory
	w.mu.Unlock()
	if category == "" {
		return nil, &domain.ValidationError{Field: "issueCategory", Reason: "describe the issue before requesting recommendations"}
	}

	roster, err := w.roster.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	return RecommendTechnicians(category, roster), nil
}

// SetAssignment records the step-3 staffing decision.
func (w *Wizard) SetAssignment(a *domain.TechnicianAssignment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.SetAssignment(a)
}

// AddAttachment appends a documentation-step file handle.
func (w *Wizard) AddAttachment(att domain.Attachment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.AddAttachment(att, w.policy)
}

// RemoveAttachment removes the attachment at index i.
func (w *Wizard) RemoveAttachment(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.RemoveAttachment(i)
}

// SetNotes records the documentation-step notes.
func (w *Wizard) SetNotes(notes string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.SetNotes(notes)
}

// Advance moves the wizard to the next step if the current step's gate is
// satisfied. Advancing from review is not possible; use Submit.
func (w *Wizard) Advance() (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next, ok := Next(w.step)
	if !ok {
		return w.step, fmt.Errorf("%w: no step after %s", domain.ErrInvalidTransition, w.step)
	}
	step, err := Transition(w.step, next, w.draft)
	if err != nil {
		return w.step, err
	}
	w.step = step
	w.notify("Step complete", fmt.Sprintf("Moved to step %d", StepNumber(step)), SeverityInfo)
	return step, nil
}

// Back moves the wizard to the previous step. Going back from the first
// step cancels the session.
func (w *Wizard) Back() (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if IsTerminal(w.step) {
		return w.step, fmt.Errorf("%w: wizard is closed", domain.ErrInvalidTransition)
	}
	prev, ok := Prev(w.step)
	if !ok {
		w.step = StepCancelled
		w.draft = NewClaimDraft()
		return w.step, nil
	}
	step, err := Transition(w.step, prev, w.draft)
	if err != nil {
		return w.step, err
	}
	w.step = step
	return step, nil
}

// Cancel discards the draft and closes the wizard. No external effect.
func (w *Wizard) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if IsTerminal(w.step) {
		return fmt.Errorf("%w: wizard is closed", domain.ErrInvalidTransition)
	}
	w.step = StepCancelled
	w.draft = NewClaimDraft()
	return nil
}

// Submit finalizes the draft and hands an immutable copy to the submitter.
// On failure the wizard stays on the review step with the draft intact so
// the submission can be retried without re-entering the earlier steps.
func (w *Wizard) Submit(ctx context.Context) (string, error) {
	if err := w.beginBlocking(StepReview); err != nil {
		return "", err
	}
	defer w.endBlocking()

	w.mu.Lock()
	if !CanSubmit(w.draft) {
		w.mu.Unlock()
		return "", &domain.ValidationError{Field: "draft", Reason: "vehicle, issue and technician assignment are required"}
	}
	claim := w.freezeLocked()
	w.mu.Unlock()

	id, err := w.submitter.Submit(ctx, claim)
	if err != nil {
		w.notify("Submission failed", "The claim could not be submitted; your draft is preserved", SeverityError)
		return "", fmt.Errorf("claim submission failed: %w", err)
	}

	w.mu.Lock()
	w.step = StepSubmitted
	w.mu.Unlock()
	w.notify("Claim submitted", fmt.Sprintf("Claim %s created", id), SeverityInfo)
	return id, nil
}

// freezeLocked copies the draft into an immutable claim record. Caller
// holds w.mu.
func (w *Wizard) freezeLocked() *domain.Claim {
	attachments := make([]domain.Attachment, len(w.draft.Attachments))
	copy(attachments, w.draft.Attachments)
	return &domain.Claim{
		VIN:              w.draft.VehicleInfo.VIN,
		Vehicle:          *w.draft.VehicleInfo,
		IssueCategory:    w.draft.IssueCategory,
		IssueDescription: w.draft.IssueDescription,
		Assignment:       *w.draft.Assignment,
		Attachments:      attachments,
		Notes:            w.draft.Notes,
		Status:           "submitted",
		SubmittedBy:      w.session.UserID,
		SubmittedAt:      time.Now(),
	}
}
