package workflow

import (
	"fmt"
	"strings"

	"warranty-service/domain"
)

// MaxDescriptionLen bounds the free-text issue description.
const MaxDescriptionLen = 4000

// DefaultEstimatedTime is used when an assignment leaves the estimate blank.
const DefaultEstimatedTime = "to-be-scheduled"

// AttachmentPolicy caps what the documentation step will accept.
type AttachmentPolicy struct {
	MaxCount    int
	MaxFileSize int64
}

// DefaultAttachmentPolicy mirrors the service-wide diagnostic-report cap.
var DefaultAttachmentPolicy = AttachmentPolicy{
	MaxCount:    10,
	MaxFileSize: 25 << 20,
}

// ClaimDraft is the mutable aggregate a wizard owns for its lifetime. It is
// created empty when the wizard opens, filled step by step, and either
// discarded on cancel or frozen into a domain.Claim on submit.
//
// ClaimDraft methods validate their own field; step gating lives in
// CanAdvance and CanSubmit.
type ClaimDraft struct {
	VehicleInfo      *domain.VehicleWarrantyInfo `json:"vehicleInfo"`
	IssueCategory    domain.IssueCategory        `json:"issueCategory"`
	IssueDescription string                      `json:"issueDescription"`
	Assignment       *domain.TechnicianAssignment `json:"assignment"`
	Attachments      []domain.Attachment         `json:"attachments"`
	Notes            string                      `json:"notes"`
}

// NewClaimDraft returns an empty draft.
func NewClaimDraft() *ClaimDraft {
	return &ClaimDraft{}
}

// SetVehicleInfo records the validator's snapshot. Any status other than a
// lookup miss allows progression: expired vehicles can still receive paid
// service, so valid and expired_* are all accepted here.
func (d *ClaimDraft) SetVehicleInfo(info *domain.VehicleWarrantyInfo) error {
	if info == nil {
		return &domain.ValidationError{Field: "vehicleInfo", Reason: "lookup result is required"}
	}
	d.VehicleInfo = info
	return nil
}

// SetIssue records the category and description for the describe step.
func (d *ClaimDraft) SetIssue(category domain.IssueCategory, description string) error {
	if !ValidCategory(category) {
		return &domain.ValidationError{Field: "issueCategory", Reason: fmt.Sprintf("unknown category %q", category)}
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return &domain.ValidationError{Field: "issueDescription", Reason: "description must not be empty"}
	}
	if len(description) > MaxDescriptionLen {
		return &domain.ValidationError{Field: "issueDescription", Reason: fmt.Sprintf("description exceeds %d characters", MaxDescriptionLen)}
	}
	d.IssueCategory = category
	d.IssueDescription = description
	return nil
}

// SetAssignment records the staffing decision. The assignment must carry a
// main technician; a blank estimate defaults to DefaultEstimatedTime.
func (d *ClaimDraft) SetAssignment(a *domain.TechnicianAssignment) error {
	if a == nil || a.MainTechnician == nil {
		return &domain.ValidationError{Field: "mainTechnician", Reason: "a main technician is required"}
	}
	for _, assistant := range a.Assistants {
		if assistant.ID == a.MainTechnician.ID {
			return &domain.ValidationError{Field: "assistants", Reason: "main technician cannot also assist"}
		}
	}
	if strings.TrimSpace(a.EstimatedTime) == "" {
		a.EstimatedTime = DefaultEstimatedTime
	}
	d.Assignment = a
	return nil
}

// AddAttachment appends a file handle, subject to the policy caps.
func (d *ClaimDraft) AddAttachment(att domain.Attachment, policy AttachmentPolicy) error {
	if policy.MaxCount > 0 && len(d.Attachments) >= policy.MaxCount {
		return &domain.ValidationError{Field: "attachments", Reason: fmt.Sprintf("at most %d attachments allowed", policy.MaxCount)}
	}
	if policy.MaxFileSize > 0 && att.Size > policy.MaxFileSize {
		return &domain.ValidationError{Field: "attachments", Reason: fmt.Sprintf("file %q exceeds %d bytes", att.Name, policy.MaxFileSize)}
	}
	if strings.TrimSpace(att.Name) == "" {
		return &domain.ValidationError{Field: "attachments", Reason: "attachment name is required"}
	}
	d.Attachments = append(d.Attachments, att)
	return nil
}

// RemoveAttachment deletes the attachment at index i. No confirmation step:
// removal before submission is always allowed.
func (d *ClaimDraft) RemoveAttachment(i int) error {
	if i < 0 || i >= len(d.Attachments) {
		return &domain.ValidationError{Field: "attachments", Reason: fmt.Sprintf("no attachment at index %d", i)}
	}
	d.Attachments = append(d.Attachments[:i], d.Attachments[i+1:]...)
	return nil
}

// SetNotes records the documentation-step note text.
func (d *ClaimDraft) SetNotes(notes string) error {
	if strings.TrimSpace(notes) == "" {
		return &domain.ValidationError{Field: "notes", Reason: "notes must not be empty"}
	}
	d.Notes = notes
	return nil
}

// ValidCategory reports whether c is one of the fixed issue categories.
func ValidCategory(c domain.IssueCategory) bool {
	for _, cat := range domain.IssueCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// CanAdvance reports whether the draft satisfies the gate of the given step,
// i.e. whether the wizard may move from that step to the next one.
func CanAdvance(step Step, d *ClaimDraft) bool {
	return GateError(step, d) == nil
}

// GateError returns the validation error blocking advancement from step, or
// nil if the step's gate is satisfied.
func GateError(step Step, d *ClaimDraft) error {
	if d == nil {
		return &domain.ValidationError{Field: "draft", Reason: "draft is required"}
	}
	switch step {
	case StepValidate:
		if d.VehicleInfo == nil {
			return &domain.ValidationError{Field: "vehicleInfo", Reason: "a successful VIN lookup is required"}
		}
	case StepDescribe:
		if d.IssueCategory == "" {
			return &domain.ValidationError{Field: "issueCategory", Reason: "an issue category is required"}
		}
		if strings.TrimSpace(d.IssueDescription) == "" {
			return &domain.ValidationError{Field: "issueDescription", Reason: "an issue description is required"}
		}
	case StepAssign:
		if d.Assignment == nil || d.Assignment.MainTechnician == nil {
			return &domain.ValidationError{Field: "mainTechnician", Reason: "a main technician is required"}
		}
	case StepDocument:
		if strings.TrimSpace(d.Notes) == "" {
			return &domain.ValidationError{Field: "notes", Reason: "notes are required"}
		}
	case StepReview:
		// Advancing from review is submission; see CanSubmit.
	}
	return nil
}

// CanSubmit is the final submission gate: vehicle info, issue category and
// description, and a main technician must all be present.
//
// Notes are intentionally NOT re-checked here. The documentation step's own
// gate requires notes to reach review, so the review step is unreachable
// without them through normal flow, but the submission predicate itself
// stays silent on notes. This preserves the historical behavior of the
// intake form; callers that want notes mandatory at submit time must gate on
// GateError(StepDocument, d) as well.
func CanSubmit(d *ClaimDraft) bool {
	if d == nil {
		return false
	}
	return d.VehicleInfo != nil &&
		d.IssueCategory != "" &&
		strings.TrimSpace(d.IssueDescription) != "" &&
		d.Assignment != nil &&
		d.Assignment.MainTechnician != nil
}
