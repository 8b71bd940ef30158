package workflow

import (
	"strings"

	"warranty-service/domain"
)

// AssignmentBuilder accumulates technician selections for the assign step.
//
// Selection rules:
//   - exactly one technician may be main at a time;
//   - selecting a current assistant as main removes them from the
//     assistants;
//   - selecting the current main as an assistant is a no-op;
//   - toggling a selection twice clears it.
//
// A technician can therefore never be main and assistant simultaneously;
// the conflict is corrected by construction rather than surfaced as an
// error.
type AssignmentBuilder struct {
	main       *domain.Technician
	assistants []domain.Technician
}

// NewAssignmentBuilder returns an empty builder.
func NewAssignmentBuilder() *AssignmentBuilder {
	return &AssignmentBuilder{}
}

// SelectMain toggles t as the main technician.
func (b *AssignmentBuilder) SelectMain(t domain.Technician) {
	if b.main != nil && b.main.ID == t.ID {
		b.main = nil
		return
	}
	b.removeAssistant(t.ID)
	selected := t
	b.main = &selected
}

// ToggleAssistant toggles t's membership in the assistant set. The current
// main technician cannot be added as an assistant.
func (b *AssignmentBuilder) ToggleAssistant(t domain.Technician) {
	if b.main != nil && b.main.ID == t.ID {
		return
	}
	for _, a := range b.assistants {
		if a.ID == t.ID {
			b.removeAssistant(t.ID)
			return
		}
	}
	b.assistants = append(b.assistants, t)
}

func (b *AssignmentBuilder) removeAssistant(id string) {
	for i, a := range b.assistants {
		if a.ID == id {
			b.assistants = append(b.assistants[:i], b.assistants[i+1:]...)
			return
		}
	}
}

// Main returns the current main technician, if any.
func (b *AssignmentBuilder) Main() *domain.Technician {
	return b.main
}

// Assistants returns the assistant set in selection order.
func (b *AssignmentBuilder) Assistants() []domain.Technician {
	out := make([]domain.Technician, len(b.assistants))
	copy(out, b.assistants)
	return out
}

// Build finalizes the assignment. A main technician is required; a blank
// estimate defaults to DefaultEstimatedTime.
func (b *AssignmentBuilder) Build(estimatedTime, specialInstructions string) (*domain.TechnicianAssignment, error) {
	if b.main == nil {
		return nil, &domain.ValidationError{Field: "mainTechnician", Reason: "a main technician is required"}
	}
	if strings.TrimSpace(estimatedTime) == "" {
		estimatedTime = DefaultEstimatedTime
	}
	return &domain.TechnicianAssignment{
		MainTechnician:      b.main,
		Assistants:          b.Assistants(),
		EstimatedTime:       estimatedTime,
		SpecialInstructions: specialInstructions,
	}, nil
}
