package workflow

import (
	"testing"

	"warranty-service/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	techQuan = domain.Technician{ID: "t-1", Name: "Trần Minh Quân", Specialty: domain.SpecialtyBattery}
	techHoa  = domain.Technician{ID: "t-2", Name: "Lê Thị Hoa", Specialty: domain.SpecialtyCharging}
	techDung = domain.Technician{ID: "t-3", Name: "Phạm Văn Dũng", Specialty: domain.SpecialtyDiagnostics}
)

func TestAssignmentBuilder_SelectMainToggles(t *testing.T) {
	b := NewAssignmentBuilder()

	b.SelectMain(techQuan)
	require.NotNil(t, b.Main())
	assert.Equal(t, "t-1", b.Main().ID)

	b.SelectMain(techQuan)
	assert.Nil(t, b.Main())
}

func TestAssignmentBuilder_SelectMainReplaces(t *testing.T) {
	b := NewAssignmentBuilder()
	b.SelectMain(techQuan)
	b.SelectMain(techHoa)
	require.NotNil(t, b.Main())
	assert.Equal(t, "t-2", b.Main().ID)
}

func TestAssignmentBuilder_PromotingAssistantRemovesFromAssistants(t *testing.T) {
	b := NewAssignmentBuilder()
	b.ToggleAssistant(techHoa)
	b.ToggleAssistant(techDung)

	b.SelectMain(techHoa)

	require.NotNil(t, b.Main())
	assert.Equal(t, "t-2", b.Main().ID)
	assistants := b.Assistants()
	require.Len(t, assistants, 1)
	assert.Equal(t, "t-3", assistants[0].ID)
}

func TestAssignmentBuilder_MainCannotBecomeAssistant(t *testing.T) {
	b := NewAssignmentBuilder()
	b.SelectMain(techQuan)

	b.ToggleAssistant(techQuan)

	assert.Empty(t, b.Assistants())
	require.NotNil(t, b.Main())
	assert.Equal(t, "t-1", b.Main().ID)
}

func TestAssignmentBuilder_ToggleAssistantTwiceClears(t *testing.T) {
	b := NewAssignmentBuilder()
	b.ToggleAssistant(techHoa)
	b.ToggleAssistant(techHoa)
	assert.Empty(t, b.Assistants())
}

func TestAssignmentBuilder_AssistantsKeepSelectionOrder(t *testing.T) {
	b := NewAssignmentBuilder()
	b.ToggleAssistant(techDung)
	b.ToggleAssistant(techHoa)

	assistants := b.Assistants()
	require.Len(t, assistants, 2)
	assert.Equal(t, "t-3", assistants[0].ID)
	assert.Equal(t, "t-2", assistants[1].ID)
}

func TestAssignmentBuilder_BuildRequiresMain(t *testing.T) {
	b := NewAssignmentBuilder()
	b.ToggleAssistant(techHoa)

	_, err := b.Build("2 days", "")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestAssignmentBuilder_BuildDefaultsEstimate(t *testing.T) {
	b := NewAssignmentBuilder()
	b.SelectMain(techQuan)

	a, err := b.Build("  ", "lift bay 2")
	require.NoError(t, err)
	assert.Equal(t, DefaultEstimatedTime, a.EstimatedTime)
	assert.Equal(t, "lift bay 2", a.SpecialInstructions)
	assert.Equal(t, "t-1", a.MainTechnician.ID)
}

func TestAssignmentBuilder_BuildCopiesAssistants(t *testing.T) {
	b := NewAssignmentBuilder()
	b.SelectMain(techQuan)
	b.ToggleAssistant(techHoa)

	a, err := b.Build("2 days", "")
	require.NoError(t, err)

	b.ToggleAssistant(techDung)
	assert.Len(t, a.Assistants, 1, "built assignment must not see later toggles")
}
