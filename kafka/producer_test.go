package kafka

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"warranty-service/domain"

	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleClaim() *domain.Claim {
	return &domain.Claim{
		ID:               "WC-8f2a1c9e",
		VIN:              "1HGBH41JXMN109186",
		Vehicle:          domain.VehicleWarrantyInfo{VIN: "1HGBH41JXMN109186", Status: domain.WarrantyValid},
		IssueCategory:    domain.IssueBatteryPerformance,
		IssueDescription: "Range drops sharply below freezing",
		Assignment: domain.TechnicianAssignment{
			MainTechnician: &domain.Technician{ID: "t-1", Name: "Trần Minh Quân"},
			Assistants:     []domain.Technician{{ID: "t-3"}},
			EstimatedTime:  "2 days",
		},
		Attachments: []domain.Attachment{{Name: "report.pdf"}, {Name: "photo.jpg"}},
		Status:      "submitted",
		SubmittedBy: "advisor-7",
		SubmittedAt: time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC),
	}
}

func TestNewClaimEvent_Flattening(t *testing.T) {
	claim := sampleClaim()
	event := NewClaimEvent(claim)

	assert.Equal(t, "WC-8f2a1c9e", event.ID)
	assert.Equal(t, "1HGBH41JXMN109186", event.VIN)
	assert.Equal(t, "battery-performance", event.IssueCategory)
	assert.Equal(t, "valid", event.WarrantyStatus)
	assert.Equal(t, "t-1", event.MainTechnicianID)
	assert.Equal(t, 1, event.AssistantCount)
	assert.Equal(t, 2, event.AttachmentCount)
	assert.Equal(t, "advisor-7", event.SubmittedBy)
	assert.Equal(t, claim.SubmittedAt.UnixMilli(), event.SubmittedAt)
}

func TestNewClaimEvent_MissingMainTechnician(t *testing.T) {
	claim := sampleClaim()
	claim.Assignment.MainTechnician = nil
	event := NewClaimEvent(claim)
	assert.Empty(t, event.MainTechnicianID)
}

func TestEncode_ConfluentWireFormat(t *testing.T) {
	schemaBytes, err := os.ReadFile("../claim_event.avsc")
	require.NoError(t, err)
	schema, err := avro.Parse(string(schemaBytes))
	require.NoError(t, err)

	p := &Producer{schema: schema, SchemaID: 7}
	event := NewClaimEvent(sampleClaim())

	payload, err := p.Encode(event)
	require.NoError(t, err)
	require.Greater(t, len(payload), 5)

	assert.Equal(t, byte(0), payload[0], "magic byte")
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(payload[1:5]), "schema ID")

	var decoded ClaimEvent
	require.NoError(t, avro.Unmarshal(schema, payload[5:], &decoded))
	assert.Equal(t, event, decoded)
}
