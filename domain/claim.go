package domain

import "time"

// WarrantyStatus describes whether a vehicle is currently covered.
type WarrantyStatus string

const (
	WarrantyValid          WarrantyStatus = "valid"
	WarrantyExpiredTime    WarrantyStatus = "expired_time"
	WarrantyExpiredMileage WarrantyStatus = "expired_mileage"
	WarrantyNotFound       WarrantyStatus = "not_found"
)

// IssueCategory is the fixed set of claim issue categories.
type IssueCategory string

const (
	IssueBatteryPerformance IssueCategory = "battery-performance"
	IssueMotorController    IssueCategory = "motor-controller"
	IssueChargingSystem     IssueCategory = "charging-system"
	IssueElectronics        IssueCategory = "electronics"
	IssueSoftware           IssueCategory = "software"
	IssueOther              IssueCategory = "other"
)

// IssueCategories lists every valid category in display order.
var IssueCategories = []IssueCategory{
	IssueBatteryPerformance,
	IssueMotorController,
	IssueChargingSystem,
	IssueElectronics,
	IssueSoftware,
	IssueOther,
}

// Specialty is a technician's area of expertise.
type Specialty string

const (
	SpecialtyBattery     Specialty = "Battery Systems"
	SpecialtyDrivetrain  Specialty = "Motor & Drivetrain"
	SpecialtyCharging    Specialty = "Charging Systems"
	SpecialtyElectronics Specialty = "Vehicle Electronics"
	SpecialtySoftware    Specialty = "Embedded Software"
	SpecialtyDiagnostics Specialty = "General Diagnostics"
)

// CustomerContact is the contact summary attached to a vehicle record.
type CustomerContact struct {
	Name  string `json:"name" bson:"name"`
	Phone string `json:"phone" bson:"phone"`
	Email string `json:"email" bson:"email"`
}

// Vehicle is a registered vehicle as persisted in the vehicles collection.
type Vehicle struct {
	VIN           string          `json:"vin" bson:"_id"`
	Model         string          `json:"model" bson:"model"`
	Year          int             `json:"year" bson:"year"`
	PurchaseDate  time.Time       `json:"purchaseDate" bson:"purchaseDate"`
	WarrantyStart time.Time       `json:"warrantyStart" bson:"warrantyStart"`
	WarrantyEnd   time.Time       `json:"warrantyEnd" bson:"warrantyEnd"`
	Mileage       int             `json:"mileage" bson:"mileage"`
	MaxMileage    int             `json:"maxMileage" bson:"maxMileage"`
	Customer      CustomerContact `json:"customer" bson:"customer"`
}

// WarrantyStatusAt computes the coverage status at the given instant.
// Time expiry is checked before mileage expiry.
func (v *Vehicle) WarrantyStatusAt(now time.Time) WarrantyStatus {
	if now.After(v.WarrantyEnd) {
		return WarrantyExpiredTime
	}
	if v.MaxMileage > 0 && v.Mileage > v.MaxMileage {
		return WarrantyExpiredMileage
	}
	return WarrantyValid
}

// VehicleWarrantyInfo is the immutable snapshot returned by a VIN lookup.
type VehicleWarrantyInfo struct {
	VIN           string          `json:"vin" bson:"vin"`
	Model         string          `json:"model" bson:"model"`
	Year          int             `json:"year" bson:"year"`
	PurchaseDate  time.Time       `json:"purchaseDate" bson:"purchaseDate"`
	WarrantyStart time.Time       `json:"warrantyStart" bson:"warrantyStart"`
	WarrantyEnd   time.Time       `json:"warrantyEnd" bson:"warrantyEnd"`
	Mileage       int             `json:"mileage" bson:"mileage"`
	MaxMileage    int             `json:"maxMileage" bson:"maxMileage"`
	Status        WarrantyStatus  `json:"status" bson:"status"`
	Customer      CustomerContact `json:"customer" bson:"customer"`
}

// Technician is a service-center technician.
type Technician struct {
	ID              string    `json:"id" bson:"_id"`
	Name            string    `json:"name" bson:"name"`
	Specialty       Specialty `json:"specialty" bson:"specialty"`
	YearsExperience int       `json:"yearsExperience" bson:"yearsExperience"`
	Workload        int       `json:"workload" bson:"workload"`
	Rating          float64   `json:"rating" bson:"rating"`
	Available       bool      `json:"available" bson:"available"`
}

// TechnicianAssignment is the staffing decision for a claim: one required
// main technician plus an ordered set of assistants. The main technician
// never appears among the assistants.
type TechnicianAssignment struct {
	MainTechnician      *Technician  `json:"mainTechnician" bson:"mainTechnician"`
	Assistants          []Technician `json:"assistants" bson:"assistants,omitempty"`
	EstimatedTime       string       `json:"estimatedTime" bson:"estimatedTime"`
	SpecialInstructions string       `json:"specialInstructions" bson:"specialInstructions,omitempty"`
}

// Attachment is a file handle collected during the documentation step.
// Only metadata is kept; blob storage is external.
type Attachment struct {
	Name        string `json:"name" bson:"name"`
	Size        int64  `json:"size" bson:"size"`
	ContentType string `json:"contentType" bson:"contentType"`
	StorageKey  string `json:"storageKey" bson:"storageKey"`
}

// Claim is a finalized warranty claim as persisted in the claims collection.
type Claim struct {
	ID               string               `json:"id" bson:"_id"`
	VIN              string               `json:"vin" bson:"vin"`
	Vehicle          VehicleWarrantyInfo  `json:"vehicle" bson:"vehicle"`
	IssueCategory    IssueCategory        `json:"issueCategory" bson:"issueCategory"`
	IssueDescription string               `json:"issueDescription" bson:"issueDescription"`
	Assignment       TechnicianAssignment `json:"assignment" bson:"assignment"`
	Attachments      []Attachment         `json:"attachments" bson:"attachments,omitempty"`
	Notes            string               `json:"notes" bson:"notes"`
	Status           string               `json:"status" bson:"status"`
	SubmittedBy      string               `json:"submittedBy" bson:"submittedBy"`
	SubmittedAt      time.Time            `json:"submittedAt" bson:"submittedAt"`
}

// OutboxEvent represents an event in the outbox collection
type OutboxEvent struct {
	ID          string     `bson:"_id" json:"id"`
	EventType   string     `bson:"event_type" json:"event_type"`
	Payload     []byte     `bson:"payload" json:"payload"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	Processed   bool       `bson:"processed" json:"processed"`
	ProcessedAt *time.Time `bson:"processed_at" json:"processed_at,omitempty"`
}
