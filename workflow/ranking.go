package workflow

import (
	"sort"

	"warranty-service/domain"
)

// categorySpecialties maps each issue category to the technician
// specialties considered a domain fit. General Diagnostics backs every
// category so a claim can always be staffed.
var categorySpecialties = map[domain.IssueCategory][]domain.Specialty{
	domain.IssueBatteryPerformance: {domain.SpecialtyBattery, domain.SpecialtyDiagnostics},
	domain.IssueMotorController:    {domain.SpecialtyDrivetrain, domain.SpecialtyDiagnostics},
	domain.IssueChargingSystem:     {domain.SpecialtyCharging, domain.SpecialtyBattery, domain.SpecialtyDiagnostics},
	domain.IssueElectronics:        {domain.SpecialtyElectronics, domain.SpecialtyDiagnostics},
	domain.IssueSoftware:           {domain.SpecialtySoftware, domain.SpecialtyElectronics, domain.SpecialtyDiagnostics},
	domain.IssueOther:              {domain.SpecialtyDiagnostics},
}

// MatchesSpecialty reports whether a specialty is in the category's mapped
// specialty set.
func MatchesSpecialty(category domain.IssueCategory, specialty domain.Specialty) bool {
	for _, s := range categorySpecialties[category] {
		if s == specialty {
			return true
		}
	}
	return false
}

// RecommendTechnicians ranks the roster for an issue category the way a
// dispatcher would triage: domain fit first, then quality, then headroom.
//
//  1. Unavailable technicians are dropped.
//  2. Specialty-matching technicians sort before non-matching ones.
//  3. Within each partition: rating descending, then workload ascending
//     (fewer active jobs wins), then years of experience descending.
//
// The sort is stable, so equally-ranked technicians keep roster order.
func RecommendTechnicians(category domain.IssueCategory, roster []domain.Technician) []domain.Technician {
	ranked := make([]domain.Technician, 0, len(roster))
	for _, t := range roster {
		if t.Available {
			ranked = append(ranked, t)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		am, bm := MatchesSpecialty(category, a.Specialty), MatchesSpecialty(category, b.Specialty)
		if am != bm {
			return am
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.Workload != b.Workload {
			return a.Workload < b.Workload
		}
		return a.YearsExperience > b.YearsExperience
	})
	return ranked
}
