package patient

import (
	"context"
	"fmt"
)

type sampleRecord struct {
	recordType, content string
}

type samplePatient struct {
	identity Identity
	records  []sampleRecord
}

var samplePatients = []samplePatient{
	{
		identity: Identity{Name: "John Smith", SSN: "123-45-6789", DOB: "1985-03-15"},
		records: []sampleRecord{
			{TypeMedicalHistory, "Patient has a history of hypertension and diabetes. Currently on Metformin 500mg twice daily."},
			{TypePreviousVisit, "Last visit on 2024-01-10: Blood pressure 140/90, HbA1c 7.2%. Recommended diet modification."},
			{TypeAllergies, "Allergic to Penicillin - causes rash and swelling."},
		},
	},
	{
		identity: Identity{Name: "Mary Johnson", SSN: "987-65-4321", DOB: "1990-07-22"},
		records: []sampleRecord{
			{TypeMedicalHistory, "Patient has asthma since childhood. Uses Albuterol inhaler as needed."},
			{TypePreviousVisit, "Last visit on 2024-01-05: Respiratory function normal, no acute symptoms."},
		},
	},
}

// Seed loads the demonstration patients and their records. Running it again
// adds nothing new. It returns the seeded patient ids.
func Seed(ctx context.Context, s *Store) ([]string, error) {
	ids := make([]string, 0, len(samplePatients))
	for _, p := range samplePatients {
		id, err := s.AddPatient(ctx, p.identity)
		if err != nil {
			return nil, fmt.Errorf("seeding patient: %w", err)
		}
		for _, r := range p.records {
			if _, _, err := s.AddRecord(ctx, id, r.recordType, r.content, map[string]string{"source": "seed"}); err != nil {
				return nil, fmt.Errorf("seeding record for %s: %w", id, err)
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}
