package patient

// Record categories shown to clinicians.
const (
	CategoryHistory    = "history"
	CategoryVisit      = "visit"
	CategoryAllergy    = "allergy"
	CategoryMedication = "medication"
	CategoryLab        = "lab"
	CategoryDiagnosis  = "diagnosis"
	CategoryOther      = "other"
)

// Record types used by the sample data and clinical intake forms.
const (
	TypeMedicalHistory = "Medical History"
	TypePreviousVisit  = "Previous Visit"
	TypeAllergies      = "Allergies"
	TypeMedications    = "Medications"
	TypeLabResults     = "Lab Results"
	TypeDiagnosis      = "Diagnosis"
)

var recordCategories = map[string]string{
	TypeMedicalHistory: CategoryHistory,
	TypePreviousVisit:  CategoryVisit,
	TypeAllergies:      CategoryAllergy,
	TypeMedications:    CategoryMedication,
	TypeLabResults:     CategoryLab,
	TypeDiagnosis:      CategoryDiagnosis,
}

// CategorizeRecord maps a record type to its display category.
func CategorizeRecord(recordType string) string {
	if c, ok := recordCategories[recordType]; ok {
		return c
	}
	return CategoryOther
}
