// Package models defines the records that flow through the coding pipeline.
package models

import "strings"

// TranscriptionRecord is one input row from the transcription table.
type TranscriptionRecord struct {
	Transcription    string `json:"transcription"`
	MedicalSpecialty string `json:"medical_specialty"`
}

// PatientExtraction holds the facts pulled out of a single transcription.
// Age and RecommendedTreatment are nil when the model reported no value.
type PatientExtraction struct {
	Age                  *int    `json:"age"`
	RecommendedTreatment *string `json:"recommended_treatment"`
	MedicalSpecialty     string  `json:"medical_specialty"`
}

// HasTreatment reports whether a non-blank treatment was extracted.
func (p *PatientExtraction) HasTreatment() bool {
	return p != nil && p.RecommendedTreatment != nil && strings.TrimSpace(*p.RecommendedTreatment) != ""
}

// CodeMatch is the ICD-10 code the model matched to a treatment.
type CodeMatch struct {
	ICDCode        *string `json:"icd_code"`
	ICDDescription *string `json:"icd_description"`
}

// OutputRow is the flattened result for one input record.
type OutputRow struct {
	Age                  *int    `json:"age" parquet:"age,optional"`
	MedicalSpecialty     string  `json:"medical_specialty" parquet:"medical_specialty"`
	RecommendedTreatment *string `json:"recommended_treatment" parquet:"recommended_treatment,optional"`
	ICDCode              *string `json:"icd_code" parquet:"icd_code,optional"`
	ICDDescription       *string `json:"icd_description" parquet:"icd_description,optional"`
}

// OutputColumns is the column order of the result table.
var OutputColumns = []string{
	"age",
	"medical_specialty",
	"recommended_treatment",
	"icd_code",
	"icd_description",
}

// EmptyRow returns the null-filled row emitted when a record fails.
func EmptyRow(medicalSpecialty string) OutputRow {
	return OutputRow{MedicalSpecialty: medicalSpecialty}
}

// NewOutputRow merges an extraction and an optional code match.
func NewOutputRow(ext *PatientExtraction, match *CodeMatch) OutputRow {
	row := OutputRow{
		Age:                  ext.Age,
		MedicalSpecialty:     ext.MedicalSpecialty,
		RecommendedTreatment: ext.RecommendedTreatment,
	}
	if match != nil {
		row.ICDCode = match.ICDCode
		row.ICDDescription = match.ICDDescription
	}
	return row
}
