// Package extract pulls patient age and recommended treatment out of a
// free-text medical transcription using forced function calling.
package extract

import (
	"context"
	"fmt"

	"transcription-icd-coder/internal/models"
	"transcription-icd-coder/internal/schema"
	"transcription-icd-coder/internal/service/llm"
)

// FunctionName is the function the model is forced to call.
const FunctionName = "extract_patient_data"

const systemPrompt = "You are a healthcare professional extracting patient data. " +
	"Only report facts stated in the transcription. Do not speculate. " +
	"If the age or the recommended treatment is not stated, use null."

// Function declares the extraction contract.
var Function = schema.Function{
	Name:        FunctionName,
	Description: "Extract patient age and recommended treatment or procedure from a medical transcription",
	Properties: []schema.Property{
		{Name: "age", Type: schema.TypeInteger, Description: "The age of the patient in years"},
		{Name: "recommended_treatment", Type: schema.TypeString, Description: "The recommended treatment or procedure mentioned in the transcription"},
	},
	Required: []string{"age", "recommended_treatment"},
}

// Error is returned for any failure while extracting a record.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor calls the completion service with the extraction contract.
type Extractor struct {
	client    llm.Client
	validator *schema.Validator
}

// New creates an Extractor using client.
func New(client llm.Client) *Extractor {
	return &Extractor{
		client:    client,
		validator: schema.New(),
	}
}

// Extract returns the age and recommended treatment stated in transcription.
// medicalSpecialty is carried through unchanged.
func (e *Extractor) Extract(ctx context.Context, transcription, medicalSpecialty string) (*models.PatientExtraction, error) {
	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: "Extract the patient's age and recommended treatment from this transcription:\n\n" + transcription},
		},
		Function: Function,
	}

	args, err := llm.Invoke(ctx, e.client, e.validator, req)
	if err != nil {
		return nil, &Error{Err: err}
	}

	return &models.PatientExtraction{
		Age:                  args.Int("age"),
		RecommendedTreatment: args.String("recommended_treatment"),
		MedicalSpecialty:     medicalSpecialty,
	}, nil
}
