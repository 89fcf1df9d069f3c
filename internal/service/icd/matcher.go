// Package icd maps a treatment or procedure to an ICD-10 code.
package icd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"transcription-icd-coder/internal/models"
	"transcription-icd-coder/internal/schema"
	"transcription-icd-coder/internal/service/llm"
)

// FunctionName is the function the model is forced to call.
const FunctionName = "match_icd_code"

const systemPrompt = "You are a medical coding assistant. " +
	"Match the given treatment or procedure to the most appropriate ICD-10 code."

// ErrEmptyTreatment is returned when there is nothing to match.
var ErrEmptyTreatment = errors.New("treatment is empty")

// Function declares the code matching contract.
var Function = schema.Function{
	Name:        FunctionName,
	Description: "Match the recommended treatment or procedure with the corresponding ICD-10 code",
	Properties: []schema.Property{
		{Name: "icd_code", Type: schema.TypeString, Description: "The ICD-10 code corresponding to the recommended treatment or procedure"},
		{Name: "icd_description", Type: schema.TypeString, Description: "The description of the ICD-10 code"},
	},
	Required: []string{"icd_code", "icd_description"},
}

// Error is returned for any failure while matching a treatment.
type Error struct {
	Treatment string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code matching failed for %q: %v", e.Treatment, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Matcher calls the completion service with the code matching contract.
type Matcher struct {
	client    llm.Client
	validator *schema.Validator
}

// New creates a Matcher using client.
func New(client llm.Client) *Matcher {
	return &Matcher{
		client:    client,
		validator: schema.New(),
	}
}

// Match returns the code and description for treatment.
func (m *Matcher) Match(ctx context.Context, treatment string) (*models.CodeMatch, error) {
	if strings.TrimSpace(treatment) == "" {
		return nil, &Error{Treatment: treatment, Err: ErrEmptyTreatment}
	}

	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: "Match this treatment or procedure to an ICD-10 code: " + treatment},
		},
		Function: Function,
	}

	args, err := llm.Invoke(ctx, m.client, m.validator, req)
	if err != nil {
		return nil, &Error{Treatment: treatment, Err: err}
	}

	return &models.CodeMatch{
		ICDCode:        args.String("icd_code"),
		ICDDescription: args.String("icd_description"),
	}, nil
}
