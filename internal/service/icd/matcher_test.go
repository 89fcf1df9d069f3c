package icd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcription-icd-coder/internal/schema"
	"transcription-icd-coder/internal/service/llm"
	"transcription-icd-coder/internal/service/llm/mock"
)

func TestMatch_Scenario(t *testing.T) {
	client := mock.New().Script(FunctionName, mock.Response{Arguments: `{"icd_code": "0DTJ0ZZ", "icd_description": "Resection of Appendix"}`})

	got, err := New(client).Match(context.Background(), "appendectomy")
	require.NoError(t, err)
	require.NotNil(t, got.ICDCode)
	assert.Equal(t, "0DTJ0ZZ", *got.ICDCode)
	require.NotNil(t, got.ICDDescription)
	assert.Equal(t, "Resection of Appendix", *got.ICDDescription)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.Contains(calls[0].Messages[1].Content, "appendectomy"))
}

func TestMatch_EmptyTreatment(t *testing.T) {
	for _, treatment := range []string{"", "   ", "\t\n"} {
		client := mock.New()

		_, err := New(client).Match(context.Background(), treatment)

		var matchErr *Error
		require.True(t, errors.As(err, &matchErr))
		assert.ErrorIs(t, err, ErrEmptyTreatment)
		assert.Equal(t, 0, client.CallCount(FunctionName), "service must not be called")
	}
}

func TestMatch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		resp    mock.Response
		wantErr error
	}{
		{"no function call", mock.Response{Missing: true}, llm.ErrNoFunctionCall},
		{"wrong function", mock.Response{Name: "extract_patient_data", Arguments: `{}`}, llm.ErrUnexpectedFunction},
		{"missing description", mock.Response{Arguments: `{"icd_code": "A00"}`}, schema.ErrMissingField},
		{"numeric code", mock.Response{Arguments: `{"icd_code": 12, "icd_description": "x"}`}, schema.ErrTypeMismatch},
		{"empty arguments", mock.Response{Arguments: ``}, schema.ErrEmptyArguments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mock.New().Script(FunctionName, tt.resp)

			got, err := New(client).Match(context.Background(), "appendectomy")
			assert.Nil(t, got)

			var matchErr *Error
			require.True(t, errors.As(err, &matchErr))
			assert.Equal(t, "appendectomy", matchErr.Treatment)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
