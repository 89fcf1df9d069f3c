// Package llm defines the interface for completion services that support
// forced function calling (OpenAI, Gemini, etc.).
package llm

import (
	"context"
	"errors"
	"fmt"

	"transcription-icd-coder/internal/schema"
)

// Role tags a message in the conversation.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one role-tagged prompt message.
type Message struct {
	Role    Role
	Content string
}

// Request asks the model to call exactly one declared function.
type Request struct {
	Messages []Message
	Function schema.Function
}

// FunctionCall is the structured call the model produced.
type FunctionCall struct {
	Name      string
	Arguments []byte // JSON object text
}

// Errors shared by all providers.
var (
	ErrNoFunctionCall     = errors.New("response contained no function call")
	ErrUnexpectedFunction = errors.New("model called an undeclared function")
)

// Client defines the interface for completion providers.
type Client interface {
	// Call sends the request and forces the model to call req.Function.
	Call(ctx context.Context, req Request) (*FunctionCall, error)

	// Name is the provider name used in logs and metrics.
	Name() string

	// Model is the model identifier requests are sent to.
	Model() string
}

// Invoke calls the declared function and validates the returned arguments
// against its schema.
func Invoke(ctx context.Context, c Client, v *schema.Validator, req Request) (schema.Arguments, error) {
	call, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, ErrNoFunctionCall
	}
	if call.Name != req.Function.Name {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrUnexpectedFunction, call.Name, req.Function.Name)
	}
	return v.Validate(req.Function, call.Arguments)
}
