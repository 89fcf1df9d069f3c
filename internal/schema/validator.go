// Package schema declares function-call contracts and validates the
// arguments a model returns for them.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Type is a JSON Schema primitive type.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
)

// Property is one named parameter of a function.
type Property struct {
	Name        string
	Type        Type
	Description string
}

// Function is a schema-constrained function the model is forced to call.
type Function struct {
	Name        string
	Description string
	Properties  []Property
	Required    []string
}

// Parameters returns the JSON Schema object describing the function arguments.
func (f Function) Parameters() map[string]any {
	props := make(map[string]any, len(f.Properties))
	for _, p := range f.Properties {
		props[p.Name] = map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
	}
	required := f.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Errors returned by Validate.
var (
	ErrEmptyArguments     = errors.New("empty function arguments")
	ErrMalformedArguments = errors.New("malformed function arguments")
	ErrMissingField       = errors.New("required field missing")
	ErrTypeMismatch       = errors.New("field has wrong type")
)

// Arguments are validated function-call arguments.
// A key mapped to nil means the model explicitly reported no value.
type Arguments map[string]any

// Int returns the integer value of name, or nil.
func (a Arguments) Int(name string) *int {
	n, ok := a[name].(json.Number)
	if !ok {
		return nil
	}
	i, ok := toInt(n)
	if !ok {
		return nil
	}
	return &i
}

// String returns the string value of name, or nil.
func (a Arguments) String(name string) *string {
	s, ok := a[name].(string)
	if !ok {
		return nil
	}
	return &s
}

// Validator checks raw argument text against a Function declaration.
// Compiled schemas are cached by function name.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func New() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate parses raw as a JSON object and checks it against the
// function's parameter schema. Explicit nulls are accepted for every
// declared property.
func (v *Validator) Validate(fn Function, raw []byte) (Arguments, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyArguments
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArguments, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedArguments)
	}
	if args == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedArguments)
	}

	sch, err := v.schema(fn)
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(map[string]any(args)); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("%s: %w: %v", fn.Name, violation(ve), ve)
		}
		return nil, fmt.Errorf("%s: %w: %v", fn.Name, ErrTypeMismatch, err)
	}

	for _, p := range fn.Properties {
		if p.Type != TypeInteger {
			continue
		}
		n, ok := args[p.Name].(json.Number)
		if !ok {
			continue
		}
		if _, ok := toInt(n); !ok {
			return nil, fmt.Errorf("%s: %w: %q out of integer range: %s", fn.Name, ErrTypeMismatch, p.Name, n)
		}
	}

	log.Debug().
		Str("function", fn.Name).
		RawJSON("arguments", raw).
		Msg("Function arguments validated")

	return Arguments(args), nil
}

func (v *Validator) schema(fn Function) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[fn.Name]; ok {
		return sch, nil
	}

	doc, err := json.Marshal(fn.nullableParameters())
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", fn.Name, err)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse %s schema: %w", fn.Name, err)
	}

	url := fn.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", fn.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", fn.Name, err)
	}

	v.compiled[fn.Name] = sch
	return sch, nil
}

// nullableParameters is Parameters with every property type widened to
// also accept null.
func (f Function) nullableParameters() map[string]any {
	params := f.Parameters()
	for _, p := range f.Properties {
		params["properties"].(map[string]any)[p.Name] = map[string]any{
			"type": []string{string(p.Type), "null"},
		}
	}
	return params
}

// violation reports ErrMissingField when any failing keyword is "required"
// and ErrTypeMismatch otherwise.
func violation(ve *jsonschema.ValidationError) error {
	if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 && kw[0] == "required" {
		return ErrMissingField
	}
	for _, cause := range ve.Causes {
		if err := violation(cause); err == ErrMissingField {
			return err
		}
	}
	return ErrTypeMismatch
}

// toInt converts n to int, rejecting fractions and values outside the
// int64 range.
func toInt(n json.Number) (int, bool) {
	if i, err := n.Int64(); err == nil {
		return int(i), true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int(f), true
}
