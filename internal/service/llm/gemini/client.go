// Package gemini provides a Google Gemini adapter using the genai SDK.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"transcription-icd-coder/internal/schema"
	"transcription-icd-coder/internal/service/llm"
)

const defaultModel = "gemini-2.0-flash"

// Config holds Gemini client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client implements llm.Client with function calling in ANY mode.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
}

// New creates a new Gemini client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
	}, nil
}

func (c *Client) Name() string  { return "gemini" }
func (c *Client) Model() string { return c.model }

// Call generates content with a single function declaration the model must call.
func (c *Client) Call(ctx context.Context, req llm.Request) (*llm.FunctionCall, error) {
	system, contents := splitMessages(req.Messages)

	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(c.temperature),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{declaration(req.Function)},
		}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{req.Function.Name},
			},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	return functionCall(resp)
}

// splitMessages moves system messages into the system instruction.
func splitMessages(msgs []llm.Message) (*genai.Content, []*genai.Content) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
	}
	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

func declaration(fn schema.Function) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(fn.Properties))
	for _, p := range fn.Properties {
		props[p.Name] = &genai.Schema{
			Type:        schemaType(p.Type),
			Description: p.Description,
		}
	}
	return &genai.FunctionDeclaration{
		Name:        fn.Name,
		Description: fn.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   fn.Required,
		},
	}
}

func schemaType(t schema.Type) genai.Type {
	switch t {
	case schema.TypeInteger:
		return genai.TypeInteger
	default:
		return genai.TypeString
	}
}

func functionCall(resp *genai.GenerateContentResponse) (*llm.FunctionCall, error) {
	if resp == nil {
		return nil, llm.ErrNoFunctionCall
	}
	for _, fc := range resp.FunctionCalls() {
		if fc == nil || fc.Name == "" {
			continue
		}
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode gemini function args: %w", err)
		}
		return &llm.FunctionCall{Name: fc.Name, Arguments: data}, nil
	}
	return nil, llm.ErrNoFunctionCall
}
