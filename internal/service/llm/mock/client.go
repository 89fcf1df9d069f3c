// Package mock provides a mock completion client for running the pipeline
// without credentials. Responses are deterministic so repeated runs over the
// same input produce the same output.
package mock

import (
	"context"
	"sync"

	"transcription-icd-coder/internal/service/llm"
)

// Response is one canned reply to a function call.
type Response struct {
	Arguments string // JSON argument text
	Name      string // overrides the called function name when set
	Missing   bool   // reply without any function call
	Err       error  // transport failure
}

// DefaultResponses are cycled per function when nothing is scripted.
var DefaultResponses = map[string][]Response{
	"extract_patient_data": {
		{Arguments: `{"age": 45, "recommended_treatment": "appendectomy"}`},
		{Arguments: `{"age": 62, "recommended_treatment": "coronary artery bypass graft"}`},
		{Arguments: `{"age": 30, "recommended_treatment": "physical therapy"}`},
		{Arguments: `{"age": null, "recommended_treatment": null}`},
	},
	"match_icd_code": {
		{Arguments: `{"icd_code": "0DTJ0ZZ", "icd_description": "Resection of Appendix, Open Approach"}`},
		{Arguments: `{"icd_code": "021009W", "icd_description": "Bypass Coronary Artery, One Artery from Aorta"}`},
		{Arguments: `{"icd_code": "Z51.89", "icd_description": "Encounter for other specified aftercare"}`},
	},
}

// Call records one request the client received.
type Call struct {
	Function string
	Messages []llm.Message
}

// Client implements llm.Client with scripted and default responses.
type Client struct {
	mu       sync.Mutex
	scripted map[string][]Response
	counters map[string]int
	calls    []Call
}

// New creates a new mock client.
func New() *Client {
	return &Client{
		scripted: make(map[string][]Response),
		counters: make(map[string]int),
	}
}

func (c *Client) Name() string  { return "mock" }
func (c *Client) Model() string { return "mock" }

// Script queues responses for a function. Queued responses are consumed in
// order before falling back to DefaultResponses.
func (c *Client) Script(function string, responses ...Response) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripted[function] = append(c.scripted[function], responses...)
	return c
}

// Call returns the next response for the requested function.
func (c *Client) Call(ctx context.Context, req llm.Request) (*llm.FunctionCall, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	name := req.Function.Name
	c.calls = append(c.calls, Call{Function: name, Messages: req.Messages})
	resp, ok := c.next(name)
	c.mu.Unlock()

	if !ok {
		return nil, llm.ErrNoFunctionCall
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	if resp.Missing {
		return nil, llm.ErrNoFunctionCall
	}
	if resp.Name != "" {
		name = resp.Name
	}
	return &llm.FunctionCall{Name: name, Arguments: []byte(resp.Arguments)}, nil
}

// next must be called with c.mu held.
func (c *Client) next(function string) (Response, bool) {
	if queue := c.scripted[function]; len(queue) > 0 {
		c.scripted[function] = queue[1:]
		return queue[0], true
	}
	defaults := DefaultResponses[function]
	if len(defaults) == 0 {
		return Response{}, false
	}
	idx := c.counters[function] % len(defaults)
	c.counters[function]++
	return defaults[idx], true
}

// Calls returns a copy of every request received so far.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many times function was called.
func (c *Client) CallCount(function string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Function == function {
			n++
		}
	}
	return n
}
