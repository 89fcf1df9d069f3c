package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcription-icd-coder/internal/schema"
	"transcription-icd-coder/internal/service/llm"
)

var testFn = schema.Function{
	Name:        "match_icd_code",
	Description: "Match a treatment to an ICD-10 code",
	Properties: []schema.Property{
		{Name: "icd_code", Type: schema.TypeString},
		{Name: "icd_description", Type: schema.TypeString},
	},
	Required: []string{"icd_code", "icd_description"},
}

func testRequest() llm.Request {
	return llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a medical coding assistant."},
			{Role: llm.RoleUser, Content: "appendectomy"},
		},
		Function: testFn,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-test", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultModel, c.Model())
	assert.Equal(t, "openai", c.Name())
}

func TestCall_SendsForcedToolChoice(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"match_icd_code","arguments":"{\"icd_code\":\"0DTJ0ZZ\",\"icd_description\":\"Resection of Appendix\"}"}}]},"finish_reason":"stop"}]}`))
	})

	call, err := c.Call(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "match_icd_code", call.Name)
	assert.JSONEq(t, `{"icd_code":"0DTJ0ZZ","icd_description":"Resection of Appendix"}`, string(call.Arguments))

	assert.Equal(t, "gpt-test", got["model"])
	choice := got["tool_choice"].(map[string]any)
	assert.Equal(t, "function", choice["type"])
	assert.Equal(t, "match_icd_code", choice["function"].(map[string]any)["name"])

	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	params := tools[0].(map[string]any)["function"].(map[string]any)["parameters"].(map[string]any)
	assert.ElementsMatch(t, []any{"icd_code", "icd_description"}, params["required"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestCall_NoToolCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"I think it is K35.80"}}]}`))
	})

	_, err := c.Call(context.Background(), testRequest())
	assert.True(t, errors.Is(err, llm.ErrNoFunctionCall), "got %v", err)
}

func TestCall_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Call(context.Background(), testRequest())
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
}

func TestCall_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	})

	_, err := c.Call(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCall_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := c.Call(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestCall_APIErrorField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	})

	_, err := c.Call(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestCall_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, testRequest())
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "a...", truncate("aéb", 2))
	assert.Equal(t, "...", truncate("日本", 1))
}
