package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/warmtransfer/pkg/adapters/openai"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-3.5-turbo",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {"role": "assistant", "content": "  Caller needs a refund for order 42.  "}
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 9, "total_tokens": 19}
}`

func TestGenerator_Generate(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	gen, err := openai.New(openai.Config{APIKey: "sk-test", Model: "gpt-3.5-turbo", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "system", "user", 150, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "Caller needs a refund for order 42.", out)

	assert.Equal(t, "gpt-3.5-turbo", req["model"])
	assert.EqualValues(t, 150, req["max_tokens"])
	assert.InDelta(t, 0.7, req["temperature"], 1e-9)
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestGenerator_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	gen, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "s", "u", 10, 0)
	assert.ErrorIs(t, err, domain.ErrGateway)
}

func TestGenerator_Deadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gen, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gen.Generate(ctx, "s", "u", 10, 0)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
