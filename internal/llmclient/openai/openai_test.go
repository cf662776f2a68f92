package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/toolrun-ai/toolrund/internal/llmclient"
)

func TestNew_RejectsMissingAPIKey(t *testing.T) {
	_, err := New(Config{Model: "gpt-4o"})
	require.Error(t, err)
}

func TestNew_RejectsMissingModel(t *testing.T) {
	_, err := New(Config{APIKey: "sk-test"})
	require.Error(t, err)
}

func TestGenerate_SendsMessagesAndReturnsContent(t *testing.T) {
	var gotReq openailib.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		resp := openailib.ChatCompletionResponse{
			Choices: []openailib.ChatCompletionChoice{
				{Message: openailib.ChatCompletionMessage{Role: "assistant", Content: `{"tool_id":"search_tool"}`}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "sk-test", Model: "gpt-4o", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: "you are a corrector"},
		{Role: llmclient.RoleUser, Content: "fix this call"},
	}, time.Now().Add(5*time.Second))

	require.NoError(t, err)
	assert.Equal(t, `{"tool_id":"search_tool"}`, out)
	assert.Equal(t, "gpt-4o", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
}

func TestGenerate_ReturnsErrorWhenDeadlineAlreadyPassed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "sk-test", Model: "gpt-4o", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), []llmclient.Message{
		{Role: llmclient.RoleUser, Content: "hi"},
	}, time.Now().Add(-time.Second))

	require.Error(t, err)
}

func TestGenerate_RejectsEmptyMessages(t *testing.T) {
	client, err := New(Config{APIKey: "sk-test", Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), nil, time.Now().Add(time.Second))
	require.Error(t, err)
}
