package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrun-ai/toolrund/internal/mcpclient"
)

func TestCall_SuccessReturnsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/search_tool/query", r.URL.Path)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "go routines", body["q"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"payload": map[string]interface{}{"results": []string{"a", "b"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Call(context.Background(), "search_tool", "query", map[string]interface{}{"q": "go routines"}, time.Now().Add(5*time.Second))

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotNil(t, result.Payload)
}

func TestCall_WireFailureBecomesCallError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   map[string]string{"message": "tool is rate-limited", "code": "rate_limited"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Call(context.Background(), "search_tool", "query", nil, time.Now().Add(5*time.Second))

	require.Error(t, err)
	var callErr *mcpclient.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "rate_limited", callErr.Code)
}

func TestCall_ServerErrorSurfacesAsCallError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Call(context.Background(), "search_tool", "query", nil, time.Now().Add(5*time.Second))

	require.Error(t, err)
	var callErr *mcpclient.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "server_error", callErr.Code)
}

func TestCall_DeadlineExceededSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Call(context.Background(), "search_tool", "query", nil, time.Now().Add(10*time.Millisecond))

	require.Error(t, err)
}
