package stdio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrun-ai/toolrund/internal/mcpclient"
)

func TestCall_NotConnectedReturnsCallError(t *testing.T) {
	c := New(Config{Command: "echo"})

	_, err := c.Call(context.Background(), "file_search", "search", nil, time.Now().Add(time.Second))

	require.Error(t, err)
	var callErr *mcpclient.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "not_connected", callErr.Code)
}

func TestClose_WhenNeverConnected_DoesNotError(t *testing.T) {
	c := New(Config{Command: "echo"})
	assert.NoError(t, c.Close())
}

func TestConnect_UnknownCommandFails(t *testing.T) {
	c := New(Config{Command: "/no/such/binary-toolrund-stdio-test"})
	err := c.Connect(context.Background())
	require.Error(t, err)
}
