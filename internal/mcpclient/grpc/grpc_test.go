package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpclib "google.golang.org/grpc"

	"github.com/toolrun-ai/toolrund/internal/mcpclient"
)

// handlerFunc lets each test supply its own RPC behavior without a
// protoc-generated service — grpc.ServiceDesc only needs a method name
// and a handler, so this wires the registered json codec end-to-end.
type handlerFunc func(ctx context.Context, req *callRequest) (*callResponse, error)

func newTestServer(t *testing.T, h handlerFunc) (addr string, stop func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	desc := grpclib.ServiceDesc{
		ServiceName: "mcp.ToolExecutor",
		Methods: []grpclib.MethodDesc{
			{
				MethodName: "Call",
				Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpclib.UnaryServerInterceptor) (interface{}, error) {
					req := new(callRequest)
					if err := dec(req); err != nil {
						return nil, err
					}
					return h(ctx, req)
				},
			},
		},
	}

	server := grpclib.NewServer()
	server.RegisterService(&desc, nil)

	go func() { _ = server.Serve(lis) }()
	return lis.Addr().String(), server.Stop
}

func TestCall_SuccessReturnsPayload(t *testing.T) {
	addr, stop := newTestServer(t, func(ctx context.Context, req *callRequest) (*callResponse, error) {
		assert.Equal(t, "search_tool", req.ToolID)
		assert.Equal(t, "query", req.Action)
		return &callResponse{Success: true, Payload: map[string]interface{}{"hits": 3}}, nil
	})
	defer stop()

	client, err := New(addr, TLSConfig{})
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Call(context.Background(), "search_tool", "query", map[string]interface{}{"q": "x"}, time.Now().Add(5*time.Second))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCall_WireFailureBecomesCallError(t *testing.T) {
	addr, stop := newTestServer(t, func(ctx context.Context, req *callRequest) (*callResponse, error) {
		return &callResponse{Success: false, Error: &wireError{Message: "overloaded", Code: "rate_limited"}}, nil
	})
	defer stop()

	client, err := New(addr, TLSConfig{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Call(context.Background(), "search_tool", "query", nil, time.Now().Add(5*time.Second))
	require.Error(t, err)
	var callErr *mcpclient.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "rate_limited", callErr.Code)
}

func TestCall_DeadlineExceededSurfacesAsError(t *testing.T) {
	addr, stop := newTestServer(t, func(ctx context.Context, req *callRequest) (*callResponse, error) {
		time.Sleep(100 * time.Millisecond)
		return &callResponse{Success: true}, nil
	})
	defer stop()

	client, err := New(addr, TLSConfig{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Call(context.Background(), "search_tool", "query", nil, time.Now().Add(10*time.Millisecond))
	require.Error(t, err)
}
