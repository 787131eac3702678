package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/ecomter/estarter/pkg/apiproto"
)

// callAPI dials socketPath and issues a single api_call request,
// talking the exact same JSON-RPC bridge hosted apps use.
func callAPI(ctx context.Context, socketPath string, command apiproto.Command, data any) (apiproto.Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return apiproto.Response{}, fmt.Errorf("connecting to estarterd at %s: %w", socketPath, err)
	}
	defer conn.Close()

	var raw json.RawMessage
	if data != nil {
		raw, err = json.Marshal(data)
		if err != nil {
			return apiproto.Response{}, fmt.Errorf("encoding request: %w", err)
		}
	}

	noInbound := jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
		return nil, fmt.Errorf("estarterctl does not accept inbound calls")
	})
	rpcConn := jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{}), noInbound)
	defer rpcConn.Close()

	var resp apiproto.Response
	params := struct {
		Command apiproto.Command `json:"command"`
		Data    json.RawMessage  `json:"data,omitempty"`
	}{Command: command, Data: raw}

	if err := rpcConn.Call(ctx, "api_call", params, &resp); err != nil {
		return apiproto.Response{}, fmt.Errorf("api_call: %w", err)
	}
	return resp, nil
}
