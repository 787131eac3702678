package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/ecomter/estarter/pkg/apiproto"
	"github.com/ecomter/estarter/pkg/kernel"
	"github.com/ecomter/estarter/pkg/log"
)

// serveAdmin accepts estarterctl connections on ln and dispatches each
// one's api_call requests through k.HandleAPI under adminAppID — the
// exact same entry point hosted apps reach through their own app host.
func serveAdmin(ctx context.Context, ln net.Listener, k *kernel.Kernel) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accepting estarterctl connection: %w", err)
			}
		}
		go serveAdminConn(conn, k)
	}
}

type adminAPICallParams struct {
	Command apiproto.Command `json:"command"`
	Data    json.RawMessage  `json:"data,omitempty"`
}

func serveAdminConn(conn net.Conn, k *kernel.Kernel) {
	handler := jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		if req.Method != "api_call" {
			return nil, fmt.Errorf("unknown method %q", req.Method)
		}
		var params adminAPICallParams
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &params); err != nil {
				return nil, fmt.Errorf("invalid api_call params: %w", err)
			}
		}
		return k.HandleAPI(adminAppID, apiproto.Request{Command: params.Command, Data: params.Data}), nil
	})

	rpcConn := jsonrpc2.NewConn(context.Background(), jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{}), handler)
	<-rpcConn.DisconnectNotify()
	log.Debugf("estarterd: estarterctl connection closed")
}
