package mtproto

import (
	"github.com/gotd/td/tgerr"

	"relaybot/internal/gateway"
)

// wrapRPC turns a Telegram RPC failure into gateway.RPCError so callers can
// classify it without importing gotd.
func wrapRPC(err error) error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return &gateway.RPCError{Code: rpcErr.Code, Type: rpcErr.Type, Err: err}
	}
	return err
}
