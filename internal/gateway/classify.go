package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the delivery error class.
type Kind int

const (
	KindNone Kind = iota
	KindTransient
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// permanentMarkers are RPC error types that will not heal by retrying.
// Such targets are shown as restricted but are never removed automatically.
var permanentMarkers = []string{
	"CHAT_FORWARDS_RESTRICTED",
	"FORWARDS_RESTRICTED",
	"PEER_ID_INVALID",
	"CHAT_WRITE_FORBIDDEN",
	"CHANNEL_PRIVATE",
	"USER_BANNED_IN_CHANNEL",
	"CHAT_ADMIN_REQUIRED",
	"CHAT_RESTRICTED",
	"CHAT_SEND_PLAIN_FORBIDDEN",
	"CHAT_SEND_MEDIA_FORBIDDEN",
}

// PermanentMarkers returns a copy of the allow-list.
func PermanentMarkers() []string { return append([]string(nil), permanentMarkers...) }

// RPCError is a structured failure reported by the gateway implementation.
type RPCError struct {
	Code int
	Type string
	Err  error
}

func (e *RPCError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rpc error %d %s: %v", e.Code, e.Type, e.Err)
	}
	return fmt.Sprintf("rpc error %d %s", e.Code, e.Type)
}

func (e *RPCError) Unwrap() error { return e.Err }

// Classify decides whether err is worth retrying on the next cycle.
// Unknown peers and structured RPC errors are checked first, then the text allow-list.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrUnknownPeer) {
		return KindPermanent
	}
	var rpc *RPCError
	if errors.As(err, &rpc) && IsPermanentText(rpc.Type) {
		return KindPermanent
	}
	if IsPermanentText(err.Error()) {
		return KindPermanent
	}
	return KindTransient
}

// IsPermanentText reports whether s mentions one of the permanent markers.
// Stats use it on stored lastError strings.
func IsPermanentText(s string) bool {
	if s == "" {
		return false
	}
	up := strings.ToUpper(s)
	for _, m := range permanentMarkers {
		if strings.Contains(up, m) {
			return true
		}
	}
	return false
}
