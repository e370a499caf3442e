package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain network", errors.New("connection reset by peer"), KindTransient},
		{"context", context.DeadlineExceeded, KindTransient},
		{"structured restricted", &RPCError{Code: 400, Type: "CHAT_FORWARDS_RESTRICTED"}, KindPermanent},
		{"structured flood", &RPCError{Code: 420, Type: "FLOOD_WAIT"}, KindTransient},
		{"wrapped structured", fmt.Errorf("forward: %w", &RPCError{Code: 403, Type: "CHAT_WRITE_FORBIDDEN"}), KindPermanent},
		{"text marker", errors.New("rpc error code 400: PEER_ID_INVALID"), KindPermanent},
		{"lowercase text", errors.New("channel_private"), KindPermanent},
		{"banned", errors.New("USER_BANNED_IN_CHANNEL"), KindPermanent},
		{"unknown peer", fmt.Errorf("%w: -100123", ErrUnknownPeer), KindPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsPermanentText(t *testing.T) {
	if IsPermanentText("") {
		t.Fatalf("empty text must not be permanent")
	}
	if !IsPermanentText("forward failed: FORWARDS_RESTRICTED") {
		t.Fatalf("expected FORWARDS_RESTRICTED to be permanent")
	}
	if IsPermanentText("timeout") {
		t.Fatalf("timeout must not be permanent")
	}
}

func TestPermanentMarkersCopy(t *testing.T) {
	m := PermanentMarkers()
	m[0] = "changed"
	if PermanentMarkers()[0] == "changed" {
		t.Fatalf("PermanentMarkers must return a copy")
	}
}
