package mtproto

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"relaybot/internal/gateway"
	"relaybot/pkg/logx"
)

func TestMarkedIDs(t *testing.T) {
	if got := markChannel(1234567890); got != -1001234567890 {
		t.Fatalf("markChannel = %d", got)
	}
	if got := markChat(4242); got != -4242 {
		t.Fatalf("markChat = %d", got)
	}
}

func TestChannelKind(t *testing.T) {
	cases := []struct {
		ch   tg.Channel
		want gateway.ChatKind
	}{
		{tg.Channel{Broadcast: true}, gateway.KindChannel},
		{tg.Channel{Megagroup: true}, gateway.KindGroup},
		{tg.Channel{Gigagroup: true}, gateway.KindGroup},
		{tg.Channel{}, gateway.KindOther},
	}
	for _, tc := range cases {
		if got := channelKind(&tc.ch); got != tc.want {
			t.Fatalf("channelKind(%+v) = %s, want %s", tc.ch, got, tc.want)
		}
	}
}

func TestMessageOf(t *testing.T) {
	if _, ok := messageOf(&tg.MessageService{ID: 1}); ok {
		t.Fatalf("service messages must be ignored")
	}

	m := &tg.Message{ID: 5, Message: "caption"}
	m.SetMedia(&tg.MessageMediaPhoto{Photo: &tg.Photo{ID: 10, AccessHash: 20, FileReference: []byte{1}}})
	got, ok := messageOf(m)
	if !ok || got.ID != 5 || got.Text != "caption" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Media == nil || got.Media.Kind != gateway.MediaPhoto || got.Media.ID != 10 || got.Media.AccessHash != 20 {
		t.Fatalf("unexpected media: %+v", got.Media)
	}
}

func TestNewestMessageSkipsServiceEntries(t *testing.T) {
	history := []tg.MessageClass{
		&tg.MessageService{ID: 9},
		&tg.MessageEmpty{ID: 8},
		&tg.Message{ID: 7, Message: "latest post"},
		&tg.Message{ID: 6, Message: "older"},
	}
	got := newestMessage(history)
	if got == nil || got.ID != 7 || got.Text != "latest post" {
		t.Fatalf("newestMessage = %+v, want id 7", got)
	}
	if newestMessage([]tg.MessageClass{&tg.MessageService{ID: 1}}) != nil {
		t.Fatalf("only service entries must yield nil")
	}
	if newestMessage(nil) != nil {
		t.Fatalf("empty history must yield nil")
	}
}

func TestMediaOfSkipsUnsupported(t *testing.T) {
	if mediaOf(&tg.MessageMediaGeo{}) != nil {
		t.Fatalf("geo media must not be copyable")
	}
	if mediaOf(&tg.MessageMediaPhoto{Photo: &tg.PhotoEmpty{ID: 1}}) != nil {
		t.Fatalf("empty photo must not be copyable")
	}
	doc := mediaOf(&tg.MessageMediaDocument{Document: &tg.Document{ID: 3, AccessHash: 4}})
	if doc == nil || doc.Kind != gateway.MediaDocument {
		t.Fatalf("document not recognised: %+v", doc)
	}
}

func TestInputMedia(t *testing.T) {
	in, err := inputMedia(gateway.MediaRef{Kind: gateway.MediaDocument, ID: 1, AccessHash: 2})
	if err != nil {
		t.Fatal(err)
	}
	d, ok := in.(*tg.InputMediaDocument)
	if !ok {
		t.Fatalf("unexpected input media %T", in)
	}
	if id, ok := d.ID.(*tg.InputDocument); !ok || id.ID != 1 || id.AccessHash != 2 {
		t.Fatalf("unexpected document id: %+v", d.ID)
	}
	if _, err := inputMedia(gateway.MediaRef{Kind: "sticker"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestWrapRPCClassifies(t *testing.T) {
	err := wrapRPC(tgerr.New(400, "CHAT_FORWARDS_RESTRICTED"))
	var rpc *gateway.RPCError
	if !errors.As(err, &rpc) || rpc.Code != 400 || rpc.Type != "CHAT_FORWARDS_RESTRICTED" {
		t.Fatalf("unexpected wrap: %#v", err)
	}
	if gateway.Classify(err) != gateway.KindPermanent {
		t.Fatalf("expected permanent")
	}
	if wrapRPC(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	plain := errors.New("dial tcp: timeout")
	if wrapRPC(plain) != plain {
		t.Fatalf("non-RPC errors pass through")
	}
}

func TestCallsBeforeRunAreNotReady(t *testing.T) {
	c, err := New(Config{APIID: 1, APIHash: "h", SessionPath: t.TempDir() + "/session.json"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListChats(context.Background()); !errors.Is(err, gateway.ErrNotReady) {
		t.Fatalf("ListChats = %v", err)
	}
	if err := c.SendText(context.Background(), -1, "x"); !errors.Is(err, gateway.ErrNotReady) {
		t.Fatalf("SendText = %v", err)
	}
}

func TestResolveSkipsRecentRescan(t *testing.T) {
	c, err := New(Config{APIID: 1, APIHash: "h", SessionPath: t.TempDir() + "/session.json"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// Not connected: a dialog walk would fail with ErrNotReady.
	if _, err := c.resolve(context.Background(), -1001); !errors.Is(err, gateway.ErrNotReady) {
		t.Fatalf("resolve without a recent walk = %v, want ErrNotReady", err)
	}

	c.mu.Lock()
	c.peers = map[int64]tg.InputPeerClass{-42: &tg.InputPeerChat{ChatID: 42}}
	c.scannedAt = time.Now()
	c.mu.Unlock()

	if p, err := c.resolve(context.Background(), -42); err != nil || p == nil {
		t.Fatalf("cached peer: %v %v", p, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.resolve(context.Background(), -1001); !errors.Is(err, gateway.ErrUnknownPeer) {
			t.Fatalf("miss after a recent walk = %v, want ErrUnknownPeer", err)
		}
	}

	c.mu.Lock()
	c.scannedAt = time.Now().Add(-2 * peerRescanAfter)
	c.mu.Unlock()
	if _, err := c.resolve(context.Background(), -1001); !errors.Is(err, gateway.ErrNotReady) {
		t.Fatalf("stale walk must rescan, got %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{APIHash: "h", SessionPath: "s"}, logx.Nop()); err == nil {
		t.Fatalf("missing api id must fail")
	}
}

func TestTerminalAuthReadsLines(t *testing.T) {
	var out bytes.Buffer
	a := &terminalAuth{in: newReader("+15550001\n12345\n"), out: &out}
	phone, _ := a.Phone(context.Background())
	code, _ := a.Code(context.Background(), nil)
	if phone != "+15550001" || code != "12345" {
		t.Fatalf("phone=%q code=%q", phone, code)
	}
	if !strings.Contains(out.String(), "Login code") {
		t.Fatalf("prompt not written: %q", out.String())
	}

	preset := &terminalAuth{phone: "+1999", in: newReader(""), out: &out}
	if p, _ := preset.Phone(context.Background()); p != "+1999" {
		t.Fatalf("preset phone ignored")
	}
}

func newReader(s string) *bufio.Reader { return bufio.NewReader(strings.NewReader(s)) }
