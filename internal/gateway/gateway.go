// Package gateway describes the user-account messaging surface the relay
// depends on. The MTProto implementation lives in gateway/mtproto.
package gateway

import (
	"context"
	"errors"
)

// ChatKind labels a conversation for the operator panel.
type ChatKind string

const (
	KindGroup   ChatKind = "group"
	KindChannel ChatKind = "channel"
	KindOther   ChatKind = "other"
)

// Label is the short tag shown in picker rows.
func (k ChatKind) Label() string {
	switch k {
	case KindGroup:
		return "Group"
	case KindChannel:
		return "Channel"
	default:
		return "Other"
	}
}

// Chat is a group or channel visible to the account. IDs use the marked form
// (-100… for channels, negative for basic groups).
type Chat struct {
	ID    int64
	Title string
	Kind  ChatKind
}

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
)

// MediaRef points at media already stored on Telegram so it can be re-sent
// without downloading.
type MediaRef struct {
	Kind          MediaKind
	ID            int64
	AccessHash    int64
	FileReference []byte
}

// Message is the latest post of a source conversation.
type Message struct {
	ID    int
	Text  string
	Media *MediaRef
}

// HasText reports whether the message carries a non-empty text body.
func (m *Message) HasText() bool { return m != nil && m.Text != "" }

// Account describes the logged-in user.
type Account struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// Gateway is everything the relay needs from Telegram on behalf of the user account.
type Gateway interface {
	// ListChats returns groups and channels; one-to-one conversations are excluded.
	ListChats(ctx context.Context) ([]Chat, error)
	// LatestMessage returns the newest message of source, or nil when there is none.
	LatestMessage(ctx context.Context, source int64) (*Message, error)
	Forward(ctx context.Context, target, source int64, msgID int) error
	SendText(ctx context.Context, target int64, text string) error
	SendMedia(ctx context.Context, target int64, media MediaRef, caption string) error
	Self(ctx context.Context) (Account, error)
	SendToSelf(ctx context.Context, text string) error
}

var (
	// ErrUnknownPeer is returned when a chat id cannot be resolved to a peer.
	ErrUnknownPeer = errors.New("gateway: unknown peer (PEER_ID_INVALID)")
	// ErrNotReady is returned while the client is still connecting.
	ErrNotReady = errors.New("gateway: client not ready")
	// ErrUnauthorized means the session file holds no logged-in user.
	ErrUnauthorized = errors.New("gateway: session is not authorized")
)
