package mtproto

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"

	"relaybot/internal/gateway"
	"relaybot/pkg/logx"
)

const channelIDOffset int64 = 1_000_000_000_000

// peerRescanAfter bounds dialog walks on cache misses. A miss within this
// window of the last walk is answered as an unknown peer. It is shorter than
// the minimum relay interval, so a newly joined chat resolves by the next cycle.
const peerRescanAfter = 30 * time.Second

// markChat and markChannel convert raw ids into the marked form used across
// the relay: basic groups are negative, channels start with -100.
func markChat(id int64) int64    { return -id }
func markChannel(id int64) int64 { return -(channelIDOffset + id) }

// chatOf maps one dialog to a relay chat. One-to-one dialogs and chats the
// account can no longer see are dropped.
func chatOf(elem dialogs.Elem) (gateway.Chat, tg.InputPeerClass, bool) {
	switch p := elem.Peer.(type) {
	case *tg.InputPeerChat:
		chat, ok := elem.Entities.Chat(p.ChatID)
		if !ok {
			return gateway.Chat{}, nil, false
		}
		return gateway.Chat{ID: markChat(p.ChatID), Title: chat.Title, Kind: gateway.KindGroup}, p, true
	case *tg.InputPeerChannel:
		ch, ok := elem.Entities.Channel(p.ChannelID)
		if !ok {
			return gateway.Chat{}, nil, false
		}
		return gateway.Chat{ID: markChannel(p.ChannelID), Title: ch.Title, Kind: channelKind(ch)}, p, true
	default:
		return gateway.Chat{}, nil, false
	}
}

func channelKind(ch *tg.Channel) gateway.ChatKind {
	switch {
	case ch.Broadcast:
		return gateway.KindChannel
	case ch.Megagroup, ch.Gigagroup:
		return gateway.KindGroup
	default:
		return gateway.KindOther
	}
}

// ListChats walks every dialog and refreshes the peer cache.
func (c *Client) ListChats(ctx context.Context) (out []gateway.Chat, err error) {
	defer observe("list_chats", time.Now(), &err)
	api, err := c.raw()
	if err != nil {
		return nil, err
	}

	peers := map[int64]tg.InputPeerClass{}
	err = query.GetDialogs(api).BatchSize(100).ForEach(ctx, func(ctx context.Context, elem dialogs.Elem) error {
		chat, peer, ok := chatOf(elem)
		if !ok {
			return nil
		}
		if _, dup := peers[chat.ID]; dup {
			return nil
		}
		peers[chat.ID] = peer
		out = append(out, chat)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list dialogs: %w", wrapRPC(err))
	}

	c.mu.Lock()
	c.peers = peers
	c.scannedAt = time.Now()
	c.mu.Unlock()
	c.log.Debug("dialogs loaded", logx.Int("chats", len(out)))
	return out, nil
}

// resolve returns the input peer for a marked id. A miss reloads the dialogs
// unless they were walked within peerRescanAfter.
func (c *Client) resolve(ctx context.Context, id int64) (tg.InputPeerClass, error) {
	if p, ok := c.cachedPeer(id); ok {
		return p, nil
	}
	if c.scannedRecently() {
		return nil, fmt.Errorf("%w: %d", gateway.ErrUnknownPeer, id)
	}
	if _, err := c.ListChats(ctx); err != nil {
		return nil, err
	}
	if p, ok := c.cachedPeer(id); ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %d", gateway.ErrUnknownPeer, id)
}

func (c *Client) scannedRecently() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.scannedAt.IsZero() && time.Since(c.scannedAt) < peerRescanAfter
}

func (c *Client) cachedPeer(id int64) (tg.InputPeerClass, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.peers[id]
	return p, ok
}
