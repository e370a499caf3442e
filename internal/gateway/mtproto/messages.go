package mtproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"relaybot/internal/gateway"
)

// LatestMessage returns the newest regular message of source, nil when none
// is among the last historyScanLimit entries.
func (c *Client) LatestMessage(ctx context.Context, source int64) (msg *gateway.Message, err error) {
	defer observe("latest_message", time.Now(), &err)
	api, err := c.raw()
	if err != nil {
		return nil, err
	}
	peer, err := c.resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{Peer: peer, Limit: historyScanLimit})
	if err != nil {
		return nil, wrapRPC(err)
	}
	modified, ok := res.AsModified()
	if !ok {
		return nil, nil
	}
	return newestMessage(modified.GetMessages()), nil
}

// historyScanLimit is how many history entries are fetched so that service
// entries (joins, pins, title changes) on top do not hide the latest post.
const historyScanLimit = 10

// newestMessage returns the first regular message of a newest-first history page.
func newestMessage(history []tg.MessageClass) *gateway.Message {
	for _, m := range history {
		if out, ok := messageOf(m); ok {
			return out
		}
	}
	return nil
}

func messageOf(m tg.MessageClass) (*gateway.Message, bool) {
	msg, ok := m.(*tg.Message)
	if !ok {
		return nil, false
	}
	out := &gateway.Message{ID: msg.ID, Text: msg.Message}
	if media, ok := msg.GetMedia(); ok {
		out.Media = mediaOf(media)
	}
	return out, true
}

// mediaOf keeps photos and documents; other media kinds cannot be re-sent by reference.
func mediaOf(media tg.MessageMediaClass) *gateway.MediaRef {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		return &gateway.MediaRef{Kind: gateway.MediaPhoto, ID: p.ID, AccessHash: p.AccessHash, FileReference: p.FileReference}
	case *tg.MessageMediaDocument:
		d, ok := m.Document.(*tg.Document)
		if !ok {
			return nil
		}
		return &gateway.MediaRef{Kind: gateway.MediaDocument, ID: d.ID, AccessHash: d.AccessHash, FileReference: d.FileReference}
	default:
		return nil
	}
}

func inputMedia(ref gateway.MediaRef) (tg.InputMediaClass, error) {
	switch ref.Kind {
	case gateway.MediaPhoto:
		return &tg.InputMediaPhoto{ID: &tg.InputPhoto{ID: ref.ID, AccessHash: ref.AccessHash, FileReference: ref.FileReference}}, nil
	case gateway.MediaDocument:
		return &tg.InputMediaDocument{ID: &tg.InputDocument{ID: ref.ID, AccessHash: ref.AccessHash, FileReference: ref.FileReference}}, nil
	default:
		return nil, fmt.Errorf("mtproto: unsupported media kind %q", ref.Kind)
	}
}

func (c *Client) Forward(ctx context.Context, target, source int64, msgID int) (err error) {
	defer observe("forward", time.Now(), &err)
	api, err := c.raw()
	if err != nil {
		return err
	}
	from, err := c.resolve(ctx, source)
	if err != nil {
		return err
	}
	to, err := c.resolve(ctx, target)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: from,
		ID:       []int{msgID},
		RandomID: []int64{randomID()},
		ToPeer:   to,
	})
	return wrapRPC(err)
}

func (c *Client) SendText(ctx context.Context, target int64, text string) (err error) {
	defer observe("send_text", time.Now(), &err)
	to, err := c.resolve(ctx, target)
	if err != nil {
		return err
	}
	return c.sendText(ctx, to, text)
}

// SendToSelf posts text to the account's Saved Messages.
func (c *Client) SendToSelf(ctx context.Context, text string) (err error) {
	defer observe("send_self", time.Now(), &err)
	return c.sendText(ctx, &tg.InputPeerSelf{}, text)
}

func (c *Client) sendText(ctx context.Context, to tg.InputPeerClass, text string) error {
	api, err := c.raw()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     to,
		Message:  text,
		RandomID: randomID(),
	})
	return wrapRPC(err)
}

func (c *Client) SendMedia(ctx context.Context, target int64, media gateway.MediaRef, caption string) (err error) {
	defer observe("send_media", time.Now(), &err)
	api, err := c.raw()
	if err != nil {
		return err
	}
	input, err := inputMedia(media)
	if err != nil {
		return err
	}
	to, err := c.resolve(ctx, target)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer:     to,
		Media:    input,
		Message:  caption,
		RandomID: randomID(),
	})
	return wrapRPC(err)
}

func randomID() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}
