package panel

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	kit "relaybot/internal/transport"
	"relaybot/pkg/logx"
)

// Request is one operator update after routing.
type Request struct {
	Update kit.Update
	Chat   kit.ChatTarget
	FromID int64
	From   string
	// MessageID is the panel message a callback came from; 0 for text messages.
	MessageID  int
	CallbackID string
	Action     string
	Payload    string
	Text       string
	Logger     logx.Logger
	// Root outlives the handler timeout; background work started by a handler uses it.
	Root context.Context

	answered bool
}

func (r *Request) ref() kit.MessageRef {
	return kit.MessageRef{ChatID: r.Chat.ChatID, ThreadID: r.Chat.ThreadID, MessageID: r.MessageID}
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.String("action", req.Action),
				logx.Duration("dur", d),
			}
			switch {
			case err != nil:
				req.Logger.Warn("panel request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				req.Logger.Info("panel request ok", fields...)
			default:
				req.Logger.Debug("panel request ok", fields...)
			}
			return err
		}
	}
}
