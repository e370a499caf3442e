// Package mtproto implements gateway.Gateway with a gotd user-account client.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"golang.org/x/time/rate"

	"relaybot/internal/gateway"
	"relaybot/internal/observability/metrics"
	"relaybot/pkg/logx"
)

type Config struct {
	APIID       int
	APIHash     string
	SessionPath string
	// SendRate caps outgoing sends per second. 0 means 1.
	SendRate float64
}

func (c Config) validate() error {
	switch {
	case c.APIID == 0:
		return errors.New("mtproto: api id is required")
	case c.APIHash == "":
		return errors.New("mtproto: api hash is required")
	case c.SessionPath == "":
		return errors.New("mtproto: session path is required")
	}
	return nil
}

// Client is a long-lived MTProto connection. Run must be started before any
// gateway call succeeds; calls made earlier return gateway.ErrNotReady.
type Client struct {
	cfg     Config
	log     logx.Logger
	client  *telegram.Client
	limiter *rate.Limiter

	mu    sync.RWMutex
	api   *tg.Client
	self  *tg.User
	peers map[int64]tg.InputPeerClass
	// scannedAt is when the peer cache was last rebuilt from the dialog list.
	scannedAt time.Time

	ready     chan struct{}
	readyOnce sync.Once
}

var _ gateway.Gateway = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "mtproto")),
		limiter: rate.NewLimiter(sendLimit(cfg.SendRate), 1),
		peers:   map[int64]tg.InputPeerClass{},
		ready:   make(chan struct{}),
	}
	c.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
	})
	return c, nil
}

func sendLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		perSecond = 1
	}
	return rate.Limit(perSecond)
}

// SetSendRate changes the send pacing live.
func (c *Client) SetSendRate(perSecond float64) {
	c.limiter.SetLimit(sendLimit(perSecond))
}

// Run connects, checks that the session is authorized and blocks until ctx
// is done. It returns gateway.ErrUnauthorized for an empty session.
func (c *Client) Run(ctx context.Context) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return fmt.Errorf("%w: run init-session first", gateway.ErrUnauthorized)
		}

		c.mu.Lock()
		c.api = c.client.API()
		c.self = status.User
		c.mu.Unlock()
		c.readyOnce.Do(func() { close(c.ready) })

		if status.User != nil {
			c.log.Info("mtproto connected",
				logx.Int64("user_id", status.User.ID),
				logx.String("username", status.User.Username),
			)
		}
		<-ctx.Done()
		return ctx.Err()
	})
}

// Ready is closed once the client is connected and authorized.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// WaitReady blocks until Ready or ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) raw() (*tg.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.api == nil {
		return nil, gateway.ErrNotReady
	}
	return c.api, nil
}

// Self returns the logged-in account, refreshed from Telegram.
func (c *Client) Self(ctx context.Context) (acc gateway.Account, err error) {
	defer observe("self", time.Now(), &err)
	if _, err := c.raw(); err != nil {
		return gateway.Account{}, err
	}
	u, err := c.client.Self(ctx)
	if err != nil {
		return gateway.Account{}, wrapRPC(err)
	}
	c.mu.Lock()
	c.self = u
	c.mu.Unlock()
	return accountOf(u), nil
}

func accountOf(u *tg.User) gateway.Account {
	if u == nil {
		return gateway.Account{}
	}
	return gateway.Account{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
}

func observe(op string, started time.Time, err *error) {
	metrics.ObserveGatewayRequest(op, started, *err)
}
