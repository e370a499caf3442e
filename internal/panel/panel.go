// Package panel is the owner-only Telegram menu used to configure and watch
// the relay. Updates come from a transport.Adapter; every accepted update is
// run through the middleware chain on a small worker pool.
package panel

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaybot/internal/broadcast"
	"relaybot/internal/gateway"
	"relaybot/internal/observability/metrics"
	rtsup "relaybot/internal/runtime/supervisor"
	"relaybot/internal/selection"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	"relaybot/pkg/logx"
	"relaybot/pkg/tgui"
)

const defaultHandlerTimeout = 30 * time.Second

// Gateway is the user-account surface the panel reads from.
type Gateway interface {
	selection.ChatLister
	Self(ctx context.Context) (gateway.Account, error)
	SendToSelf(ctx context.Context, text string) error
}

// CycleRunner runs one broadcast cycle on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (broadcast.CycleReport, error)
}

type AuditLog interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Deps struct {
	Adapter  kit.Adapter
	Gateway  Gateway
	Settings *broadcast.SettingsStore
	Stats    *broadcast.Aggregator
	Runner   CycleRunner
	Audit    AuditLog
	Ring     *logx.Ring
	Session  *Session
	Owners   []int64
	Log      logx.Logger
}

type Option func(*Panel)

// WithWorkers sets the dispatch pool size. One worker keeps operator actions
// in arrival order.
func WithWorkers(n int) Option {
	return func(p *Panel) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithHandlerTimeout(d time.Duration) Option { return func(p *Panel) { p.timeout = d } }

// Panel routes operator updates to handlers.
type Panel struct {
	adapter  kit.Adapter
	gw       Gateway
	settings *broadcast.SettingsStore
	stats    *broadcast.Aggregator
	runner   CycleRunner
	audit    AuditLog
	ring     *logx.Ring
	session  *Session
	log      logx.Logger

	mu     sync.RWMutex
	owners []int64

	workers int
	timeout time.Duration
	jobs    chan func()

	callbacks map[string]HandlerFunc

	bg sync.WaitGroup
}

func New(d Deps, opts ...Option) *Panel {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	sess := d.Session
	if sess == nil {
		sess = NewSession()
	}
	p := &Panel{
		adapter:  d.Adapter,
		gw:       d.Gateway,
		settings: d.Settings,
		stats:    d.Stats,
		runner:   d.Runner,
		audit:    d.Audit,
		ring:     d.Ring,
		session:  sess,
		log:      log.With(logx.String("comp", "panel")),
		workers:  1,
		timeout:  defaultHandlerTimeout,
		jobs:     make(chan func(), 64),
	}
	for _, o := range opts {
		o(p)
	}
	p.SetOwners(d.Owners)
	p.callbacks = p.routes()
	return p
}

// Session returns the operator session shared by all handlers.
func (p *Panel) Session() *Session { return p.session }

// SetOwners replaces the allowed user ids. Safe during hot reload.
func (p *Panel) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	p.mu.Lock()
	p.owners = cp
	p.mu.Unlock()
}

func (p *Panel) isOwner(id int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, o := range p.owners {
		if o == id {
			return true
		}
	}
	return false
}

// Commands is the bot command menu published at startup.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "open the relay panel"},
		{Command: "menu", Description: "show the main menu"},
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (p *Panel) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(p.log),
		rtsup.WithCancelOnError(false),
	)
	p.log.Info("panel dispatcher started", logx.Int("workers", p.workers), logx.Int("job_queue_cap", cap(p.jobs)))

	jobs := p.jobs
	for i := 0; i < p.workers; i++ {
		idx := i
		sup.GoRestart("panel.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-jobs:
					p.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		sup.Cancel()
		p.bg.Wait()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		p.log.Info("panel dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			p.enqueue(ctx, up)
		}
	}
}

func (p *Panel) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in panel job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (p *Panel) enqueue(ctx context.Context, up kit.Update) {
	job := func() { p.Handle(ctx, up) }
	select {
	case p.jobs <- job:
	default:
		if up.Callback != nil && p.isOwner(up.Callback.FromID) {
			_ = p.adapter.AnswerCallback(ctx, up.Callback.ID, "busy, try again", false)
		}
	}
}

// Handle routes one update synchronously.
func (p *Panel) Handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		p.routeMessage(ctx, up)
	case kit.UpdateCallback:
		p.routeCallback(ctx, up)
	}
}

func (p *Panel) newRequest(ctx context.Context, up kit.Update, chat kit.ChatTarget, fromID int64, from, action string) *Request {
	return &Request{
		Root:   ctx,
		Update: up,
		Chat:   chat,
		FromID: fromID,
		From:   from,
		Action: action,
		Logger: p.log.With(
			logx.String("rid", uuid.NewString()[:8]),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", fromID),
			logx.String("action", action),
		),
	}
}

func (p *Panel) chain(h HandlerFunc) HandlerFunc {
	return Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(p.timeout))
}

func (p *Panel) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil || !p.isOwner(msg.FromID) {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	var (
		action string
		h      HandlerFunc
	)
	switch cmd := commandOf(text); cmd {
	case "start":
		action, h = "start", p.handleStart
	case "menu":
		action, h = "menu", p.handleMenu
	default:
		action, h = "text", p.handleText
	}
	req := p.newRequest(ctx, up, chat, msg.FromID, msg.FromUsername, action)
	req.Text = text
	if err := p.chain(h)(ctx, req); err != nil {
		_, _ = p.adapter.SendText(ctx, chat, "❌ "+tgui.Esc(err.Error()).String(), htmlOpts(nil))
	}
}

func (p *Panel) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil || !p.isOwner(cb.FromID) {
		return
	}
	action, payload := tgui.ParseData(cb.Data)
	h, ok := p.callbacks[action]
	if !ok {
		_ = p.adapter.AnswerCallback(ctx, cb.ID, "", false)
		return
	}
	req := p.newRequest(ctx, up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, cb.FromUsername, action)
	req.MessageID = cb.MessageID
	req.CallbackID = cb.ID
	req.Payload = payload

	if err := p.chain(h)(ctx, req); err != nil {
		_ = p.adapter.AnswerCallback(ctx, cb.ID, "Error: "+tgui.TruncRunes(err.Error(), 180), true)
		return
	}
	if !req.answered {
		_ = p.adapter.AnswerCallback(ctx, cb.ID, "", false)
	}
}

// commandOf returns the bot command name of text ("/start@bot arg" -> "start").
func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name, _, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}

func htmlOpts(kb *tgui.Inline) *kit.SendOptions {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if kb != nil {
		opt.ReplyMarkupAdapter = kb.Markup()
	}
	return opt
}

// reply sends a new message into the request chat.
func (p *Panel) reply(ctx context.Context, req *Request, text string, kb *tgui.Inline) error {
	_, err := p.adapter.SendText(ctx, req.Chat, text, htmlOpts(kb))
	return err
}

// show edits the panel message a callback came from, or sends a new one for
// text messages.
func (p *Panel) show(ctx context.Context, req *Request, text string, kb *tgui.Inline) error {
	if req.MessageID == 0 {
		return p.reply(ctx, req, text, kb)
	}
	err := p.adapter.EditText(ctx, req.ref(), text, htmlOpts(kb))
	if isNotModified(err) {
		return nil
	}
	return err
}

// answer acknowledges the callback with a toast (or an alert).
func (p *Panel) answer(ctx context.Context, req *Request, text string, alert bool) {
	if req.CallbackID == "" || req.answered {
		return
	}
	req.answered = true
	if err := p.adapter.AnswerCallback(ctx, req.CallbackID, text, alert); err != nil {
		req.Logger.Debug("answer callback failed", logx.Err(err))
	}
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

// record writes the audit entry and counts the action.
func (p *Panel) record(ctx context.Context, req *Request, action, target, detail string) {
	metrics.PanelActionsTotal.WithLabelValues(action).Inc()
	if p.audit == nil {
		return
	}
	e := storage.AuditEntry{
		ActorID:       req.FromID,
		ActorUsername: req.From,
		Action:        action,
		Target:        target,
		Detail:        detail,
	}
	if err := p.audit.AppendAudit(context.WithoutCancel(ctx), e); err != nil {
		req.Logger.Warn("audit append failed", logx.Err(err))
	}
}
