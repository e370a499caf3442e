package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"relaybot/internal/gateway"
	"relaybot/internal/observability/metrics"
	"relaybot/pkg/logx"
)

// Deliverer is the part of the gateway a cycle uses.
type Deliverer interface {
	LatestMessage(ctx context.Context, source int64) (*gateway.Message, error)
	Forward(ctx context.Context, target, source int64, msgID int) error
	SendText(ctx context.Context, target int64, text string) error
	SendMedia(ctx context.Context, target int64, media gateway.MediaRef, caption string) error
}

// Outcome is the final result for one target.
type Outcome struct {
	Target int64
	// Via names the call that produced the result: send, forward, text or media.
	Via  string
	Err  error
	Kind gateway.Kind
}

func (o Outcome) OK() bool { return o.Err == nil }

// CycleReport summarizes one engine run.
type CycleReport struct {
	ID         uuid.UUID
	Mode       SendMode
	StartedAt  time.Time
	MessageID  int
	Attempted  int
	Succeeded  int
	Failed     int
	Skipped    string
	Outcomes   []Outcome
	LastRunSet bool
}

// Ran reports whether any target was attempted.
func (r CycleReport) Ran() bool { return r.Attempted > 0 }

// Engine performs one broadcast cycle.
type Engine struct {
	gw       Deliverer
	settings *SettingsStore
	stats    *Aggregator
	log      logx.Logger
	now      func() time.Time
}

func NewEngine(gw Deliverer, settings *SettingsStore, stats *Aggregator, log logx.Logger) *Engine {
	return &Engine{
		gw:       gw,
		settings: settings,
		stats:    stats,
		log:      log.With(logx.String("comp", "engine")),
		now:      time.Now,
	}
}

// RunCycle delivers to every target of snap. Per-target failures are recorded
// in stats and never returned; the error is reserved for cancellation and
// internal failures such as fetching the source message.
func (e *Engine) RunCycle(ctx context.Context, snap Settings) (CycleReport, error) {
	rep := CycleReport{ID: uuid.New(), Mode: snap.SendMode, StartedAt: e.now()}
	log := e.log.With(logx.String("cycle", rep.ID.String()), logx.String("mode", string(snap.SendMode)))

	var deliver func(ctx context.Context, target int64) Outcome
	switch snap.SendMode {
	case SendFixed:
		if snap.FixedMessage == "" {
			rep.Skipped = fmt.Errorf("%w: fixed message is empty", ErrNotConfigured).Error()
			log.Info("cycle skipped", logx.String("reason", rep.Skipped))
			return rep, nil
		}
		deliver = func(ctx context.Context, target int64) Outcome {
			return Outcome{Target: target, Via: "send", Err: e.gw.SendText(ctx, target, snap.FixedMessage)}
		}
	default:
		if snap.SourceID == nil {
			rep.Skipped = fmt.Errorf("%w: no source selected", ErrNotConfigured).Error()
			log.Info("cycle skipped", logx.String("reason", rep.Skipped))
			return rep, nil
		}
		source := *snap.SourceID
		msg, err := e.gw.LatestMessage(ctx, source)
		if err != nil {
			return rep, fmt.Errorf("latest message of %d: %w", source, err)
		}
		if msg == nil {
			rep.Skipped = "source has no messages"
			log.Info("no message in source; nothing to relay", logx.Int64("source", source))
			return rep, nil
		}
		rep.MessageID = msg.ID
		deliver = func(ctx context.Context, target int64) Outcome {
			return e.relay(ctx, log, target, source, msg)
		}
	}

	for _, target := range snap.TargetIDs {
		if err := ctx.Err(); err != nil {
			log.Info("cycle cancelled", logx.Int("done", rep.Attempted), logx.Int("total", len(snap.TargetIDs)))
			return rep, err
		}
		out := deliver(ctx, target)
		out.Kind = gateway.Classify(out.Err)
		rep.Attempted++
		if out.OK() {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
		rep.Outcomes = append(rep.Outcomes, out)
		e.record(ctx, log, snap.SendMode, out)
	}

	now := e.now()
	if _, err := e.settings.Update(context.WithoutCancel(ctx), func(s *Settings) { s.LastRunAt = &now }); err != nil {
		log.Warn("failed to persist lastRunAt", logx.Err(err))
	} else {
		rep.LastRunSet = true
	}
	log.Info("cycle done",
		logx.Int("attempted", rep.Attempted),
		logx.Int("ok", rep.Succeeded),
		logx.Int("fail", rep.Failed),
	)
	return rep, nil
}

// relay forwards msg and falls back to one copy attempt.
func (e *Engine) relay(ctx context.Context, log logx.Logger, target, source int64, msg *gateway.Message) Outcome {
	fwdErr := e.gw.Forward(ctx, target, source, msg.ID)
	if fwdErr == nil {
		return Outcome{Target: target, Via: "forward"}
	}
	log.Debug("forward failed; copying",
		logx.Int64("target", target),
		logx.String("kind", gateway.Classify(fwdErr).String()),
		logx.Err(fwdErr),
	)
	switch {
	case msg.HasText():
		return Outcome{Target: target, Via: "text", Err: e.gw.SendText(ctx, target, msg.Text)}
	case msg.Media != nil:
		return Outcome{Target: target, Via: "media", Err: e.gw.SendMedia(ctx, target, *msg.Media, msg.Text)}
	default:
		return Outcome{Target: target, Via: "forward", Err: fmt.Errorf("%w (forward: %v)", ErrNotCopyable, fwdErr)}
	}
}

func (e *Engine) record(ctx context.Context, log logx.Logger, mode SendMode, out Outcome) {
	metrics.ObserveDelivery(string(mode), out.Via, out.OK(), out.Kind.String())
	errMsg := ""
	if out.OK() {
		log.Info("delivered", logx.Int64("target", out.Target), logx.String("via", out.Via))
	} else {
		errMsg = out.Err.Error()
		log.Warn("delivery failed",
			logx.Int64("target", out.Target),
			logx.String("via", out.Via),
			logx.String("kind", out.Kind.String()),
			logx.Err(out.Err),
		)
	}
	if err := e.stats.IncrementOutcome(context.WithoutCancel(ctx), out.Target, out.OK(), errMsg); err != nil {
		log.Warn("failed to record outcome", logx.Int64("target", out.Target), logx.Err(err))
	}
}
