package panel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"relaybot/internal/broadcast"
	"relaybot/internal/selection"
	"relaybot/pkg/logx"
	"relaybot/pkg/tgui"
)

const noChatsAlert = "No groups or channels found."

func (p *Panel) routes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		actMain:       p.handleMain,
		actNoop:       func(context.Context, *Request) error { return nil },
		actSource:     p.handleSource,
		actSourcePage: p.handleSourcePage,
		actSourceSet:  p.handleSourceSet,
		actTargets:    p.handleTargets,
		actTargetPage: p.handleTargetPage,
		actToggle:     p.handleToggle,
		actSelectAll:  p.handleSelectAll,
		actClear:      p.handleClear,
		actSave:       p.handleSave,
		actTiming:     p.handleTiming,
		actInterval:   p.handleInterval,
		actCustom:     p.handleCustom,
		actJitter:     p.handleJitter,
		actStats:      p.handleStats,
		actStatsReset: p.handleStatsReset,
		actStatus:     p.handleStatus,
		actTest:       p.handleTest,
		actAdvanced:   p.handleAdvanced,
		actMode:       p.handleMode,
		actFixedEdit:  p.handleFixedEdit,
		actAccount:    p.handleAccount,
		actRunNow:     p.handleRunNow,
		actLogs:       p.handleLogs,
		actLogsShow:   p.handleLogsShow,
		actLogsClear:  p.handleLogsClear,
		actEnable:     p.handleEnabled(true),
		actDisable:    p.handleEnabled(false),
	}
}

func (p *Panel) handleStart(ctx context.Context, req *Request) error {
	p.session.Reset()
	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	return p.reply(ctx, req, welcomeText, mainKeyboard(s))
}

func (p *Panel) handleMenu(ctx context.Context, req *Request) error {
	p.session.Reset()
	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	return p.reply(ctx, req, "🛠 Use the buttons below.", mainKeyboard(s))
}

func (p *Panel) handleMain(ctx context.Context, req *Request) error {
	p.session.Reset()
	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	return p.show(ctx, req, "🛠 Main menu", mainKeyboard(s))
}

// handleText consumes a pending text input; without one it points at the menu.
func (p *Panel) handleText(ctx context.Context, req *Request) error {
	switch p.session.TakeInput() {
	case InputInterval:
		mins, err := strconv.Atoi(req.Text)
		if err != nil || mins < 1 {
			return p.reply(ctx, req, "❌ Invalid minutes, custom interval cancelled.", nil)
		}
		s, err := p.settings.Update(ctx, func(s *broadcast.Settings) { s.IntervalMinutes = mins })
		if err != nil {
			return err
		}
		p.record(ctx, req, "interval_set", strconv.Itoa(mins), "custom")
		return p.reply(ctx, req, fmt.Sprintf("⏱ Custom interval saved: %d min.", s.IntervalMinutes), mainKeyboard(s))

	case InputFixedMessage:
		if req.Text == "" {
			return p.reply(ctx, req, "❌ Empty message, nothing saved.", nil)
		}
		s, err := p.settings.Update(ctx, func(s *broadcast.Settings) {
			s.FixedMessage = req.Text
			s.SendMode = broadcast.SendFixed
		})
		if err != nil {
			return err
		}
		p.record(ctx, req, "fixed_message_set", "", tgui.TruncRunes(req.Text, fixedPreviewRunes))
		return p.reply(ctx, req, "✅ Fixed message saved and send mode set to fixed.", mainKeyboard(s))
	}

	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	return p.reply(ctx, req, "🛠 Use the panel buttons.", mainKeyboard(s))
}

func (p *Panel) handleSource(ctx context.Context, req *Request) error {
	p.session.SetInput(InputNone)
	m := p.session.Picker
	if err := m.OpenSource(ctx, p.gw); err != nil {
		return err
	}
	if m.Candidates() == 0 {
		m.Reset()
		p.answer(ctx, req, noChatsAlert, true)
		return nil
	}
	return p.show(ctx, req, "📍 Choose the group or channel to relay from.", sourceKeyboard(m))
}

func (p *Panel) handleSourcePage(ctx context.Context, req *Request) error {
	m := p.session.Picker
	if m.Mode() != selection.ModeSource {
		return p.handleSource(ctx, req)
	}
	n, _ := strconv.Atoi(req.Payload)
	m.SetPage(n)
	return p.show(ctx, req, "📍 Choose the group or channel to relay from.", sourceKeyboard(m))
}

func (p *Panel) handleSourceSet(ctx context.Context, req *Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q", req.Payload)
	}
	m := p.session.Picker
	chat, _ := m.Lookup(id)
	if _, err := m.PickSource(id); err != nil {
		if errors.Is(err, selection.ErrWrongMode) {
			p.answer(ctx, req, "Picker expired, open it again.", false)
			return nil
		}
		return err
	}
	s, err := p.settings.Update(ctx, func(s *broadcast.Settings) { s.SourceID = &id })
	if err != nil {
		return err
	}
	p.record(ctx, req, "source_set", req.Payload, chat.Title)
	p.answer(ctx, req, "Source selected.", false)

	title := chat.Title
	if title == "" {
		title = req.Payload
	}
	return p.show(ctx, req, "✅ Source: "+tgui.B(title).String(), mainKeyboard(s))
}

func (p *Panel) handleTargets(ctx context.Context, req *Request) error {
	p.session.SetInput(InputNone)
	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	m := p.session.Picker
	if err := m.OpenTargets(ctx, p.gw, s.TargetIDs); err != nil {
		return err
	}
	if m.Candidates() == 0 {
		m.Reset()
		p.answer(ctx, req, noChatsAlert, true)
		return nil
	}
	return p.showTargets(ctx, req)
}

func (p *Panel) showTargets(ctx context.Context, req *Request) error {
	m := p.session.Picker
	text := fmt.Sprintf("🎯 Choose the target groups and channels (%d selected).", len(m.Selected()))
	return p.show(ctx, req, text, targetsKeyboard(m))
}

// targetMode reopens the target picker when the session was reset under an
// old keyboard.
func (p *Panel) targetMode(ctx context.Context, req *Request) (bool, error) {
	if p.session.Picker.Mode() == selection.ModeTargets {
		return true, nil
	}
	return false, p.handleTargets(ctx, req)
}

func (p *Panel) handleTargetPage(ctx context.Context, req *Request) error {
	if ok, err := p.targetMode(ctx, req); !ok {
		return err
	}
	n, _ := strconv.Atoi(req.Payload)
	p.session.Picker.SetPage(n)
	return p.showTargets(ctx, req)
}

func (p *Panel) handleToggle(ctx context.Context, req *Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q", req.Payload)
	}
	if ok, err := p.targetMode(ctx, req); !ok {
		return err
	}
	if _, err := p.session.Picker.Toggle(id); err != nil {
		return err
	}
	return p.showTargets(ctx, req)
}

func (p *Panel) handleSelectAll(ctx context.Context, req *Request) error {
	if ok, err := p.targetMode(ctx, req); !ok {
		return err
	}
	if err := p.session.Picker.SelectAll(); err != nil {
		return err
	}
	return p.showTargets(ctx, req)
}

func (p *Panel) handleClear(ctx context.Context, req *Request) error {
	if ok, err := p.targetMode(ctx, req); !ok {
		return err
	}
	if err := p.session.Picker.Clear(); err != nil {
		return err
	}
	return p.showTargets(ctx, req)
}

func (p *Panel) handleSave(ctx context.Context, req *Request) error {
	ids, err := p.session.Picker.SaveTargets()
	if errors.Is(err, selection.ErrWrongMode) {
		p.answer(ctx, req, "Picker expired, open it again.", false)
		return nil
	}
	if err != nil {
		return err
	}
	s, err := p.settings.Update(ctx, func(s *broadcast.Settings) { s.TargetIDs = ids })
	if err != nil {
		return err
	}
	p.record(ctx, req, "targets_set", "", fmt.Sprintf("%d targets", len(s.TargetIDs)))
	p.answer(ctx, req, "Targets saved.", false)
	return p.show(ctx, req, fmt.Sprintf("✅ Targets saved (%d).", len(s.TargetIDs)), mainKeyboard(s))
}

func (p *Panel) handleTiming(ctx context.Context, req *Request) error {
	p.session.Reset()
	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	return p.show(ctx, req, "⏱ Choose how often the relay runs.", timingKeyboard(s))
}

func (p *Panel) handleInterval(ctx context.Context, req *Request) error {
	mins, err := strconv.Atoi(req.Payload)
	if err != nil || mins < 1 {
		p.answer(ctx, req, "Invalid value.", false)
		return nil
	}
	s, err := p.settings.Update(ctx, func(s *broadcast.Settings) { s.IntervalMinutes = mins })
	if err != nil {
		return err
	}
	p.record(ctx, req, "interval_set", req.Payload, "preset")
	p.answer(ctx, req, fmt.Sprintf("Interval set to %d min.", s.IntervalMinutes), false)
	return p.show(ctx, req, "⏱ Choose how often the relay runs.", timingKeyboard(s))
}

func (p *Panel) handleCustom(ctx context.Context, req *Request) error {
	p.session.Picker.Reset()
	p.session.SetInput(InputInterval)
	p.answer(ctx, req, "", false)
	return p.reply(ctx, req, "🔢 Send the interval in minutes (digits only):", nil)
}

func (p *Panel) handleJitter(ctx context.Context, req *Request) error {
	s, err := p.settings.Update(ctx, func(s *broadcast.Settings) {
		if s.JitterSeconds > 0 {
			s.JitterSeconds = 0
		} else {
			s.JitterSeconds = JitterPreset
		}
	})
	if err != nil {
		return err
	}
	p.record(ctx, req, "jitter_set", strconv.Itoa(s.JitterSeconds), "")
	msg := "Jitter off."
	if s.JitterSeconds > 0 {
		msg = fmt.Sprintf("Jitter on: ±%d s.", s.JitterSeconds)
	}
	p.answer(ctx, req, msg, false)
	return p.show(ctx, req, "⏱ Choose how often the relay runs.", timingKeyboard(s))
}

func (p *Panel) handleStats(ctx context.Context, req *Request) error {
	st, err := p.stats.Snapshot(ctx)
	if err != nil {
		return err
	}
	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	return p.show(ctx, req, statsText(st, s.TargetIDs), statsKeyboard())
}

func (p *Panel) handleStatsReset(ctx context.Context, req *Request) error {
	if err := p.stats.Reset(ctx); err != nil {
		return err
	}
	p.record(ctx, req, "stats_reset", "", "")
	p.answer(ctx, req, "Stats reset.", false)
	return p.handleStats(ctx, req)
}

func (p *Panel) handleStatus(ctx context.Context, req *Request) error {
	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	return p.show(ctx, req, statusText(s), backKeyboard())
}

func (p *Panel) handleTest(ctx context.Context, req *Request) error {
	text := "🧪 Relay test message " + time.Now().Format(timeLayout)
	if err := p.gw.SendToSelf(ctx, text); err != nil {
		p.answer(ctx, req, "Error: "+tgui.TruncRunes(err.Error(), 180), true)
		req.Logger.Warn("test message failed", logx.Err(err))
		return nil
	}
	p.record(ctx, req, "test_sent", "self", "")
	p.answer(ctx, req, "Test message sent to Saved Messages.", false)
	return nil
}

func (p *Panel) handleAdvanced(ctx context.Context, req *Request) error {
	p.session.Reset()
	s, err := p.settings.Load(ctx)
	if err != nil {
		return err
	}
	return p.show(ctx, req, "⚙ Advanced settings", advancedKeyboard(s))
}

func (p *Panel) handleMode(ctx context.Context, req *Request) error {
	s, err := p.settings.Update(ctx, func(s *broadcast.Settings) {
		if s.SendMode == broadcast.SendFixed {
			s.SendMode = broadcast.SendLast
		} else {
			s.SendMode = broadcast.SendFixed
		}
	})
	if err != nil {
		return err
	}
	p.record(ctx, req, "mode_set", string(s.SendMode), "")
	p.answer(ctx, req, "Send mode: "+modeLabel(s.SendMode), false)
	return p.show(ctx, req, "⚙ Advanced settings", advancedKeyboard(s))
}

func (p *Panel) handleFixedEdit(ctx context.Context, req *Request) error {
	p.session.Picker.Reset()
	p.session.SetInput(InputFixedMessage)
	p.answer(ctx, req, "", false)
	return p.reply(ctx, req, "✏ Send the text to relay as the fixed message.", nil)
}

func (p *Panel) handleAccount(ctx context.Context, req *Request) error {
	acct, err := p.gw.Self(ctx)
	if err != nil {
		return err
	}
	chats, err := p.gw.ListChats(ctx)
	if err != nil {
		return err
	}
	p.answer(ctx, req, "", false)
	return p.reply(ctx, req, accountText(acct, len(chats)), nil)
}

// handleRunNow starts a cycle in the background and reports when it ends.
func (p *Panel) handleRunNow(ctx context.Context, req *Request) error {
	if p.runner == nil {
		p.answer(ctx, req, "Scheduler is not running.", true)
		return nil
	}
	p.answer(ctx, req, "Running a cycle…", false)
	p.record(ctx, req, "run_now", "", "")

	root := req.Root
	if root == nil {
		root = context.WithoutCancel(ctx)
	}
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		rep, err := p.runner.RunCycle(root)
		text := reportText(rep)
		switch {
		case errors.Is(err, broadcast.ErrCycleInFlight):
			text = "⏳ A cycle is already running."
		case err != nil:
			req.Logger.Warn("manual cycle failed", logx.Err(err))
			text = "❌ Cycle failed: " + tgui.Esc(err.Error()).String()
		}
		if err := p.reply(context.WithoutCancel(root), req, text, nil); err != nil {
			req.Logger.Warn("run-now report failed", logx.Err(err))
		}
	}()
	return nil
}

func (p *Panel) handleLogs(ctx context.Context, req *Request) error {
	p.session.Reset()
	return p.show(ctx, req, "📜 Logs", logsKeyboard())
}

func (p *Panel) handleLogsShow(ctx context.Context, req *Request) error {
	var entries []logx.Entry
	if p.ring != nil {
		entries = p.ring.Last(logLines)
	}
	p.answer(ctx, req, "", false)
	return p.reply(ctx, req, logsText(entries), nil)
}

func (p *Panel) handleLogsClear(ctx context.Context, req *Request) error {
	if p.ring != nil {
		p.ring.Clear()
	}
	p.record(ctx, req, "logs_clear", "", "")
	p.answer(ctx, req, "Log buffer cleared.", false)
	return nil
}

func (p *Panel) handleEnabled(on bool) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		s, err := p.settings.Update(ctx, func(s *broadcast.Settings) { s.Enabled = on })
		if err != nil {
			return err
		}
		action, toast := "relay_disabled", "Relay stopped."
		if on {
			action, toast = "relay_enabled", "Relay started."
		}
		p.record(ctx, req, action, "", "")
		p.answer(ctx, req, toast, false)
		if on {
			if err := s.Ready(); err != nil {
				req.Logger.Info("relay enabled but not ready", logx.String("reason", err.Error()))
			}
		}
		return p.show(ctx, req, "🛠 Main menu", mainKeyboard(s))
	}
}
