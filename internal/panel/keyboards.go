package panel

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"relaybot/internal/broadcast"
	"relaybot/internal/selection"
	"relaybot/pkg/tgui"
)

// Callback actions.
const (
	actMain       = "main"
	actNoop       = "noop"
	actSource     = "src"
	actSourcePage = "src_page"
	actSourceSet  = "src_set"
	actTargets    = "tgt"
	actTargetPage = "tgt_page"
	actToggle     = "tgt_toggle"
	actSelectAll  = "tgt_all"
	actClear      = "tgt_clear"
	actSave       = "tgt_save"
	actTiming     = "time"
	actInterval   = "time_set"
	actCustom     = "time_custom"
	actJitter     = "jitter"
	actStats      = "stats"
	actStatsReset = "stats_reset"
	actStatus     = "status"
	actTest       = "test"
	actAdvanced   = "adv"
	actMode       = "mode"
	actFixedEdit  = "fixed_edit"
	actAccount    = "acct"
	actRunNow     = "run_now"
	actLogs       = "logs"
	actLogsShow   = "logs_show"
	actLogsClear  = "logs_clear"
	actEnable     = "enable"
	actDisable    = "disable"
)

// IntervalPresets are the one-tap interval choices in minutes.
var IntervalPresets = []int{1, 5, 10, 30, 60}

// JitterPreset is the value the jitter toggle switches to.
const JitterPreset = 30

func btn(text, action string) tele.Btn { return tgui.Btn(text, tgui.Data(action, "")) }

func backRow() []tele.Btn { return []tele.Btn{btn("⬅️ Main menu", actMain)} }

func mainKeyboard(s broadcast.Settings) *tgui.Inline {
	toggle := btn("▶ Start relay", actEnable)
	if s.Enabled {
		toggle = btn("⛔ Stop relay", actDisable)
	}
	return tgui.NewInline().
		Row(btn("📍 Source", actSource), btn("🎯 Targets", actTargets)).
		Row(btn("⏱ Timing", actTiming), btn("📊 Stats", actStats)).
		Row(btn("📋 Status", actStatus), btn("🧪 Test", actTest)).
		Row(btn("⚙ Advanced", actAdvanced), btn("📜 Logs", actLogs)).
		Row(toggle)
}

func navRow(pageAction string, m *selection.Machine) []tele.Btn {
	page, pages := m.Page(), m.Pages()
	var row []tele.Btn
	if page > 0 {
		row = append(row, tgui.Btn("⬅️", tgui.Data(pageAction, strconv.Itoa(page-1))))
	}
	row = append(row, tgui.Btn(tgui.PageLabel(page, selection.PageSize, m.Candidates()), tgui.Data(actNoop, "")))
	if page < pages-1 {
		row = append(row, tgui.Btn("➡️", tgui.Data(pageAction, strconv.Itoa(page+1))))
	}
	return row
}

func sourceKeyboard(m *selection.Machine) *tgui.Inline {
	kb := tgui.NewInline()
	for _, c := range m.PageItems() {
		kb.Row(tgui.Btn(tgui.TruncRunes(fmt.Sprintf("📍 [%s] %s", c.Kind.Label(), c.Title), 60),
			tgui.Data(actSourceSet, strconv.FormatInt(c.ID, 10))))
	}
	return kb.Row(navRow(actSourcePage, m)...).Row(backRow()...)
}

func targetsKeyboard(m *selection.Machine) *tgui.Inline {
	kb := tgui.NewInline()
	for _, c := range m.PageItems() {
		mark := "⬜"
		if m.IsSelected(c.ID) {
			mark = "✅"
		}
		kb.Row(tgui.Btn(tgui.TruncRunes(fmt.Sprintf("%s [%s] %s", mark, c.Kind.Label(), c.Title), 60),
			tgui.Data(actToggle, strconv.FormatInt(c.ID, 10))))
	}
	return kb.Row(navRow(actTargetPage, m)...).
		Row(btn("✅ Select all", actSelectAll), btn("🧹 Clear", actClear)).
		Row(btn("💾 Save targets", actSave), btn("⬅️ Main menu", actMain))
}

func timingKeyboard(s broadcast.Settings) *tgui.Inline {
	presets := make([]tele.Btn, 0, len(IntervalPresets))
	for _, m := range IntervalPresets {
		label := fmt.Sprintf("%d min", m)
		if m == s.IntervalMinutes {
			label = "• " + label
		}
		presets = append(presets, tgui.Btn(label, tgui.Data(actInterval, strconv.Itoa(m))))
	}
	jitter := fmt.Sprintf("🎲 Jitter ±%ds", JitterPreset)
	if s.JitterSeconds > 0 {
		jitter = fmt.Sprintf("🎲 Jitter off (now ±%ds)", s.JitterSeconds)
	}
	return tgui.NewInline().
		Grid(3, presets).
		Row(btn("🔢 Custom minutes", actCustom)).
		Row(btn(jitter, actJitter)).
		Row(backRow()...)
}

func statsKeyboard() *tgui.Inline {
	return tgui.NewInline().Row(btn("🔄 Reset stats", actStatsReset), btn("⬅️ Main menu", actMain))
}

func advancedKeyboard(s broadcast.Settings) *tgui.Inline {
	mode := "📨 Mode: last message (switch to fixed)"
	if s.SendMode == broadcast.SendFixed {
		mode = "📝 Mode: fixed message (switch to last)"
	}
	return tgui.NewInline().
		Row(btn(mode, actMode)).
		Row(btn("✏ Set fixed message", actFixedEdit)).
		Row(btn("👤 Account info", actAccount)).
		Row(btn("🚀 Run now", actRunNow)).
		Row(backRow()...)
}

func logsKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(btn("📜 Last 20", actLogsShow), btn("🧹 Clear buffer", actLogsClear)).
		Row(backRow()...)
}

func backKeyboard() *tgui.Inline { return tgui.NewInline().Row(backRow()...) }
