package panel

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/broadcast"
	"relaybot/internal/gateway"
	"relaybot/pkg/logx"
	"relaybot/pkg/tgui"
)

const (
	statsTargetLimit  = 30
	fixedPreviewRunes = 50
	logLines          = 20
	timeLayout        = "2006-01-02 15:04:05 MST"
)

const welcomeText = `👋 <b>Hello!</b>

🛠 <b>Relay panel</b>

This bot relays posts from one group or channel to many others through your Telegram account, on a timer.

📍 Pick the source conversation.
🎯 Choose the target groups and channels.
⏱ Set the interval and optional jitter.
📨 Switch between the latest source post and a fixed message.
📜 Read recent logs.
🧪 Send a test message to Saved Messages.`

func fmtTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

func modeLabel(m broadcast.SendMode) string {
	if m == broadcast.SendFixed {
		return "fixed message"
	}
	return "latest source message"
}

func statusText(s broadcast.Settings) string {
	source := "-"
	if s.SourceID != nil {
		source = strconv.FormatInt(*s.SourceID, 10)
	}
	targets := "none"
	if len(s.TargetIDs) > 0 {
		parts := make([]string, len(s.TargetIDs))
		for i, id := range s.TargetIDs {
			parts[i] = strconv.FormatInt(id, 10)
		}
		targets = strings.Join(parts, ", ")
	}
	state := "stopped"
	if s.Enabled {
		state = "running"
	}

	var b strings.Builder
	b.WriteString(tgui.B("📋 Current relay settings").String() + "\n\n")
	fmt.Fprintf(&b, "State: %s\n", tgui.Code(state))
	fmt.Fprintf(&b, "Source: %s\n", tgui.Code(source))
	fmt.Fprintf(&b, "Targets: %s\n", tgui.Code(targets))
	fmt.Fprintf(&b, "Interval: %s min\n", tgui.Code(strconv.Itoa(s.IntervalMinutes)))
	fmt.Fprintf(&b, "Jitter: %s s\n", tgui.Code(strconv.Itoa(s.JitterSeconds)))
	fmt.Fprintf(&b, "Mode: %s\n", tgui.Code(modeLabel(s.SendMode)))
	if s.SendMode == broadcast.SendFixed && s.FixedMessage != "" {
		fmt.Fprintf(&b, "Fixed message: %s\n", tgui.Code(tgui.TruncRunes(s.FixedMessage, fixedPreviewRunes)))
	}
	if s.LastRunAt != nil {
		fmt.Fprintf(&b, "Last run: %s\n", tgui.Code(fmtTime(s.LastRunAt)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// statOrder lists current targets first, then any other recorded ids ascending.
func statOrder(st broadcast.Stats, targets []int64) []int64 {
	out := make([]int64, 0, len(st.PerTarget))
	seen := make(map[int64]struct{}, len(st.PerTarget))
	for _, id := range targets {
		if _, ok := st.PerTarget[id]; ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	var rest []int64
	for id := range st.PerTarget {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func statsText(st broadcast.Stats, targets []int64) string {
	var b strings.Builder
	b.WriteString(tgui.B("📊 Relay statistics").String() + "\n\n")
	fmt.Fprintf(&b, "Started: %s\n", tgui.Code(fmtTime(&st.StartedAt)))
	fmt.Fprintf(&b, "Last reset: %s\n\n", tgui.Code(fmtTime(st.LastResetAt)))
	fmt.Fprintf(&b, "Delivered: %s ✅\n", tgui.B(strconv.FormatInt(st.TotalSuccess, 10)))
	fmt.Fprintf(&b, "Failed: %s ❌\n", tgui.B(strconv.FormatInt(st.TotalFail, 10)))
	fmt.Fprintf(&b, "Success rate: %s\n\n", tgui.B(fmt.Sprintf("%.1f%%", st.SuccessRate())))
	fmt.Fprintf(&b, "Cycles: %s\n", tgui.Code(strconv.FormatInt(st.TotalLoops, 10)))
	fmt.Fprintf(&b, "Average cycle: %s\n\n", tgui.Code(fmt.Sprintf("%d ms", st.AvgLoopMs)))
	b.WriteString(tgui.B("Per target").String() + "\n")

	ids := statOrder(st, targets)
	if len(ids) == 0 {
		b.WriteString(tgui.I("No target statistics yet.").String())
		return b.String()
	}
	for i, id := range ids {
		if i == statsTargetLimit {
			fmt.Fprintf(&b, "%s\n", tgui.I(fmt.Sprintf("(%d more)", len(ids)-statsTargetLimit)))
			break
		}
		t := st.PerTarget[id]
		line := fmt.Sprintf("• %s → ✅ %d / ❌ %d", tgui.Code(strconv.FormatInt(id, 10)), t.OK, t.Fail)
		if st.Restricted(id) {
			line += " 🚫 (restricted)"
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func accountText(a gateway.Account, chats int) string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	user := "-"
	if a.Username != "" {
		user = "@" + a.Username
	}
	return tgui.JoinH("\n",
		tgui.B("👤 Account"),
		"",
		"ID: "+tgui.Code(strconv.FormatInt(a.ID, 10)),
		"Username: "+tgui.Code(user),
		"Name: "+tgui.Code(name),
		"Groups and channels: "+tgui.B(strconv.Itoa(chats)),
	).String()
}

func logsText(entries []logx.Entry) string {
	if len(entries) == 0 {
		return tgui.Pre("No logs yet").String()
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return tgui.Pre(strings.Join(lines, "\n")).String()
}

func reportText(rep broadcast.CycleReport) string {
	if rep.Skipped != "" {
		return "⏭ Cycle skipped: " + tgui.Esc(rep.Skipped).String()
	}
	return fmt.Sprintf("🚀 Cycle done (%s): %d sent, %d failed.", modeLabel(rep.Mode), rep.Succeeded, rep.Failed)
}
