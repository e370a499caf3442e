package panel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"relaybot/internal/broadcast"
	"relaybot/internal/gateway"
	"relaybot/internal/selection"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	"relaybot/pkg/logx"
)

const owner = int64(42)

type sent struct {
	text   string
	markup *tele.ReplyMarkup
}

type answer struct {
	text  string
	alert bool
}

type fakeAdapter struct {
	mu      sync.Mutex
	sends   []sent
	edits   []sent
	answers []answer
	editErr error
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{text, markupOf(opt)})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sends)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, sent{text, markupOf(opt)})
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, id, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer{text, alert})
	return nil
}

func (f *fakeAdapter) lastSend() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		return sent{}
	}
	return f.sends[len(f.sends)-1]
}

func (f *fakeAdapter) lastEdit() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return sent{}
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeAdapter) lastAnswer() answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return answer{}
	}
	return f.answers[len(f.answers)-1]
}

func markupOf(opt *kit.SendOptions) *tele.ReplyMarkup {
	if opt == nil {
		return nil
	}
	rm, _ := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	return rm
}

func buttons(rm *tele.ReplyMarkup) []string {
	if rm == nil {
		return nil
	}
	var out []string
	for _, row := range rm.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Text)
		}
	}
	return out
}

type fakeGateway struct {
	chats   []gateway.Chat
	selfErr error
	toSelf  []string
}

func (g *fakeGateway) ListChats(ctx context.Context) ([]gateway.Chat, error) { return g.chats, nil }

func (g *fakeGateway) Self(ctx context.Context) (gateway.Account, error) {
	return gateway.Account{ID: 7, Username: "relay", FirstName: "Re", LastName: "Lay"}, g.selfErr
}

func (g *fakeGateway) SendToSelf(ctx context.Context, text string) error {
	g.toSelf = append(g.toSelf, text)
	return nil
}

type fakeRunner struct {
	rep broadcast.CycleReport
	err error
}

func (r *fakeRunner) RunCycle(ctx context.Context) (broadcast.CycleReport, error) { return r.rep, r.err }

type rig struct {
	p        *Panel
	ad       *fakeAdapter
	gw       *fakeGateway
	store    *storage.Memory
	settings *broadcast.SettingsStore
	stats    *broadcast.Aggregator
	ring     *logx.Ring
	runner   *fakeRunner
}

func newRig(t *testing.T, chats int) *rig {
	t.Helper()
	r := &rig{
		ad:     &fakeAdapter{},
		gw:     &fakeGateway{},
		store:  storage.NewMemory(),
		ring:   logx.NewRing(10),
		runner: &fakeRunner{},
	}
	for i := 1; i <= chats; i++ {
		r.gw.chats = append(r.gw.chats, gateway.Chat{ID: int64(-1000 - i), Title: fmt.Sprintf("group %d", i), Kind: gateway.KindGroup})
	}
	r.settings = broadcast.NewSettingsStore(r.store, 10)
	r.stats = broadcast.NewAggregator(r.store, logx.Nop())
	r.p = New(Deps{
		Adapter:  r.ad,
		Gateway:  r.gw,
		Settings: r.settings,
		Stats:    r.stats,
		Runner:   r.runner,
		Audit:    r.store,
		Ring:     r.ring,
		Owners:   []int64{owner},
	})
	return r
}

func (r *rig) message(from int64, text string) {
	r.p.Handle(context.Background(), kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ID: 1, ChatID: from, FromID: from, Text: text, IsPrivate: true},
	})
}

func (r *rig) press(data string) {
	r.p.Handle(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb", ChatID: owner, FromID: owner, MessageID: 99, Data: data},
	})
}

func (r *rig) load(t *testing.T) broadcast.Settings {
	t.Helper()
	s, err := r.settings.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func (r *rig) auditActions(t *testing.T) []string {
	t.Helper()
	entries, err := r.store.RecentAudit(context.Background(), 100)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func TestNonOwnerIsIgnored(t *testing.T) {
	r := newRig(t, 3)
	r.message(1, "/start")
	r.p.Handle(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "x", ChatID: 1, FromID: 1, Data: actEnable},
	})
	if len(r.ad.sends)+len(r.ad.edits)+len(r.ad.answers) != 0 {
		t.Fatalf("non-owner got a response: %+v", r.ad)
	}
	if r.load(t).Enabled {
		t.Fatalf("non-owner changed settings")
	}
}

func TestStartShowsMainMenu(t *testing.T) {
	r := newRig(t, 3)
	r.message(owner, "/start")
	got := r.ad.lastSend()
	if !strings.Contains(got.text, "Relay panel") {
		t.Fatalf("unexpected welcome: %q", got.text)
	}
	btns := buttons(got.markup)
	for _, want := range []string{"📍 Source", "🎯 Targets", "⏱ Timing", "📊 Stats", "📋 Status", "🧪 Test", "⚙ Advanced", "📜 Logs", "▶ Start relay"} {
		if !slices.Contains(btns, want) {
			t.Fatalf("main menu misses %q: %v", want, btns)
		}
	}
}

func TestSourcePickWritesSettings(t *testing.T) {
	r := newRig(t, 7)
	r.press(actSource)
	if r.p.Session().Picker.Mode() != selection.ModeSource {
		t.Fatalf("expected source mode")
	}
	btns := buttons(r.ad.lastEdit().markup)
	if !slices.Contains(btns, "📍 [Group] group 1") || !slices.Contains(btns, "Page 1/2") {
		t.Fatalf("unexpected source keyboard: %v", btns)
	}

	r.press(actSourcePage + ":1")
	if r.p.Session().Picker.Page() != 1 {
		t.Fatalf("page not advanced")
	}

	r.press(actSourceSet + ":-1006")
	s := r.load(t)
	if s.SourceID == nil || *s.SourceID != -1006 {
		t.Fatalf("source not saved: %+v", s.SourceID)
	}
	if r.p.Session().Picker.Mode() != selection.ModeIdle {
		t.Fatalf("picker not idle after pick")
	}
	if !strings.Contains(r.ad.lastEdit().text, "group 6") {
		t.Fatalf("confirmation lacks title: %q", r.ad.lastEdit().text)
	}
	if !slices.Contains(r.auditActions(t), "source_set") {
		t.Fatalf("source_set not audited")
	}
}

func TestEmptyChatListAlerts(t *testing.T) {
	r := newRig(t, 0)
	r.press(actTargets)
	a := r.ad.lastAnswer()
	if !a.alert || a.text != noChatsAlert {
		t.Fatalf("expected alert, got %+v", a)
	}
	if r.p.Session().Picker.Mode() != selection.ModeIdle {
		t.Fatalf("picker should stay idle")
	}
}

func TestTargetPickerSave(t *testing.T) {
	r := newRig(t, 3)
	if _, err := r.settings.Update(context.Background(), func(s *broadcast.Settings) { s.TargetIDs = []int64{-1002, -5} }); err != nil {
		t.Fatal(err)
	}
	r.press(actTargets)
	btns := buttons(r.ad.lastEdit().markup)
	if !slices.Contains(btns, "✅ [Group] group 2") || !slices.Contains(btns, "⬜ [Group] group 1") {
		t.Fatalf("selection not seeded: %v", btns)
	}
	r.press(actToggle + ":-1003")
	r.press(actToggle + ":-1002")
	r.press(actSave)

	want := []int64{-1003, -5}
	if got := r.load(t).TargetIDs; !slices.Equal(got, want) {
		t.Fatalf("targets = %v, want %v", got, want)
	}
	if !slices.Contains(r.auditActions(t), "targets_set") {
		t.Fatalf("targets_set not audited")
	}
}

func TestStaleSaveDoesNotWrite(t *testing.T) {
	r := newRig(t, 3)
	r.press(actSave)
	if got := r.load(t).TargetIDs; len(got) != 0 {
		t.Fatalf("stale save wrote targets: %v", got)
	}
	if a := r.ad.lastAnswer(); !strings.Contains(a.text, "expired") {
		t.Fatalf("expected expiry notice, got %+v", a)
	}
}

func TestCustomIntervalInput(t *testing.T) {
	r := newRig(t, 1)
	r.press(actCustom)
	if r.p.Session().Input() != InputInterval {
		t.Fatalf("input mode not set")
	}
	r.message(owner, "15")
	if got := r.load(t).IntervalMinutes; got != 15 {
		t.Fatalf("interval = %d, want 15", got)
	}
	if r.p.Session().Input() != InputNone {
		t.Fatalf("input mode not cleared")
	}

	r.press(actCustom)
	r.message(owner, "0")
	if got := r.load(t).IntervalMinutes; got != 15 {
		t.Fatalf("invalid input changed interval to %d", got)
	}
	if !strings.Contains(r.ad.lastSend().text, "cancelled") {
		t.Fatalf("expected cancel notice, got %q", r.ad.lastSend().text)
	}
}

func TestIntervalPresetAndJitterToggle(t *testing.T) {
	r := newRig(t, 1)
	r.press(actInterval + ":30")
	if got := r.load(t).IntervalMinutes; got != 30 {
		t.Fatalf("interval = %d", got)
	}
	r.press(actJitter)
	if got := r.load(t).JitterSeconds; got != JitterPreset {
		t.Fatalf("jitter = %d, want %d", got, JitterPreset)
	}
	r.press(actJitter)
	if got := r.load(t).JitterSeconds; got != 0 {
		t.Fatalf("jitter = %d, want 0", got)
	}
}

func TestFixedMessageSwitchesMode(t *testing.T) {
	r := newRig(t, 1)
	r.press(actFixedEdit)
	r.message(owner, "  buy now  ")
	s := r.load(t)
	if s.FixedMessage != "buy now" || s.SendMode != broadcast.SendFixed {
		t.Fatalf("unexpected settings: %+v", s)
	}

	r.press(actMode)
	if r.load(t).SendMode != broadcast.SendLast {
		t.Fatalf("mode toggle failed")
	}
}

func TestEnableDisable(t *testing.T) {
	r := newRig(t, 1)
	r.press(actEnable)
	if !r.load(t).Enabled {
		t.Fatalf("not enabled")
	}
	if !slices.Contains(buttons(r.ad.lastEdit().markup), "⛔ Stop relay") {
		t.Fatalf("toggle label not updated")
	}
	r.press(actDisable)
	if r.load(t).Enabled {
		t.Fatalf("not disabled")
	}
	acts := r.auditActions(t)
	if !slices.Contains(acts, "relay_enabled") || !slices.Contains(acts, "relay_disabled") {
		t.Fatalf("toggles not audited: %v", acts)
	}
}

func TestNotModifiedIsSwallowed(t *testing.T) {
	r := newRig(t, 1)
	r.ad.editErr = errors.New("telegram: message is not modified (400)")
	r.press(actStatus)
	if a := r.ad.lastAnswer(); a.alert {
		t.Fatalf("not-modified surfaced as error: %+v", a)
	}

	r.ad.editErr = errors.New("boom")
	r.press(actStatus)
	if a := r.ad.lastAnswer(); !a.alert || !strings.Contains(a.text, "boom") {
		t.Fatalf("expected error alert, got %+v", a)
	}
}

func TestBackResetsSession(t *testing.T) {
	r := newRig(t, 3)
	r.press(actTargets)
	r.p.Session().SetInput(InputFixedMessage)
	r.press(actMain)
	if r.p.Session().Picker.Mode() != selection.ModeIdle || r.p.Session().Input() != InputNone {
		t.Fatalf("back did not reset session")
	}
}

func TestTestSendsToSelf(t *testing.T) {
	r := newRig(t, 1)
	r.press(actTest)
	if len(r.gw.toSelf) != 1 {
		t.Fatalf("expected one self message, got %d", len(r.gw.toSelf))
	}
}

func TestAccountInfo(t *testing.T) {
	r := newRig(t, 4)
	r.press(actAccount)
	got := r.ad.lastSend().text
	if !strings.Contains(got, "@relay") || !strings.Contains(got, "<b>4</b>") {
		t.Fatalf("unexpected account text: %q", got)
	}
}

func TestLogsShowAndClear(t *testing.T) {
	r := newRig(t, 1)
	log := logx.NewWriter(r.ring, "debug")
	log.Info("cycle finished")
	r.press(actLogsShow)
	if !strings.Contains(r.ad.lastSend().text, "cycle finished") {
		t.Fatalf("log line missing: %q", r.ad.lastSend().text)
	}
	r.press(actLogsClear)
	if r.ring.Len() != 0 {
		t.Fatalf("ring not cleared")
	}
}

func TestRunNowReportsInFlight(t *testing.T) {
	r := newRig(t, 1)
	r.runner.err = broadcast.ErrCycleInFlight
	r.press(actRunNow)
	r.p.bg.Wait()
	if !strings.Contains(r.ad.lastSend().text, "already running") {
		t.Fatalf("unexpected report: %q", r.ad.lastSend().text)
	}
}

func TestRunNowReportsOutcome(t *testing.T) {
	r := newRig(t, 1)
	r.runner.rep = broadcast.CycleReport{Mode: broadcast.SendLast, Attempted: 3, Succeeded: 2, Failed: 1}
	r.press(actRunNow)
	r.p.bg.Wait()
	if got := r.ad.lastSend().text; !strings.Contains(got, "2 sent, 1 failed") {
		t.Fatalf("unexpected report: %q", got)
	}
}

func TestStatsTextLimitsAndRestricted(t *testing.T) {
	st := broadcast.Stats{
		StartedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		TotalSuccess: 2,
		TotalFail:    1,
		PerTarget:    map[int64]broadcast.TargetStats{},
	}
	for i := 1; i <= 32; i++ {
		st.PerTarget[int64(-i)] = broadcast.TargetStats{OK: 1}
	}
	st.PerTarget[-1] = broadcast.TargetStats{Fail: 1, LastError: "CHAT_WRITE_FORBIDDEN"}

	got := statsText(st, []int64{-1})
	if !strings.Contains(got, "66.7%") {
		t.Fatalf("rate missing: %s", got)
	}
	if !strings.Contains(got, "(2 more)") {
		t.Fatalf("overflow line missing: %s", got)
	}
	first := strings.Index(got, "<code>-1</code>")
	if first < 0 || !strings.Contains(got[first:], "restricted") {
		t.Fatalf("restricted marker missing: %s", got)
	}
}

func TestStatusTextPreview(t *testing.T) {
	src := int64(-100)
	s := broadcast.Settings{
		SourceID:        &src,
		TargetIDs:       []int64{-1, -2},
		IntervalMinutes: 5,
		SendMode:        broadcast.SendFixed,
		FixedMessage:    strings.Repeat("x", 60),
	}
	got := statusText(s)
	if !strings.Contains(got, strings.Repeat("x", 50)+"...") || strings.Contains(got, strings.Repeat("x", 51)) {
		t.Fatalf("preview not truncated: %s", got)
	}
	if !strings.Contains(got, "-1, -2") {
		t.Fatalf("targets missing: %s", got)
	}
}

func TestCommandOf(t *testing.T) {
	cases := map[string]string{
		"/start":          "start",
		"/Menu@relay_bot": "menu",
		"/start now":      "start",
		"hello":           "",
		"":                "",
	}
	for in, want := range cases {
		if got := commandOf(in); got != want {
			t.Fatalf("commandOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDispatchLoopStopsOnClose(t *testing.T) {
	r := newRig(t, 1)
	updates := make(chan kit.Update, 1)
	done := make(chan error, 1)
	go func() { done <- r.p.DispatchLoop(context.Background(), updates) }()
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb", ChatID: owner, FromID: owner, Data: actEnable}}

	deadline := time.Now().Add(2 * time.Second)
	for !r.load(t).Enabled {
		if time.Now().After(deadline) {
			t.Fatalf("update was not dispatched")
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(updates)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DispatchLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("DispatchLoop did not return")
	}
}
