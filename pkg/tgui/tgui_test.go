package tgui

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestPaginateSliceClamps(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	sub, page := PaginateSlice(items, 1, 5)
	if page != 1 || len(sub) != 2 || sub[0] != 6 {
		t.Fatalf("unexpected page 1: %v (page=%d)", sub, page)
	}
	sub, page = PaginateSlice(items, 9, 5)
	if page != 1 || len(sub) != 2 {
		t.Fatalf("expected clamp to last page, got page=%d sub=%v", page, sub)
	}
	sub, page = PaginateSlice(items, -3, 5)
	if page != 0 || len(sub) != 5 {
		t.Fatalf("expected clamp to first page, got page=%d sub=%v", page, sub)
	}
	sub, page = PaginateSlice([]int{}, 2, 5)
	if page != 0 || len(sub) != 0 {
		t.Fatalf("expected empty first page, got page=%d sub=%v", page, sub)
	}
}

func TestPageLabel(t *testing.T) {
	if got := PageLabel(0, 5, 0); got != "Page 1/1" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := PageLabel(2, 5, 12); got != "Page 3/3" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestDataRoundTrip(t *testing.T) {
	d := Data("src_pick", "-1001234567890")
	action, payload := ParseData(d)
	if action != "src_pick" || payload != "-1001234567890" {
		t.Fatalf("unexpected parse: %q %q", action, payload)
	}
	action, payload = ParseData("menu")
	if action != "menu" || payload != "" {
		t.Fatalf("unexpected parse: %q %q", action, payload)
	}
	if _, err := CheckedData("x", strings.Repeat("y", 80)); err != ErrCallbackDataTooLong {
		t.Fatalf("expected ErrCallbackDataTooLong, got %v", err)
	}
}

func TestTruncRunes(t *testing.T) {
	if got := TruncRunes("héllo world", 5); got != "héllo..." {
		t.Fatalf("unexpected %q", got)
	}
	if got := TruncRunes("short", 50); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestInlineGrid(t *testing.T) {
	kb := NewInline().Grid(2, []tele.Btn{Btn("a", "a"), Btn("b", "b"), Btn("c", "c")})
	if len(kb.Rows()) != 2 || len(kb.Rows()[1]) != 1 {
		t.Fatalf("unexpected rows: %+v", kb.Rows())
	}
}
