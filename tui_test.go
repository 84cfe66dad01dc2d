package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"candlecard/blow"
	"candlecard/greeting"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

type fakeControl struct {
	opens, starts, resets int
	startErr              error
	level                 float64
}

func (f *fakeControl) Open(context.Context) error {
	f.opens++
	return f.startErr
}

func (f *fakeControl) Start(context.Context) error {
	f.starts++
	return f.startErr
}

func (f *fakeControl) Reset() { f.resets++ }

func (f *fakeControl) Level() float64 { return f.level }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m tuiModel, msg tea.Msg) (tuiModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(tuiModel), cmd
}

func newTestModel(ctl *fakeControl) tuiModel {
	m := newTUIModel(greeting.Default(), ctl)
	m.width, m.height = 100, 60
	return m
}

func openedModel(t *testing.T, ctl *fakeControl) tuiModel {
	t.Helper()
	m := newTestModel(ctl)
	m, cmd := update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("opening the card should start the detector")
	}
	m, _ = update(t, m, cmd())
	m, _ = update(t, m, DetectorStateMsg{State: blow.State{Armed: true}})
	return m
}

func TestOpenCard(t *testing.T) {
	ctl := &fakeControl{}
	m := newTestModel(ctl)
	if !strings.Contains(m.View(), "to open the card") {
		t.Error("closed card should invite opening")
	}

	m = openedModel(t, ctl)
	if m.screen != screenCake {
		t.Fatalf("screen = %v, want cake", m.screen)
	}
	if ctl.opens != 1 {
		t.Errorf("Open called %d times, want 1", ctl.opens)
	}

	view := m.View()
	for _, want := range []string{"Happy birthday, Linh", "August 2025", "blow out the candles", "mic "} {
		if !strings.Contains(view, want) {
			t.Errorf("cake view missing %q", want)
		}
	}

	// A second enter while listening does nothing.
	if _, cmd := update(t, m, key("enter")); cmd != nil {
		t.Error("enter while armed should not restart the detector")
	}
}

func TestCelebrationOverlay(t *testing.T) {
	ctl := &fakeControl{}
	m := openedModel(t, ctl)

	m, _ = update(t, m, BlownOutMsg{})
	if !m.celebrating || !m.state.Latched {
		t.Fatal("blown out should latch and celebrate")
	}
	view := m.View()
	for _, w := range greeting.Default().Wishes {
		if !strings.Contains(view, w[:20]) {
			t.Errorf("celebration missing wish %q", w)
		}
	}

	m, cmd := update(t, m, key("c"))
	if cmd == nil || !m.celebrating {
		t.Error("c should copy the wishes and keep the overlay open")
	}
	m, _ = update(t, m, copiedMsg{})
	if !m.copied || !strings.Contains(m.View(), "copied") {
		t.Error("copy confirmation not shown")
	}

	m, _ = update(t, m, key("x"))
	if m.celebrating {
		t.Error("any key should close the overlay")
	}
	if ctl.resets != 0 {
		t.Error("closing the overlay must not relight the candles")
	}
}

func TestResetOnlyWhenLatched(t *testing.T) {
	ctl := &fakeControl{}
	m := openedModel(t, ctl)

	m, _ = update(t, m, key("r"))
	if ctl.resets != 0 {
		t.Fatal("r before the candles are out should be ignored")
	}
	if strings.Contains(m.View(), "relight") {
		t.Error("relight hint shown while lit")
	}

	m, _ = update(t, m, DetectorStateMsg{State: blow.State{Armed: true, Latched: true}})
	if !strings.Contains(m.View(), "relight") {
		t.Error("relight hint missing once latched")
	}
	m, _ = update(t, m, key("r"))
	if ctl.resets != 1 {
		t.Errorf("resets = %d, want 1", ctl.resets)
	}
	if m.state.Latched {
		t.Error("still latched after reset")
	}
}

func TestPermissionNoticeOnce(t *testing.T) {
	denied := fmt.Errorf("%w: no device", blow.ErrPermissionDenied)
	ctl := &fakeControl{startErr: denied}
	m := newTestModel(ctl)

	m, cmd := update(t, m, key("enter"))
	m, _ = update(t, m, cmd())
	m, _ = update(t, m, PermissionDeniedMsg{Err: denied})
	if !m.notice {
		t.Fatal("permission notice not shown")
	}
	if !strings.Contains(m.View(), "Microphone unavailable") {
		t.Error("notice view missing title")
	}

	m, cmd = update(t, m, key("enter"))
	if m.notice || cmd != nil {
		t.Fatal("first key should only dismiss the notice")
	}

	m, cmd = update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("enter on the cake should retry the microphone")
	}
	m, _ = update(t, m, cmd())
	if ctl.starts != 1 {
		t.Errorf("starts = %d, want 1", ctl.starts)
	}
	if m.notice {
		t.Error("notice shown a second time")
	}
}

func TestStreamEnded(t *testing.T) {
	m := openedModel(t, &fakeControl{})
	m, _ = update(t, m, StreamEndedMsg{})
	if m.state.Armed {
		t.Error("still armed after stream end")
	}
	if !strings.Contains(m.View(), "microphone stopped") {
		t.Error("stream end not reported")
	}
}

func TestTickPollsLevel(t *testing.T) {
	ctl := &fakeControl{level: 100}
	m := openedModel(t, ctl)
	m, cmd := update(t, m, tickMsg{})
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if m.level != 40 {
		t.Errorf("level = %v, want 40", m.level)
	}
}

func TestQuit(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		_, cmd := update(t, newTestModel(&fakeControl{}), key(k))
		if cmd == nil {
			t.Fatalf("%s: no quit command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: not a quit", k)
		}
	}
}

func TestFlameFor(t *testing.T) {
	tests := []struct {
		state blow.State
		want  flameState
	}{
		{blow.State{Armed: true}, flameLit},
		{blow.State{Armed: true, Blowing: true}, flameLow},
		{blow.State{Armed: true, Pending: true}, flameLow},
		{blow.State{Armed: true, Latched: true}, flameOut},
		{blow.State{}, flameLit},
	}
	for _, tt := range tests {
		if got := flameFor(tt.state); got != tt.want {
			t.Errorf("flameFor(%+v) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestRenderCandles(t *testing.T) {
	lit := renderCandles("25", flameLit, 0)
	if n := len(strings.Split(lit, "\n")); n != 8 {
		t.Errorf("candles have %d rows, want 8", n)
	}
	if !strings.Contains(lit, "@") || !strings.Contains(lit, "█") {
		t.Errorf("lit candles missing flame or body:\n%s", lit)
	}
	if out := renderCandles("25", flameOut, 0); strings.Contains(out, "@") || !strings.Contains(out, "~") {
		t.Errorf("blown-out candles should smoke:\n%s", out)
	}
	if empty := renderCandles("x", flameLit, 0); strings.TrimSpace(empty) != "" {
		t.Errorf("non-digit drew a candle: %q", empty)
	}
}

func TestRenderCalendar(t *testing.T) {
	m := newTestModel(&fakeControl{})
	cal := renderCalendar(m.card, m.rows)
	if !strings.Contains(cal, "August 2025") {
		t.Error("month label missing")
	}
	if !strings.Contains(cal, " S  M  T  W  T  F  S") {
		t.Errorf("weekday header missing:\n%s", cal)
	}
	if !strings.Contains(cal, "31") || strings.Contains(cal, "32") {
		t.Errorf("wrong day count:\n%s", cal)
	}
}

func TestRenderLevel(t *testing.T) {
	if bar := renderLevel(0, 50, 20); strings.Contains(bar, "█") {
		t.Errorf("silent level drew a bar: %q", bar)
	}
	if bar := renderLevel(255, 50, 20); strings.Count(bar, "█") != 19 {
		t.Errorf("full level = %q", bar)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
	}{
		{"ascii", "make a wish and blow", 10},
		{"accents", "Chúc mừng sinh nhật, chúc bạn luôn vui vẻ và hạnh phúc", 12},
		{"long word", "a" + strings.Repeat("ú", 60), 48},
		{"wide runes", "お誕生日おめでとうございます", 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := wrapText(tt.text, tt.width)
			for _, l := range lines {
				if !utf8.ValidString(l) {
					t.Errorf("line %q is not valid UTF-8", l)
				}
				if w := ansi.StringWidth(l); w > tt.width {
					t.Errorf("line %q is %d columns, want <= %d", l, w, tt.width)
				}
			}
			strip := func(s string) string { return strings.ReplaceAll(s, " ", "") }
			if got := strip(strings.Join(lines, "")); got != strip(tt.text) {
				t.Errorf("wrapped text = %q, want %q", got, strip(tt.text))
			}
		})
	}
}
