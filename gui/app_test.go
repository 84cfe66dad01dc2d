//go:build gui

package gui

import (
	"context"
	"testing"

	"candlecard/blow"
)

type fakeControls struct {
	state  blow.State
	resets int
}

func (f *fakeControls) Open(context.Context) error  { return nil }
func (f *fakeControls) Start(context.Context) error { return nil }
func (f *fakeControls) Reset()                      { f.resets++; f.state = blow.State{Armed: true} }
func (f *fakeControls) Level() float64              { return 0 }
func (f *fakeControls) WishText() string            { return "" }
func (f *fakeControls) State() blow.State           { return f.state }

func TestRelightOnlyWhenLatched(t *testing.T) {
	tests := []struct {
		name  string
		state blow.State
		want  int
	}{
		{"armed", blow.State{Armed: true}, 0},
		{"pending confirmation", blow.State{Armed: true, Pending: true}, 0},
		{"blowing", blow.State{Armed: true, Blowing: true}, 0},
		{"not listening", blow.State{}, 0},
		{"latched", blow.State{Armed: true, Latched: true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeControls{state: tt.state}
			a := &App{ctl: ctl}
			a.reset()
			if ctl.resets != tt.want {
				t.Errorf("resets = %d, want %d", ctl.resets, tt.want)
			}
		})
	}
}

func TestRelightTwiceResetsOnce(t *testing.T) {
	ctl := &fakeControls{state: blow.State{Armed: true, Latched: true}}
	a := &App{ctl: ctl}
	a.reset()
	a.reset()
	if ctl.resets != 1 {
		t.Errorf("resets = %d, want 1", ctl.resets)
	}
}

func TestRelightWithoutControls(t *testing.T) {
	a := &App{}
	a.reset()
}
