package main

import "candlecard/blow"

// EventSink abstracts the display layer so both the Bubble Tea TUI
// and the fyne GUI can receive the same card events.
type EventSink interface {
	DetectorState(s blow.State)
	BlownOut()
	PermissionDenied(err error)
	StreamEnded()
}

type nopSink struct{}

func (nopSink) DetectorState(blow.State) {}

func (nopSink) BlownOut() {}

func (nopSink) PermissionDenied(error) {}

func (nopSink) StreamEnded() {}
