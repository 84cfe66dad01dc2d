//go:build !gui

package main

import "candlecard/greeting"

type noGUI struct{}

func (noGUI) Bind(greeting.Card, *card) {}

// Stub for non-GUI builds (never used since guiMode is false)
var guiApp noGUI

func initGUI() {
	panic("candlecard: built without GUI support (rebuild with -tags gui)")
}
