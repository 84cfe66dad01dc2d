//go:build darwin

package main

import "runtime"

// Cocoa only accepts windows from the process's first thread.
func init() {
	runtime.LockOSThread()
}
