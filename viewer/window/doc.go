// Package window shows a viewer session in a desktop window.
//
// The window is built with ebiten and only compiled with the ebiten build
// tag:
//
//	go run -tags ebiten . window
//
// Keys: S starts stepping, Space or X stops, N sends a single step, Esc or Q
// quits. Without the tag Run reports ErrNoWindow and the headless and MCP
// modes remain available.
package window
