//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// Worker mode never touches the hotkey APIs, so it skips the
	// mainthread indirection they need on darwin.
	for _, arg := range os.Args[1:] {
		if arg == "-worker" {
			run()
			return
		}
	}
	mainthread.Init(run)
}
