//go:build !windows

package shutdown

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestListenDeliversSIGTERM(t *testing.T) {
	ch := Listen()
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	select {
	case sig := <-ch:
		if sig != syscall.SIGTERM {
			t.Errorf("received %v", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}
