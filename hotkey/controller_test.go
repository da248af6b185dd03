package hotkey

import (
	"testing"
	"time"
)

func waitStart(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Starts():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for start")
	}
}

func waitStop(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Stops():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stop")
	}
}

func TestControllerLongPress(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	c := NewController(fk, threshold)

	fk.SimKeydown()
	waitStart(t, c)

	time.Sleep(threshold + 20*time.Millisecond)
	if c.IsToggle() {
		t.Error("expected hold mode after long press")
	}
	fk.SimKeyup()
	waitStop(t, c)
}

func TestControllerShortTap(t *testing.T) {
	fk := NewFake()
	threshold := 200 * time.Millisecond
	c := NewController(fk, threshold)

	fk.SimKeydown()
	waitStart(t, c)
	fk.SimKeyup()
	time.Sleep(20 * time.Millisecond)
	if !c.IsToggle() {
		t.Error("expected toggle mode after short tap")
	}

	select {
	case <-c.Stops():
		t.Fatal("unexpected stop after short tap")
	case <-time.After(50 * time.Millisecond):
	}

	// Second tap ends the toggled recording.
	fk.SimKeydown()
	fk.SimKeyup()
	waitStop(t, c)
}

func TestControllerMultipleCycles(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	c := NewController(fk, threshold)

	// Long press cycle.
	fk.SimKeydown()
	waitStart(t, c)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitStop(t, c)

	// Tap-toggle cycle.
	fk.SimKeydown()
	waitStart(t, c)
	fk.SimKeyup()
	time.Sleep(20 * time.Millisecond)
	fk.SimKeydown()
	fk.SimKeyup()
	waitStop(t, c)

	// Long press again.
	fk.SimKeydown()
	waitStart(t, c)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitStop(t, c)
}
