package hotkey

import (
	"sync/atomic"
	"time"
)

// Controller layers tap-to-toggle and hold-to-talk onto one combo: a
// press always starts dictation; releasing before longPress leaves it
// toggled on until the next tap, holding past longPress stops it on
// release.
type Controller struct {
	startCh chan struct{}
	stopCh  chan struct{}
	toggled atomic.Bool
}

func NewController(hk Hotkey, longPress time.Duration) *Controller {
	c := &Controller{
		startCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}, 1),
	}
	go c.run(hk, longPress)
	return c
}

// Starts signals when dictation should begin.
func (c *Controller) Starts() <-chan struct{} { return c.startCh }

// Stops signals when dictation should end, for both hold and toggle.
func (c *Controller) Stops() <-chan struct{} { return c.stopCh }

// IsToggle reports whether the current recording is toggled on rather
// than held.
func (c *Controller) IsToggle() bool { return c.toggled.Load() }

func (c *Controller) run(hk Hotkey, longPress time.Duration) {
	for {
		<-hk.Keydown()
		c.toggled.Store(false)
		select {
		case c.startCh <- struct{}{}:
		default:
		}

		timer := time.NewTimer(longPress)
		select {
		case <-timer.C:
			// Held past the threshold: stop on release.
			<-hk.Keyup()
			c.signalStop()
		case <-hk.Keyup():
			// Short tap: toggled on until the next tap.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			c.toggled.Store(true)
			<-hk.Keydown()
			<-hk.Keyup()
			c.toggled.Store(false)
			c.signalStop()
		}
	}
}

func (c *Controller) signalStop() {
	select {
	case c.stopCh <- struct{}{}:
	default:
	}
}
