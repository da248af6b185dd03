// Package output moves accepted text into the focused application: a
// clipboard write followed by a simulated paste keystroke, with the
// policy-configured settle delays in between.
package output

import (
	"fmt"
	"time"

	"murmur/clipboard"
	"murmur/config"
)

const restoreDelay = 600 * time.Millisecond

// Outcome reports what the dispatcher managed to do. A failed paste is a
// warning, not an error: the text stays on the clipboard either way.
type Outcome struct {
	Pasted  bool
	Warning string
}

type Dispatcher struct {
	clip  clipboard.Clipboard
	keys  KeySender
	sleep func(time.Duration)

	// RestorePrevious re-copies whatever was on the clipboard before
	// the dispatch, shortly after the paste lands.
	RestorePrevious bool
}

func NewDispatcher(clip clipboard.Clipboard, keys KeySender) *Dispatcher {
	return &Dispatcher{clip: clip, keys: keys, sleep: time.Sleep, RestorePrevious: true}
}

// Dispatch writes text to the clipboard and simulates the paste (and
// optional enter) into whatever window holds focus.
func (d *Dispatcher) Dispatch(text string, pol config.Policy) Outcome {
	if text == "" {
		return Outcome{Warning: "no text to paste"}
	}

	// Let any clipboard contention from the previous cycle settle.
	d.sleep(pol.PostRecordingDelay)

	var prev string
	if d.RestorePrevious {
		prev, _ = d.clip.Read()
	}

	if err := d.clip.Copy(text); err != nil {
		return Outcome{Warning: fmt.Sprintf("clipboard error: %v", err)}
	}
	d.sleep(pol.PasteDelay)

	if d.keys == nil {
		return Outcome{Warning: "paste unavailable: no key sender"}
	}
	if err := d.keys.Paste(); err != nil {
		return Outcome{Warning: fmt.Sprintf("paste failed: %v", err)}
	}

	var warning string
	if pol.AutoEnter {
		d.sleep(80 * time.Millisecond)
		if err := d.keys.Enter(); err != nil {
			warning = fmt.Sprintf("auto-enter failed: %v", err)
		}
	}

	if d.RestorePrevious && prev != "" && prev != text {
		go func() {
			time.Sleep(restoreDelay)
			_ = d.clip.Copy(prev)
		}()
	}

	return Outcome{Pasted: true, Warning: warning}
}
