// Package hotkey watches the configured global dictation combo and
// turns raw key transitions into start/stop intents for the host.
package hotkey

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// nudge delivers an edge without blocking; a slow consumer drops the
// repeat, not the edge already queued.
func nudge(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
