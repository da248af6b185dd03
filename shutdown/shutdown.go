// Package shutdown funnels the platform's termination signals into a
// single channel the host loop can select on.
package shutdown

import (
	"os"
	"os/signal"
)

// Listen registers for the platform's termination signals and returns
// the channel they are delivered on.
func Listen() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals()...)
	return ch
}
