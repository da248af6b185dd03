//go:build windows

package shutdown

import "os"

// Ctrl+C and Ctrl+Break both arrive as os.Interrupt; Windows has no
// SIGTERM equivalent worth registering.
func signals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
