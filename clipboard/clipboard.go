// Package clipboard wraps the system clipboard.
package clipboard

import cb "github.com/atotto/clipboard"

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Clipboard is the seam the dispatcher uses so tests can substitute an
// in-memory implementation.
type Clipboard interface {
	Read() (string, error)
	Copy(text string) error
}

// System is the real clipboard.
type System struct{}

func (System) Read() (string, error) { return Read() }
func (System) Copy(text string) error { return Copy(text) }
