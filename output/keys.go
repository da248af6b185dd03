package output

import (
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"
)

// KeySender simulates the keystrokes the dispatcher needs.
type KeySender interface {
	Paste() error // platform paste chord (ctrl+v / cmd+v)
	Enter() error
}

type systemKeys struct {
	kb keybd_event.KeyBonding
}

// NewSystemKeys prepares a virtual keyboard. On linux the underlying
// uinput device needs a moment before the compositor sees it.
func NewSystemKeys() (KeySender, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	return &systemKeys{kb: kb}, nil
}

func (s *systemKeys) Paste() error {
	kb := s.kb
	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return kb.Launching()
}

func (s *systemKeys) Enter() error {
	kb := s.kb
	kb.SetKeys(keybd_event.VK_ENTER)
	return kb.Launching()
}
