//go:build !linux

package hotkey

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

// systemHotkey binds the combo through the OS global-shortcut API and
// collapses its two event streams into the buffered channels the
// controller polls.
type systemHotkey struct {
	combo   Combo
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	done    chan struct{}
	once    sync.Once
}

func New(c Combo) Hotkey {
	return &systemHotkey{
		combo:   c,
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (h *systemHotkey) Register() error {
	mods, key, err := h.combo.systemBinding()
	if err != nil {
		return err
	}
	h.hk = hotkey.New(mods, key)
	if err := h.hk.Register(); err != nil {
		return fmt.Errorf("registering %s: %w", h.combo, err)
	}
	go h.forward()
	return nil
}

func (h *systemHotkey) forward() {
	for {
		select {
		case <-h.hk.Keydown():
			nudge(h.keydown)
		case <-h.hk.Keyup():
			nudge(h.keyup)
		case <-h.done:
			return
		}
	}
}

func (h *systemHotkey) Unregister() {
	h.once.Do(func() {
		close(h.done)
		if h.hk != nil {
			h.hk.Unregister()
		}
	})
}

func (h *systemHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *systemHotkey) Keyup() <-chan struct{}   { return h.keyup }

func (c Combo) systemBinding() ([]hotkey.Modifier, hotkey.Key, error) {
	var mods []hotkey.Modifier
	if c.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if c.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	if c.Alt {
		// ModAlt and ModOption are not portable between the
		// platforms this file builds for.
		return nil, 0, fmt.Errorf("alt bindings are not supported on this platform (%s)", c)
	}
	key, ok := systemKeys[c.Key]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported key %q in binding %s", c.Key, c)
	}
	return mods, key, nil
}

var systemKeys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"0":      hotkey.Key0,
	"1":      hotkey.Key1,
	"2":      hotkey.Key2,
	"3":      hotkey.Key3,
	"4":      hotkey.Key4,
	"5":      hotkey.Key5,
	"6":      hotkey.Key6,
	"7":      hotkey.Key7,
	"8":      hotkey.Key8,
	"9":      hotkey.Key9,
	"a":      hotkey.KeyA,
	"b":      hotkey.KeyB,
	"c":      hotkey.KeyC,
	"d":      hotkey.KeyD,
	"e":      hotkey.KeyE,
	"f":      hotkey.KeyF,
	"g":      hotkey.KeyG,
	"h":      hotkey.KeyH,
	"i":      hotkey.KeyI,
	"j":      hotkey.KeyJ,
	"k":      hotkey.KeyK,
	"l":      hotkey.KeyL,
	"m":      hotkey.KeyM,
	"n":      hotkey.KeyN,
	"o":      hotkey.KeyO,
	"p":      hotkey.KeyP,
	"q":      hotkey.KeyQ,
	"r":      hotkey.KeyR,
	"s":      hotkey.KeyS,
	"t":      hotkey.KeyT,
	"u":      hotkey.KeyU,
	"v":      hotkey.KeyV,
	"w":      hotkey.KeyW,
	"x":      hotkey.KeyX,
	"y":      hotkey.KeyY,
	"z":      hotkey.KeyZ,
}

func Diagnose() (string, error) {
	return "global shortcut support available", nil
}
