package main

import (
	"errors"
	"fmt"
	"os"

	"murmur/audio"

	"golang.org/x/term"
)

// errPickCancelled means the user backed out of the picker; the saved
// device choice must stay untouched.
var errPickCancelled = errors.New("device selection cancelled")

// selectDevice runs the interactive microphone picker. With a single
// capture device there is nothing to choose.
func selectDevice(ctx audio.Context) (*audio.DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		fmt.Printf("Using the only capture device: %s\n", deviceLabel(devices[0]))
		return &devices[0], nil
	}

	p := devicePicker{devices: devices}
	return p.run()
}

// deviceLabel shows the backend ID next to the name when they differ,
// so the saved identifier is visible at pick time.
func deviceLabel(d audio.DeviceInfo) string {
	if d.ID != "" && d.ID != d.Name {
		return fmt.Sprintf("%s [%s]", d.Name, d.ID)
	}
	return d.Name
}

type devicePicker struct {
	devices []audio.DeviceInfo
	cursor  int
}

// Terminal is in raw mode for the duration, so lines end with \r\n and
// arrow keys arrive as escape sequences.
func (p *devicePicker) run() (*audio.DeviceInfo, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p.draw(false)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		switch decodeKey(buf[:n]) {
		case keyConfirm:
			fmt.Print("\r\n")
			return &p.devices[p.cursor], nil
		case keyCancel:
			fmt.Print("\r\n")
			return nil, errPickCancelled
		case keyUp:
			if p.cursor > 0 {
				p.cursor--
			}
		case keyDown:
			if p.cursor < len(p.devices)-1 {
				p.cursor++
			}
		}
		p.draw(true)
	}
}

func (p *devicePicker) draw(redraw bool) {
	if redraw {
		fmt.Printf("\x1b[%dA", len(p.devices)+2)
	}
	fmt.Print("\r\x1b[J")
	fmt.Print("Pick a microphone (↑/↓ or j/k, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range p.devices {
		if i == p.cursor {
			fmt.Printf("  \x1b[1;36m▶ %s\x1b[0m\r\n", deviceLabel(d))
		} else {
			fmt.Printf("    %s\r\n", deviceLabel(d))
		}
	}
}

type pickerKey int

const (
	keyNone pickerKey = iota
	keyUp
	keyDown
	keyConfirm
	keyCancel
)

// decodeKey classifies one raw-mode read: plain bytes for Enter, vim
// keys and Ctrl+C, or a CSI sequence for the arrows.
func decodeKey(b []byte) pickerKey {
	if len(b) == 1 {
		switch b[0] {
		case '\r':
			return keyConfirm
		case 3, 'q':
			return keyCancel
		case 'k':
			return keyUp
		case 'j':
			return keyDown
		}
	}
	if len(b) == 3 && b[0] == 0x1b && b[1] == '[' {
		switch b[2] {
		case 'A':
			return keyUp
		case 'B':
			return keyDown
		}
	}
	return keyNone
}
