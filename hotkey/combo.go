package hotkey

import (
	"fmt"
	"strings"
)

// Combo is a parsed key binding such as "ctrl+shift+space": one main
// key plus at least one modifier.
type Combo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Key   string
}

// DefaultCombo is the binding used when the configured one fails to
// parse.
var DefaultCombo = Combo{Ctrl: true, Shift: true, Key: "space"}

// ParseCombo parses a "+"-separated binding. Modifiers are ctrl, shift
// and alt; the remaining token is the main key. Matching is
// case-insensitive.
func ParseCombo(spec string) (Combo, error) {
	var c Combo
	for _, part := range strings.Split(strings.ToLower(spec), "+") {
		switch tok := strings.TrimSpace(part); tok {
		case "":
			return Combo{}, fmt.Errorf("empty token in binding %q", spec)
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		case "alt":
			c.Alt = true
		default:
			if c.Key != "" {
				return Combo{}, fmt.Errorf("binding %q names two keys (%s and %s)", spec, c.Key, tok)
			}
			c.Key = tok
		}
	}
	if c.Key == "" {
		return Combo{}, fmt.Errorf("binding %q names no key", spec)
	}
	if !c.Ctrl && !c.Shift && !c.Alt {
		return Combo{}, fmt.Errorf("binding %q needs at least one modifier", spec)
	}
	return c, nil
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}
